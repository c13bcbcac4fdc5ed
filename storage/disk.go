package storage

import (
	"os"
	"path/filepath"
)

import (
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
)

// DiskStorage keeps one file per key in a private directory and
// makes writes atomic by writing a temp file, syncing it, and
// renaming it over the old value
type DiskStorage struct {
	dir string
}

var _ = Storage(&DiskStorage{})

func NewDiskStorage(dir string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating storage dir %v", dir)
	}
	return &DiskStorage{dir: dir}, nil
}

func (s *DiskStorage) keyPath(key string) string {
	return filepath.Join(s.dir, key+".bin")
}

func (s *DiskStorage) Store(key string, value []byte) error {
	tmpPath := filepath.Join(s.dir, key+".tmp-"+uuid.NewRandom().String())
	tmpFile, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrapf(err, "creating temp file for key %v", key)
	}
	if _, err = tmpFile.Write(value); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "writing key %v", key)
	}
	if err = tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "syncing key %v", key)
	}
	if err = tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "closing temp file for key %v", key)
	}
	if err = os.Rename(tmpPath, s.keyPath(key)); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "renaming key %v into place", key)
	}
	return nil
}

func (s *DiskStorage) Load(key string) ([]byte, bool, error) {
	value, err := os.ReadFile(s.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "reading key %v", key)
	}
	return value, true, nil
}

func (s *DiskStorage) Close() error {
	return nil
}
