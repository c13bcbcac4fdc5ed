package storage

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBStorage records replica state in an embedded LevelDB
// database. Every write is synced before it is acknowledged
type LevelDBStorage struct {
	db *leveldb.DB
}

var _ = Storage(&LevelDBStorage{})

var levelSyncWrites = &opt.WriteOptions{Sync: true}

func NewLevelDBStorage(dir string) (*LevelDBStorage, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dir)
	}
	return &LevelDBStorage{db: db}, nil
}

func (s *LevelDBStorage) Store(key string, value []byte) error {
	if err := s.db.Put([]byte(key), value, levelSyncWrites); err != nil {
		return errors.Wrapf(err, "storing key %v", key)
	}
	return nil
}

func (s *LevelDBStorage) Load(key string) ([]byte, bool, error) {
	value, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "loading key %v", key)
	}
	return value, true, nil
}

func (s *LevelDBStorage) Close() error {
	return s.db.Close()
}
