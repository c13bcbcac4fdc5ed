package store

import (
	"fmt"
	"sync"
)

import (
	logging "github.com/op/go-logging"
)

var logger *logging.Logger

func init() {
	logger = logging.MustGetLogger("store")
}

type StoreError struct {
	reason string
}

func NewStoreError(format string, args ...interface{}) *StoreError {
	return &StoreError{reason: fmt.Sprintf(format, args...)}
}

func (e *StoreError) Error() string {
	return e.reason
}

// KVStore is a replicated string key/value store. Commands are
// serialized Instructions; get, set, and del are supported. The
// mutex only guards external inspection, replicated applies are
// serialized by the replica
type KVStore struct {
	lock   sync.RWMutex
	values map[string]string
}

var _ = StateMachine(&KVStore{})

func NewKVStore() *KVStore {
	return &KVStore{values: make(map[string]string)}
}

func (s *KVStore) Apply(command []byte) ([]byte, error) {
	instr, err := DecodeInstruction(command)
	if err != nil {
		return nil, err
	}
	return s.execute(instr)
}

func (s *KVStore) execute(instr *Instruction) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	switch instr.Cmd {
	case "set":
		if len(instr.Args) != 1 {
			return nil, NewStoreError("set expects 1 arg, got %v", len(instr.Args))
		}
		s.values[instr.Key] = instr.Args[0]
		return []byte(instr.Args[0]), nil
	case "get":
		val, exists := s.values[instr.Key]
		if !exists {
			return nil, NewStoreError("key does not exist: %v", instr.Key)
		}
		return []byte(val), nil
	case "del":
		delete(s.values, instr.Key)
		return nil, nil
	default:
		return nil, NewStoreError("unknown command: %v", instr.Cmd)
	}
}

// returns the current value of a key, for local inspection only
func (s *KVStore) GetRawKey(key string) (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	val, exists := s.values[key]
	return val, exists
}

// checks if a key exists in the store
func (s *KVStore) KeyExists(key string) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, exists := s.values[key]
	return exists
}

// returns all of the keys held by the store
func (s *KVStore) GetKeys() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	return keys
}
