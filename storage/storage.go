/*
Durable storage for replica state

A replica must have its promise and log durably recorded before the
message that depends on them leaves the node. Writes are atomic per
key; a crash mid-write must leave either the old or the new value.
*/
package storage

import (
	logging "github.com/op/go-logging"
)

var logger *logging.Logger

func init() {
	logger = logging.MustGetLogger("storage")
}

type Storage interface {
	// durably records the value under the given key, atomically
	Store(key string, value []byte) error

	// returns the value recorded under key, or exists=false if the
	// key has never been stored
	Load(key string) (value []byte, exists bool, err error)

	Close() error
}
