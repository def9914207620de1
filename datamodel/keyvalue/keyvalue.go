// Package keyvalue defines the byte-oriented store behind the kv host module.
package keyvalue

import "errors"

var ErrNotFound = errors.New("key not found")

type Key []byte

// KeyValue is implemented by the LevelDB and Bolt backends. Get returns ErrNotFound for
// absent keys; Delete of an absent key is not an error.
type KeyValue interface {
	Has(key Key) (bool, error)
	Put(key Key, value []byte) error
	Get(key Key) ([]byte, error)
	Keys(prefix Key) ([]Key, error)
	Delete(key Key) error
	Close() error
}
