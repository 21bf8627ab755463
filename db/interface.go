package db

import (
	"errors"
)

var (
	ErrNotFound = errors.New("Not Found")
	ErrReadOnly = errors.New("attempted write to read-only transaction")
)

// Database allows the persistence and retrieval of key / value data. Closures
// passed to Update are committed atomically when they return nil and discarded
// when they return an error.
type Database interface {
	View(func(Transaction) error) error
	Update(func(Transaction) error) error
	// Vacuum runs one round of engine garbage collection, returning true if
	// another round may reclaim more space.
	Vacuum() bool
	Close()
}

// Transaction provides a consistent view of the database. Values returned by
// Get and by iterators are copies and stay valid after the transaction closes.
type Transaction interface {
	Get([]byte) ([]byte, error)
	Put([]byte, []byte) error
	Delete([]byte) error
	// Iterator returns key / value pairs beginning with prefix in ascending key
	// order, starting at the first key >= start. A nil start begins at prefix.
	Iterator(prefix, start []byte) Iterator
}

// Iterator iterates over key / value pairs in ascending order. Next() should be
// called before accessing the first pair.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}
