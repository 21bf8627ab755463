package objectstore

import (
	"time"
)

type readOptions struct {
	index string
	limit int
}

// ReadOption adjusts a Get, GetAll, GetAllKeys or Count call.
type ReadOption func(*readOptions)

// WithIndex reads through the named index; the query then matches index keys.
func WithIndex(name string) ReadOption {
	return func(o *readOptions) { o.index = name }
}

// WithLimit caps the number of results. n <= 0 is unlimited.
func WithLimit(n int) ReadOption {
	return func(o *readOptions) { o.limit = n }
}

// reader is the read surface shared by ObjectStore and Index.
type reader interface {
	GetAll(query interface{}, limit int) ([]interface{}, error)
	GetAllKeys(query interface{}, limit int) ([]interface{}, error)
	Count(query interface{}) (int, error)
}

func (h *Handle) read(store string, opts []ReadOption, fn func(reader, *readOptions) error) error {
	o := &readOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return h.Transaction([]string{store}, ReadOnly, func(tx *Transaction) error {
		s, err := tx.Store(store)
		if err != nil {
			return err
		}
		if o.index == "" {
			return fn(s, o)
		}
		idx, err := s.Index(o.index)
		if err != nil {
			return err
		}
		return fn(idx, o)
	})
}

// Get returns the first record of store matching query, or nil if nothing
// matches.
func (h *Handle) Get(store string, query interface{}, opts ...ReadOption) (value interface{}, err error) {
	defer observe("get", time.Now(), &err)
	err = h.read(store, opts, func(r reader, _ *readOptions) error {
		values, err := r.GetAll(query, 1)
		if len(values) > 0 {
			value = values[0]
		}
		return err
	})
	return value, err
}

// GetAll returns every record of store matching query in key (or index key)
// order. A nil query matches everything.
func (h *Handle) GetAll(store string, query interface{}, opts ...ReadOption) (values []interface{}, err error) {
	defer observe("getAll", time.Now(), &err)
	err = h.read(store, opts, func(r reader, o *readOptions) (err error) {
		values, err = r.GetAll(query, o.limit)
		return err
	})
	return values, err
}

// GetAllKeys returns the primary keys of the records GetAll would return.
func (h *Handle) GetAllKeys(store string, query interface{}, opts ...ReadOption) (keys []interface{}, err error) {
	defer observe("getAllKeys", time.Now(), &err)
	err = h.read(store, opts, func(r reader, o *readOptions) (err error) {
		keys, err = r.GetAllKeys(query, o.limit)
		return err
	})
	return keys, err
}

func (h *Handle) Count(store string, query interface{}, opts ...ReadOption) (count int, err error) {
	defer observe("count", time.Now(), &err)
	err = h.read(store, opts, func(r reader, _ *readOptions) (err error) {
		count, err = r.Count(query)
		return err
	})
	return count, err
}

func (h *Handle) write(op, store string, fn func(*ObjectStore) (interface{}, error)) (key interface{}, err error) {
	defer observe(op, time.Now(), &err)
	err = h.Transaction([]string{store}, ReadWrite, func(tx *Transaction) error {
		s, err := tx.Store(store)
		if err != nil {
			return err
		}
		key, err = fn(s)
		return err
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Add inserts value into store and returns its key once the transaction has
// committed. It fails with ErrConstraint if the key is already present.
func (h *Handle) Add(store string, value interface{}, key ...interface{}) (interface{}, error) {
	return h.write("add", store, func(s *ObjectStore) (interface{}, error) {
		return s.Add(value, key...)
	})
}

// Put inserts or replaces value in store and returns its key once the
// transaction has committed.
func (h *Handle) Put(store string, value interface{}, key ...interface{}) (interface{}, error) {
	return h.write("put", store, func(s *ObjectStore) (interface{}, error) {
		return s.Put(value, key...)
	})
}

// Delete removes the records of store matching a key or key range. Absent
// keys are not an error.
func (h *Handle) Delete(store string, query interface{}) error {
	_, err := h.write("delete", store, func(s *ObjectStore) (interface{}, error) {
		return nil, s.Delete(query)
	})
	return err
}

// Clear empties every named store in a single transaction.
func (h *Handle) Clear(stores ...string) (err error) {
	defer observe("clear", time.Now(), &err)
	return h.Transaction(stores, ReadWrite, func(tx *Transaction) error {
		for _, name := range stores {
			s, err := tx.Store(name)
			if err != nil {
				return err
			}
			if err := s.Clear(); err != nil {
				return err
			}
		}
		return nil
	})
}
