package objectstore

import (
	"bytes"
	"math"

	"github.com/pkg/errors"

	dbpkg "github.com/openrelayxyz/cardinal-objectstore/db"
)

// maxGeneratedKey is the largest key a generator issues, the largest integer
// exactly representable as a float64.
const maxGeneratedKey = 1 << 53

// ObjectStore is a store as seen from one transaction.
type ObjectStore struct {
	tx     *Transaction
	meta   *storeMeta
	prefix []byte
}

func (s *ObjectStore) Name() string {
	return s.meta.Name
}

func (s *ObjectStore) KeyPath() KeyPath {
	return s.meta.keyPath()
}

func (s *ObjectStore) AutoIncrement() bool {
	return s.meta.AutoIncrement
}

func (s *ObjectStore) IndexNames() []string {
	names := make([]string, len(s.meta.Indexes))
	for i, idx := range s.meta.Indexes {
		names[i] = idx.Name
	}
	return names
}

// Index returns the named index of the store.
func (s *ObjectStore) Index(name string) (*Index, error) {
	im := s.meta.index(name)
	if im == nil {
		return nil, errors.Wrapf(ErrIndexNotFound, "%q on store %q", name, s.meta.Name)
	}
	return &Index{
		store:  s,
		meta:   im,
		prefix: indexPrefix(s.tx.h.name, s.meta.Name, im.Name),
	}, nil
}

func (s *ObjectStore) engine() (dbpkg.Transaction, error) {
	if s.tx.done {
		return nil, errors.Wrap(ErrUnresolvedTransaction, "transaction has finished")
	}
	return s.tx.tr, nil
}

// scan calls fn with each record in range, in key order, until fn returns
// false. value reads the record lazily.
func (s *ObjectStore) scan(b *keyBounds, fn func(key []byte, value func() []byte) (bool, error)) error {
	tr, err := s.engine()
	if err != nil {
		return err
	}
	if b.single() {
		data, err := tr.Get(recordKey(s.prefix, b.lower))
		if err == dbpkg.ErrNotFound {
			return nil
		} else if err != nil {
			return err
		}
		_, err = fn(b.lower, func() []byte { return data })
		return err
	}
	start := s.prefix
	if b.lower != nil {
		start = recordKey(s.prefix, b.lower)
	}
	iter := tr.Iterator(s.prefix, start)
	defer iter.Close()
	for iter.Next() {
		k := iter.Key()[len(s.prefix):]
		if !b.afterLower(k) {
			continue
		}
		if b.pastUpper(k) {
			break
		}
		cont, err := fn(k, iter.Value)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return iter.Error()
}

// Get returns the first record matching query, or nil if there is none.
func (s *ObjectStore) Get(query interface{}) (interface{}, error) {
	values, err := s.GetAll(query, 1)
	if err != nil || len(values) == 0 {
		return nil, err
	}
	return values[0], nil
}

// GetKey returns the first primary key matching query, or nil.
func (s *ObjectStore) GetKey(query interface{}) (interface{}, error) {
	keys, err := s.GetAllKeys(query, 1)
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	return keys[0], nil
}

// GetAll returns the records matching query in key order. A nil query matches
// every record; a limit <= 0 is unlimited.
func (s *ObjectStore) GetAll(query interface{}, limit int) ([]interface{}, error) {
	b, err := compileQuery(query)
	if err != nil {
		return nil, err
	}
	values := []interface{}{}
	err = s.scan(b, func(_ []byte, value func() []byte) (bool, error) {
		v, err := decodeValue(value())
		if err != nil {
			return false, err
		}
		values = append(values, v)
		return limit <= 0 || len(values) < limit, nil
	})
	return values, err
}

// GetAllKeys returns the primary keys matching query in order.
func (s *ObjectStore) GetAllKeys(query interface{}, limit int) ([]interface{}, error) {
	b, err := compileQuery(query)
	if err != nil {
		return nil, err
	}
	keys := []interface{}{}
	err = s.scan(b, func(k []byte, _ func() []byte) (bool, error) {
		_, key, err := decodeKey(k)
		if err != nil {
			return false, err
		}
		keys = append(keys, key)
		return limit <= 0 || len(keys) < limit, nil
	})
	return keys, err
}

func (s *ObjectStore) Count(query interface{}) (int, error) {
	b, err := compileQuery(query)
	if err != nil {
		return 0, err
	}
	count := 0
	err = s.scan(b, func([]byte, func() []byte) (bool, error) {
		count++
		return true, nil
	})
	return count, err
}

// Add inserts value, failing with ErrConstraint if a record with the same key
// exists. key is only accepted for stores with out-of-line keys. The key used
// is returned.
func (s *ObjectStore) Add(value interface{}, key ...interface{}) (interface{}, error) {
	return s.write(value, key, false)
}

// Put inserts value, replacing any record with the same key.
func (s *ObjectStore) Put(value interface{}, key ...interface{}) (interface{}, error) {
	return s.write(value, key, true)
}

func (s *ObjectStore) write(value interface{}, explicit []interface{}, overwrite bool) (interface{}, error) {
	if err := s.tx.writable(); err != nil {
		return nil, err
	}
	key, err := s.store(value, explicit, overwrite)
	if err != nil {
		return nil, s.tx.fail(err)
	}
	return key, nil
}

func (s *ObjectStore) store(value interface{}, explicit []interface{}, overwrite bool) (interface{}, error) {
	tr := s.tx.tr
	db := s.tx.h.name
	kp := s.meta.keyPath()
	switch {
	case len(explicit) > 1:
		return nil, errors.Wrap(ErrInvalidKey, "at most one key may be supplied")
	case kp.inline() && len(explicit) == 1:
		return nil, errors.Wrapf(ErrInvalidKey, "store %q uses in-line keys", s.meta.Name)
	case !kp.inline() && !s.meta.AutoIncrement && len(explicit) == 0:
		return nil, errors.Wrapf(ErrInvalidKey, "store %q requires a key", s.meta.Name)
	}
	doc, err := normalizeValue(value)
	if err != nil {
		return nil, err
	}

	var key interface{}
	switch {
	case len(explicit) == 1:
		if key, err = normalizeKey(explicit[0]); err != nil {
			return nil, err
		}
	case kp.compound():
		var ok bool
		if key, ok = kp.extract(doc); !ok {
			return nil, errors.Wrapf(ErrInvalidKey, "key path %v does not yield a valid key", kp)
		}
	case kp.inline():
		if v, found := evaluatePath(doc, kp[0]); found {
			if key, err = normalizeKey(v); err != nil {
				return nil, errors.WithMessagef(err, "key path %v", kp)
			}
		} else if !s.meta.AutoIncrement {
			return nil, errors.Wrapf(ErrInvalidKey, "key path %v does not yield a key", kp)
		}
	}

	if s.meta.AutoIncrement {
		next, err := currentGenerator(tr, db, s.meta.Name)
		if err != nil {
			return nil, err
		}
		if key == nil {
			if next > maxGeneratedKey {
				return nil, errors.Wrapf(ErrConstraint, "key generator for %q is exhausted", s.meta.Name)
			}
			key = float64(next)
			if kp.inline() {
				if err := kp.inject(doc, key); err != nil {
					return nil, err
				}
			}
			next++
		} else if n, ok := key.(float64); ok && n >= float64(next) {
			next = int64(math.Min(math.Floor(n), maxGeneratedKey)) + 1
		}
		if err := setGenerator(tr, db, s.meta.Name, next); err != nil {
			return nil, err
		}
	}

	pk := appendKey(nil, key)
	rk := recordKey(s.prefix, pk)
	old, err := tr.Get(rk)
	exists := err == nil
	if err != nil && err != dbpkg.ErrNotFound {
		return nil, err
	}
	if exists && !overwrite {
		return nil, errors.Wrapf(ErrConstraint, "key already exists in store %q", s.meta.Name)
	}

	entries := make([][][]byte, len(s.meta.Indexes))
	for i := range s.meta.Indexes {
		idx := s.indexAt(i)
		entries[i] = idx.keys(doc)
		if err := idx.checkUnique(entries[i], pk); err != nil {
			return nil, err
		}
	}
	if exists {
		oldDoc, err := decodeValue(old)
		if err != nil {
			return nil, err
		}
		if err := s.removeIndexEntries(oldDoc, pk); err != nil {
			return nil, err
		}
	}
	for i := range s.meta.Indexes {
		idx := s.indexAt(i)
		for _, ik := range entries[i] {
			if err := tr.Put(indexEntryKey(idx.prefix, ik, pk), []byte{}); err != nil {
				return nil, err
			}
		}
	}
	data, err := encodeValue(doc)
	if err != nil {
		return nil, err
	}
	if err := tr.Put(rk, data); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *ObjectStore) indexAt(i int) *Index {
	im := &s.meta.Indexes[i]
	return &Index{store: s, meta: im, prefix: indexPrefix(s.tx.h.name, s.meta.Name, im.Name)}
}

func (s *ObjectStore) removeIndexEntries(doc interface{}, pk []byte) error {
	for i := range s.meta.Indexes {
		idx := s.indexAt(i)
		for _, ik := range idx.keys(doc) {
			if err := s.tx.tr.Delete(indexEntryKey(idx.prefix, ik, pk)); err != nil && err != dbpkg.ErrNotFound {
				return err
			}
		}
	}
	return nil
}

// Delete removes every record matching query. Matching nothing is not an
// error.
func (s *ObjectStore) Delete(query interface{}) error {
	if err := s.tx.writable(); err != nil {
		return err
	}
	if query == nil {
		return errors.Wrap(ErrInvalidKey, "delete requires a key or key range")
	}
	b, err := compileQuery(query)
	if err != nil {
		return err
	}
	type record struct {
		pk, value []byte
	}
	var records []record
	if err := s.scan(b, func(k []byte, value func() []byte) (bool, error) {
		records = append(records, record{append([]byte{}, k...), value()})
		return true, nil
	}); err != nil {
		return s.tx.fail(err)
	}
	for _, r := range records {
		doc, err := decodeValue(r.value)
		if err != nil {
			return s.tx.fail(err)
		}
		if err := s.removeIndexEntries(doc, r.pk); err != nil {
			return s.tx.fail(err)
		}
		if err := s.tx.tr.Delete(recordKey(s.prefix, r.pk)); err != nil {
			return s.tx.fail(err)
		}
	}
	return nil
}

// Clear removes every record of the store. The key generator is kept.
func (s *ObjectStore) Clear() error {
	if err := s.tx.writable(); err != nil {
		return err
	}
	if _, err := deletePrefix(s.tx.tr, s.prefix); err != nil {
		return s.tx.fail(err)
	}
	if _, err := deletePrefix(s.tx.tr, storeIndexPrefix(s.tx.h.name, s.meta.Name)); err != nil {
		return s.tx.fail(err)
	}
	return nil
}

// Index is a secondary index as seen from one transaction. Its entries are
// ordered by index key, then primary key.
type Index struct {
	store  *ObjectStore
	meta   *indexMeta
	prefix []byte
}

func (i *Index) Name() string {
	return i.meta.Name
}

func (i *Index) KeyPath() KeyPath {
	return i.meta.keyPath()
}

func (i *Index) Unique() bool {
	return i.meta.Unique
}

func (i *Index) MultiEntry() bool {
	return i.meta.MultiEntry
}

// keys returns the encoded index keys of a normalized record.
func (i *Index) keys(doc interface{}) [][]byte {
	kp := i.meta.keyPath()
	if i.meta.MultiEntry {
		keys := kp.extractMulti(doc)
		out := make([][]byte, len(keys))
		for j, k := range keys {
			out[j] = appendKey(nil, k)
		}
		return out
	}
	if k, ok := kp.extract(doc); ok {
		return [][]byte{appendKey(nil, k)}
	}
	return nil
}

func (i *Index) checkUnique(keys [][]byte, pk []byte) error {
	if !i.meta.Unique {
		return nil
	}
	for _, ik := range keys {
		prefix := recordKey(i.prefix, ik)
		iter := i.store.tx.tr.Iterator(prefix, nil)
		conflict := false
		for iter.Next() {
			if !bytes.Equal(iter.Key()[len(prefix):], pk) {
				conflict = true
				break
			}
		}
		err := iter.Error()
		iter.Close()
		if err != nil {
			return err
		}
		if conflict {
			return errors.Wrapf(ErrConstraint, "unique index %q already has an entry for this key", i.meta.Name)
		}
	}
	return nil
}

// scan calls fn with each entry in range until fn returns false.
func (i *Index) scan(b *keyBounds, fn func(indexKey, pk []byte) (bool, error)) error {
	tr, err := i.store.engine()
	if err != nil {
		return err
	}
	start := i.prefix
	if b.lower != nil {
		start = recordKey(i.prefix, b.lower)
	}
	iter := tr.Iterator(i.prefix, start)
	defer iter.Close()
	for iter.Next() {
		ik, pk, err := splitKey(iter.Key()[len(i.prefix):])
		if err != nil {
			return err
		}
		if !b.afterLower(ik) {
			continue
		}
		if b.pastUpper(ik) {
			break
		}
		cont, err := fn(ik, pk)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return iter.Error()
}

// Get returns the first record whose index key matches query, or nil.
func (i *Index) Get(query interface{}) (interface{}, error) {
	values, err := i.GetAll(query, 1)
	if err != nil || len(values) == 0 {
		return nil, err
	}
	return values[0], nil
}

// GetKey returns the primary key of the first record whose index key matches
// query, or nil.
func (i *Index) GetKey(query interface{}) (interface{}, error) {
	keys, err := i.GetAllKeys(query, 1)
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	return keys[0], nil
}

// GetAll returns matching records ordered by index key, then primary key.
func (i *Index) GetAll(query interface{}, limit int) ([]interface{}, error) {
	b, err := compileQuery(query)
	if err != nil {
		return nil, err
	}
	values := []interface{}{}
	err = i.scan(b, func(_, pk []byte) (bool, error) {
		data, err := i.store.tx.tr.Get(recordKey(i.store.prefix, pk))
		if err != nil {
			return false, errors.WithMessagef(err, "index %q references a missing record", i.meta.Name)
		}
		v, err := decodeValue(data)
		if err != nil {
			return false, err
		}
		values = append(values, v)
		return limit <= 0 || len(values) < limit, nil
	})
	return values, err
}

// GetAllKeys returns the primary keys of matching records in index order.
func (i *Index) GetAllKeys(query interface{}, limit int) ([]interface{}, error) {
	b, err := compileQuery(query)
	if err != nil {
		return nil, err
	}
	keys := []interface{}{}
	err = i.scan(b, func(_, pk []byte) (bool, error) {
		_, key, err := decodeKey(pk)
		if err != nil {
			return false, err
		}
		keys = append(keys, key)
		return limit <= 0 || len(keys) < limit, nil
	})
	return keys, err
}

func (i *Index) Count(query interface{}) (int, error) {
	b, err := compileQuery(query)
	if err != nil {
		return 0, err
	}
	count := 0
	err = i.scan(b, func(_, _ []byte) (bool, error) {
		count++
		return true, nil
	})
	return count, err
}
