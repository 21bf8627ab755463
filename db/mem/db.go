package mem

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	dbpkg "github.com/openrelayxyz/cardinal-objectstore/db"
)

// Database is a map backed dbpkg.Database. Writers are serialized; readers run
// concurrently up to the configured limit and never observe a partially
// applied Update.
type Database struct {
	data      map[string][]byte
	locker    *sync.RWMutex
	wlocker   *sync.Mutex
	semaphore chan struct{}
}

func NewMemoryDatabase(concurrentReaders int) *Database {
	return &Database{
		data:      make(map[string][]byte),
		locker:    &sync.RWMutex{},
		wlocker:   &sync.Mutex{},
		semaphore: make(chan struct{}, concurrentReaders),
	}
}

// fnWrapper fails the transaction if the closure modified a value it was
// handed, which would corrupt the stored copy.
func fnWrapper(fn func(tx dbpkg.Transaction) error) func(tx dbpkg.Transaction) error {
	return func(tx dbpkg.Transaction) error {
		if err := fn(tx); err != nil {
			return err
		}
		var orig, returned map[string][]byte
		switch txt := tx.(type) {
		case *fullTransaction:
			orig, returned = txt.origValues, txt.returnedValues
		case *viewTransaction:
			orig, returned = txt.origValues, txt.returnedValues
		default:
		}
		for k, v := range orig {
			if !bytes.Equal(returned[k], v) {
				return fmt.Errorf("Value changed during transaction: %x != %x", v, returned[k])
			}
		}
		return nil
	}
}

func (db *Database) View(fn func(tx dbpkg.Transaction) error) error {
	if fn == nil {
		return errors.New("No function provided")
	}
	db.semaphore <- struct{}{}
	defer func() { <-db.semaphore }()
	db.locker.RLock()
	defer db.locker.RUnlock()
	return fnWrapper(fn)(&viewTransaction{
		db:             db,
		origValues:     make(map[string][]byte),
		returnedValues: make(map[string][]byte),
	})
}

func (db *Database) Update(fn func(tx dbpkg.Transaction) error) error {
	if fn == nil {
		return errors.New("No function provided")
	}
	db.wlocker.Lock()
	defer db.wlocker.Unlock()
	db.semaphore <- struct{}{}
	defer func() { <-db.semaphore }()
	tx := &fullTransaction{
		db:             db,
		changes:        make(map[string][]byte),
		deletes:        make(map[string]struct{}),
		origValues:     make(map[string][]byte),
		returnedValues: make(map[string][]byte),
	}
	if err := fnWrapper(fn)(tx); err != nil {
		return err
	}
	db.locker.Lock()
	defer db.locker.Unlock()
	return tx.apply(db.data)
}

// Vacuum is a no-op; deleted entries are released to the garbage collector
// immediately.
func (db *Database) Vacuum() bool {
	return false
}

func (db *Database) Close() {}

type viewTransaction struct {
	db             *Database
	origValues     map[string][]byte
	returnedValues map[string][]byte
}

func track(orig, returned map[string][]byte, key string, val []byte) {
	returned[key] = val
	orig[key] = make([]byte, len(val))
	copy(orig[key][:], val)
}

func (tx *viewTransaction) Get(key []byte) ([]byte, error) {
	if val, ok := tx.db.data[string(key)]; ok {
		track(tx.origValues, tx.returnedValues, string(key), val)
		return val, nil
	}
	return nil, dbpkg.ErrNotFound
}

func (tx *viewTransaction) Put([]byte, []byte) error {
	return dbpkg.ErrReadOnly
}

func (tx *viewTransaction) Delete([]byte) error {
	return dbpkg.ErrReadOnly
}

func (tx *viewTransaction) Iterator(prefix, start []byte) dbpkg.Iterator {
	return newIterator(tx.db.data, nil, nil, prefix, start)
}

type fullTransaction struct {
	db             *Database
	changes        map[string][]byte
	deletes        map[string]struct{}
	origValues     map[string][]byte
	returnedValues map[string][]byte
}

func (tx *fullTransaction) Get(key []byte) ([]byte, error) {
	if _, ok := tx.deletes[string(key)]; ok {
		return nil, dbpkg.ErrNotFound
	}
	if val, ok := tx.changes[string(key)]; ok {
		track(tx.origValues, tx.returnedValues, string(key), val)
		return val, nil
	}
	if val, ok := tx.db.data[string(key)]; ok {
		track(tx.origValues, tx.returnedValues, string(key), val)
		return val, nil
	}
	return nil, dbpkg.ErrNotFound
}

func (tx *fullTransaction) Put(key []byte, val []byte) error {
	delete(tx.deletes, string(key))
	v := make([]byte, len(val))
	copy(v, val)
	tx.changes[string(key)] = v
	return nil
}

func (tx *fullTransaction) Delete(key []byte) error {
	delete(tx.changes, string(key))
	tx.deletes[string(key)] = struct{}{}
	return nil
}

func (tx *fullTransaction) Iterator(prefix, start []byte) dbpkg.Iterator {
	return newIterator(tx.db.data, tx.changes, tx.deletes, prefix, start)
}

func (tx *fullTransaction) apply(data map[string][]byte) error {
	for k := range tx.deletes {
		delete(data, k)
	}
	for k, v := range tx.changes {
		data[k] = v
	}
	return nil
}

// memIterator walks a sorted snapshot of the keys visible to a transaction at
// the time the iterator was created.
type memIterator struct {
	keys   []string
	values map[string][]byte
	pos    int
}

func newIterator(data, changes map[string][]byte, deletes map[string]struct{}, prefix, start []byte) *memIterator {
	if start == nil || bytes.Compare(start, prefix) < 0 {
		start = prefix
	}
	p, s := string(prefix), string(start)
	values := make(map[string][]byte)
	collect := func(m map[string][]byte) {
		for k, v := range m {
			if strings.HasPrefix(k, p) && k >= s {
				values[k] = v
			}
		}
	}
	collect(data)
	collect(changes)
	for k := range deletes {
		delete(values, k)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &memIterator{keys: keys, values: values, pos: -1}
}

func (it *memIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memIterator) Key() []byte {
	return []byte(it.keys[it.pos])
}

func (it *memIterator) Value() []byte {
	v := it.values[it.keys[it.pos]]
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (it *memIterator) Error() error {
	return nil
}

func (it *memIterator) Close() error {
	return nil
}
