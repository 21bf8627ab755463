package badgerdb

import (
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v3"
	log "github.com/inconshreveable/log15"

	dbpkg "github.com/openrelayxyz/cardinal-objectstore/db"
)

// Database is a dbpkg.Database backed by badger. An empty path opens an
// in-memory instance.
type Database struct {
	db *badger.DB
}

func (db *Database) Close() {
	if err := db.db.Close(); err != nil {
		log.Warn("Error closing badger database", "err", err)
	}
}

func New(path string) (*Database, error) {
	return open(badger.DefaultOptions(path), path)
}

func NewReadOnly(path string) (*Database, error) {
	return open(badger.DefaultOptions(path).WithReadOnly(true), path)
}

func open(opt badger.Options, path string) (*Database, error) {
	if path == "" {
		opt = opt.WithInMemory(true)
	}
	opt = opt.WithLogger(logger{log.New("engine", "badger")})
	db, err := badger.Open(opt)
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

// logger routes badger's internal logging through log15. Badger's info
// output is chatty, so it is demoted to debug.
type logger struct {
	log.Logger
}

func (l logger) Errorf(f string, v ...interface{}) { l.Error(strings.TrimSpace(fmt.Sprintf(f, v...))) }
func (l logger) Warningf(f string, v ...interface{}) { l.Warn(strings.TrimSpace(fmt.Sprintf(f, v...))) }
func (l logger) Infof(f string, v ...interface{}) { l.Debug(strings.TrimSpace(fmt.Sprintf(f, v...))) }
func (l logger) Debugf(f string, v ...interface{}) { l.Debug(strings.TrimSpace(fmt.Sprintf(f, v...))) }

type badgerTx struct {
	writable bool
	tx       *badger.Txn
}

type badgerIterator struct {
	it      *badger.Iterator
	prefix  []byte
	start   []byte
	started bool
	item    *badger.Item
	err     error
}

func (it *badgerIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.it.Seek(it.start)
		it.started = true
	} else {
		it.it.Next()
	}
	ok := it.it.ValidForPrefix(it.prefix)
	if ok {
		it.item = it.it.Item()
	}
	return ok
}

func (it *badgerIterator) Key() []byte {
	return it.item.KeyCopy(nil)
}

func (it *badgerIterator) Value() []byte {
	val, err := it.item.ValueCopy(nil)
	if err != nil {
		it.err = err
	}
	return val
}

func (it *badgerIterator) Close() error {
	it.it.Close()
	return nil
}

func (it *badgerIterator) Error() error {
	return it.err
}

// Get returns a copy of the value at the specified key. The copy can continue
// to exist after the transaction closes, and may be manipulated without having
// problems.
func (tx *badgerTx) Get(key []byte) ([]byte, error) {
	item, err := tx.tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, dbpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (tx *badgerTx) Put(key, value []byte) error {
	if !tx.writable {
		return dbpkg.ErrReadOnly
	}
	return tx.tx.Set(key, value)
}

func (tx *badgerTx) Delete(key []byte) error {
	if !tx.writable {
		return dbpkg.ErrReadOnly
	}
	return tx.tx.Delete(key)
}

// Iterator must be closed before another iterator is opened on a writable
// transaction.
func (tx *badgerTx) Iterator(prefix, start []byte) dbpkg.Iterator {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 10
	opts.Prefix = prefix
	if start == nil {
		start = prefix
	}
	return &badgerIterator{it: tx.tx.NewIterator(opts), prefix: prefix, start: start}
}

func (db *Database) Update(fn func(dbpkg.Transaction) error) error {
	return db.db.Update(func(btx *badger.Txn) error {
		return fn(&badgerTx{writable: true, tx: btx})
	})
}

func (db *Database) View(fn func(dbpkg.Transaction) error) error {
	return db.db.View(func(btx *badger.Txn) error {
		return fn(&badgerTx{writable: false, tx: btx})
	})
}

// Vacuum runs a single value log garbage collection pass.
func (db *Database) Vacuum() bool {
	return db.db.RunValueLogGC(0.5) == nil
}
