package boltdb

import (
	"bytes"
	"os"

	dbpkg "github.com/openrelayxyz/cardinal-objectstore/db"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("ObjectStore")

// Database is a dbpkg.Database backed by a single bbolt bucket.
type Database struct {
	db *bolt.DB
}

// Open opens the bolt file at path. If options are not specified default
// options will be used.
func Open(path string, mode os.FileMode, options *bolt.Options) (*Database, error) {
	db, err := bolt.Open(path, mode, options)
	if err != nil {
		return nil, err
	}
	if options == nil || !options.ReadOnly {
		if err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketName)
			return err
		}); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &Database{db: db}, nil
}

func (db *Database) Update(fn func(dbpkg.Transaction) error) error {
	return db.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTx{bk: tx.Bucket(bucketName), writable: true})
	})
}

func (db *Database) View(fn func(dbpkg.Transaction) error) error {
	return db.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTx{bk: tx.Bucket(bucketName)})
	})
}

// Vacuum is a no-op. Bolt reuses freed pages rather than compacting in place.
func (db *Database) Vacuum() bool {
	return false
}

func (db *Database) Close() {
	db.db.Close()
}

type boltTx struct {
	bk       *bolt.Bucket
	writable bool
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (tx *boltTx) Get(key []byte) ([]byte, error) {
	if tx.bk == nil {
		return nil, dbpkg.ErrNotFound
	}
	item := tx.bk.Get(key)
	if item == nil {
		return nil, dbpkg.ErrNotFound
	}
	return copyBytes(item), nil
}

func (tx *boltTx) Put(key, value []byte) error {
	if !tx.writable {
		return dbpkg.ErrReadOnly
	}
	return tx.bk.Put(key, value)
}

func (tx *boltTx) Delete(key []byte) error {
	if !tx.writable {
		return dbpkg.ErrReadOnly
	}
	return tx.bk.Delete(key)
}

func (tx *boltTx) Iterator(prefix, start []byte) dbpkg.Iterator {
	if tx.bk == nil {
		return &boltIterator{}
	}
	if start == nil {
		start = prefix
	}
	cursor := tx.bk.Cursor()
	var key, val []byte
	if start == nil {
		key, val = cursor.First()
	} else {
		key, val = cursor.Seek(start)
	}
	return &boltIterator{
		cursor:  cursor,
		first:   true,
		initKey: key,
		initVal: val,
		prefix:  prefix,
	}
}

type boltIterator struct {
	cursor  *bolt.Cursor
	first   bool
	initKey []byte
	initVal []byte
	prefix  []byte
}

func (it *boltIterator) Next() bool {
	if it.cursor == nil {
		return false
	}
	if !it.first {
		it.initKey, it.initVal = it.cursor.Next()
	} else {
		it.first = false
	}
	return it.initKey != nil && bytes.HasPrefix(it.initKey, it.prefix)
}

func (it *boltIterator) Key() []byte {
	return copyBytes(it.initKey)
}

func (it *boltIterator) Value() []byte {
	return copyBytes(it.initVal)
}

func (it *boltIterator) Error() error {
	return nil
}

func (it *boltIterator) Close() error {
	return nil
}
