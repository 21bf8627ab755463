package boltdb

import (
	"os"
	"path/filepath"
	"testing"

	dbpkg "github.com/openrelayxyz/cardinal-objectstore/db"
	bolt "go.etcd.io/bbolt"
)

func openTemp(t *testing.T) (*Database, string) {
	dir, err := os.MkdirTemp("", "boltdb")
	if err != nil {
		t.Fatal(err.Error())
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "test.db")
	db, err := Open(path, 0600, nil)
	if err != nil {
		t.Fatal(err.Error())
	}
	return db, path
}

func TestUpdateAndView(t *testing.T) {
	db, path := openTemp(t)
	if err := db.Update(func(tx dbpkg.Transaction) error {
		if err := tx.Put([]byte("Hello"), []byte("World")); err != nil {
			return err
		}
		return tx.Put([]byte("Yellow"), []byte("Furled"))
	}); err != nil {
		t.Fatal(err.Error())
	}
	db.Close()

	rdb, err := Open(path, 0600, &bolt.Options{ReadOnly: true})
	if err != nil {
		t.Fatal(err.Error())
	}
	defer rdb.Close()
	rdb.View(func(tx dbpkg.Transaction) error {
		if err := tx.Put([]byte("a"), []byte("b")); err != dbpkg.ErrReadOnly {
			t.Errorf("Expected ErrReadOnly, got %v", err)
		}
		val, err := tx.Get([]byte("Hello"))
		if err != nil || string(val) != "World" {
			t.Errorf("Unexpected value %q (%v)", val, err)
		}
		if _, err := tx.Get([]byte("Missing")); err != dbpkg.ErrNotFound {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		return nil
	})
}

func TestIterator(t *testing.T) {
	db, _ := openTemp(t)
	defer db.Close()
	db.Update(func(tx dbpkg.Transaction) error {
		for _, k := range []string{"a1", "a2", "a3", "b1"} {
			tx.Put([]byte(k), []byte("v"+k))
		}
		return nil
	})
	db.View(func(tx dbpkg.Transaction) error {
		iter := tx.Iterator([]byte("a"), []byte("a2"))
		defer iter.Close()
		got := []string{}
		for iter.Next() {
			got = append(got, string(iter.Key())+"="+string(iter.Value()))
		}
		if len(got) != 2 || got[0] != "a2=va2" || got[1] != "a3=va3" {
			t.Errorf("Unexpected entries: %v", got)
		}
		iter = tx.Iterator(nil, nil)
		count := 0
		for iter.Next() {
			count++
		}
		if count != 4 {
			t.Errorf("Expected 4 entries, got %v", count)
		}
		return nil
	})
}
