package mem

import (
	"bytes"
	"errors"
	"testing"

	dbpkg "github.com/openrelayxyz/cardinal-objectstore/db"
)

func TestUpdateTx(t *testing.T) {
	db := NewMemoryDatabase(1024)
	err := db.Update(func(tx dbpkg.Transaction) error {
		tx.Put([]byte("Hello"), []byte("World"))
		val, err := tx.Get([]byte("Hello"))
		if err != nil {
			return err
		}
		if !bytes.Equal(val, []byte("World")) {
			return errors.New("Unexpected value")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err.Error())
	}
	err = db.View(func(tx dbpkg.Transaction) error {
		if err := tx.Put([]byte("Hello"), []byte("World")); err != dbpkg.ErrReadOnly {
			t.Errorf("Expected ErrReadOnly calling Put() inside view tx, got %v", err)
		}
		val, err := tx.Get([]byte("Hello"))
		if err != nil {
			t.Fatal(err.Error())
		}
		if !bytes.Equal(val, []byte("World")) {
			t.Errorf("Unexpected value: %v", string(val))
		}
		if _, err := tx.Get([]byte("Missing")); err != dbpkg.ErrNotFound {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err.Error())
	}
}

func TestAbortedUpdate(t *testing.T) {
	db := NewMemoryDatabase(1024)
	boom := errors.New("boom")
	err := db.Update(func(tx dbpkg.Transaction) error {
		tx.Put([]byte("Hello"), []byte("World"))
		return boom
	})
	if err != boom {
		t.Fatalf("Expected closure error, got %v", err)
	}
	db.View(func(tx dbpkg.Transaction) error {
		if _, err := tx.Get([]byte("Hello")); err != dbpkg.ErrNotFound {
			t.Errorf("Aborted write should not be visible")
		}
		return nil
	})
}

func TestAlterGetTx(t *testing.T) {
	db := NewMemoryDatabase(1024)
	err := db.Update(func(tx dbpkg.Transaction) error {
		tx.Put([]byte("Hello"), []byte("World"))
		val, err := tx.Get([]byte("Hello"))
		if err != nil {
			return err
		}
		if !bytes.Equal(val, []byte("World")) {
			return errors.New("Unexpected value")
		}
		val[0] = 3
		return nil
	})
	if err == nil {
		t.Fatalf("Expected failure")
	}
}

func TestIterTx(t *testing.T) {
	db := NewMemoryDatabase(1024)
	db.Update(func(tx dbpkg.Transaction) error {
		tx.Put([]byte("Hello"), []byte("World"))
		tx.Put([]byte("Mellow"), []byte("Burled"))
		iter := tx.Iterator([]byte("H"), nil)
		if !iter.Next() {
			t.Errorf("Iterator should have had next item")
		}
		if string(iter.Key()) != "Hello" {
			t.Errorf("Unexpected key")
		}
		if string(iter.Value()) != "World" {
			t.Errorf("Unexpected value")
		}
		if iter.Next() {
			t.Errorf("Iterator should have been exhausted")
		}
		return nil
	})
	db.View(func(tx dbpkg.Transaction) error {
		iter := tx.Iterator([]byte("H"), nil)
		if !iter.Next() {
			t.Errorf("Iterator should have had next item")
		}
		if string(iter.Key()) != "Hello" {
			t.Errorf("Unexpected key")
		}
		if iter.Next() {
			t.Errorf("Iterator should have been exhausted")
		}
		return nil
	})
	db.View(func(tx dbpkg.Transaction) error {
		iter := tx.Iterator([]byte("Q"), nil)
		if iter.Next() {
			t.Errorf("Iterator should have been exhausted")
		}
		return nil
	})
}

func TestIterOrderAndStart(t *testing.T) {
	db := NewMemoryDatabase(1024)
	db.Update(func(tx dbpkg.Transaction) error {
		for _, k := range []string{"k3", "k1", "k2", "x1"} {
			tx.Put([]byte(k), []byte(k))
		}
		return nil
	})
	db.Update(func(tx dbpkg.Transaction) error {
		tx.Delete([]byte("k3"))
		tx.Put([]byte("k4"), []byte("k4"))
		got := []string{}
		iter := tx.Iterator([]byte("k"), []byte("k2"))
		for iter.Next() {
			got = append(got, string(iter.Key()))
		}
		if len(got) != 2 || got[0] != "k2" || got[1] != "k4" {
			t.Errorf("Unexpected keys: %v", got)
		}
		return nil
	})
}
