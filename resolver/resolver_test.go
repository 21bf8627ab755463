package resolver

import (
	"os"
	"path/filepath"
	"testing"

	dbpkg "github.com/openrelayxyz/cardinal-objectstore/db"
	"github.com/openrelayxyz/cardinal-objectstore/db/badgerdb"
	"github.com/openrelayxyz/cardinal-objectstore/db/boltdb"
	"github.com/openrelayxyz/cardinal-objectstore/db/mem"
)

func TestResolveDatabase(t *testing.T) {
	dir, err := os.MkdirTemp("", "resolver")
	if err != nil {
		t.Fatal(err.Error())
	}
	defer os.RemoveAll(dir)

	db, err := ResolveDatabase("mem://", false)
	if err != nil {
		t.Fatal(err.Error())
	}
	if _, ok := db.(*mem.Database); !ok {
		t.Errorf("Expected mem database, got %T", db)
	}

	boltPath := filepath.Join(dir, "store.bolt")
	db, err = ResolveDatabase("bolt://"+boltPath, false)
	if err != nil {
		t.Fatal(err.Error())
	}
	if _, ok := db.(*boltdb.Database); !ok {
		t.Errorf("Expected bolt database, got %T", db)
	}
	db.Update(func(tx dbpkg.Transaction) error { return tx.Put([]byte("k"), []byte("v")) })
	db.Close()

	// An existing file resolves to bolt without a scheme.
	db, err = ResolveDatabase(boltPath, true)
	if err != nil {
		t.Fatal(err.Error())
	}
	if _, ok := db.(*boltdb.Database); !ok {
		t.Errorf("Expected bolt database, got %T", db)
	}
	db.Close()

	db, err = ResolveDatabase(filepath.Join(dir, "badger"), false)
	if err != nil {
		t.Fatal(err.Error())
	}
	if _, ok := db.(*badgerdb.Database); !ok {
		t.Errorf("Expected badger database, got %T", db)
	}
	db.Close()

	if _, err := ResolveDatabase("lmdb:///nowhere", false); err == nil {
		t.Errorf("Expected error for unknown engine")
	}
}
