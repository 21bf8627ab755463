package resolver

import (
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/openrelayxyz/cardinal-objectstore"
	dbpkg "github.com/openrelayxyz/cardinal-objectstore/db"
	"github.com/openrelayxyz/cardinal-objectstore/db/badgerdb"
	"github.com/openrelayxyz/cardinal-objectstore/db/boltdb"
	"github.com/openrelayxyz/cardinal-objectstore/db/mem"
)

var ErrUnknownEngine = errors.New("unknown storage engine")

// ResolveDatabase opens the engine named by path. Accepted forms are
// "mem://", "badger://<dir>", "bolt://<file>", or a bare path: an existing
// regular file is opened with bolt, anything else with badger.
func ResolveDatabase(path string, readOnly bool) (dbpkg.Database, error) {
	if !strings.Contains(path, "://") {
		if fileInfo, err := os.Stat(path); err == nil && !fileInfo.IsDir() {
			return openBolt(path, readOnly)
		}
		return openBadger(path, readOnly)
	}
	parsedURL, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	// net/url treats a relative path after '//' as a host, so rejoin them.
	location := parsedURL.Host + parsedURL.Path
	switch parsedURL.Scheme {
	case "mem":
		return mem.NewMemoryDatabase(1024), nil
	case "badger":
		return openBadger(location, readOnly)
	case "bolt":
		return openBolt(location, readOnly)
	}
	return nil, errors.Wrapf(ErrUnknownEngine, "%q", parsedURL.Scheme)
}

func openBadger(path string, readOnly bool) (dbpkg.Database, error) {
	if readOnly {
		return badgerdb.NewReadOnly(path)
	}
	return badgerdb.New(path)
}

func openBolt(path string, readOnly bool) (dbpkg.Database, error) {
	return boltdb.Open(path, 0600, &bolt.Options{ReadOnly: readOnly})
}

// ResolveFactory opens the engine named by path and wraps it in a Factory.
func ResolveFactory(path string, readOnly bool) (*objectstore.Factory, error) {
	db, err := ResolveDatabase(path, readOnly)
	if err != nil {
		return nil, errors.WithMessagef(err, "opening %q", path)
	}
	return objectstore.NewFactory(db), nil
}
