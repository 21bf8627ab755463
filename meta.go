package objectstore

import (
	"github.com/hamba/avro"
	"github.com/jgraettinger/cockroach-encoding/encoding"
	"github.com/pkg/errors"

	dbpkg "github.com/openrelayxyz/cardinal-objectstore/db"
)

var (
	metaSchema = avro.MustParse(`{
		"type": "record",
		"name": "databaseMeta",
		"namespace": "xyz.openrelay.objectstore",
		"fields": [
			{"name": "name", "type": "string"},
			{"name": "version", "type": "long"},
			{"name": "stores", "type": {
				"type": "array",
				"items": {
					"name": "storeMeta",
					"type": "record",
					"fields": [
						{"name": "name", "type": "string"},
						{"name": "keyPath", "type": {"type": "array", "items": "string"}},
						{"name": "autoIncrement", "type": "boolean"},
						{"name": "indexes", "type": {
							"type": "array",
							"items": {
								"name": "indexMeta",
								"type": "record",
								"fields": [
									{"name": "name", "type": "string"},
									{"name": "keyPath", "type": {"type": "array", "items": "string"}},
									{"name": "unique", "type": "boolean"},
									{"name": "multiEntry", "type": "boolean"}
								]
							}
						}}
					]
				}
			}}
		]
	}`)
)

type databaseMeta struct {
	Name    string      `avro:"name"`
	Version int64       `avro:"version"`
	Stores  []storeMeta `avro:"stores"`
}

type storeMeta struct {
	Name          string      `avro:"name"`
	KeyPath       []string    `avro:"keyPath"`
	AutoIncrement bool        `avro:"autoIncrement"`
	Indexes       []indexMeta `avro:"indexes"`
}

type indexMeta struct {
	Name       string   `avro:"name"`
	KeyPath    []string `avro:"keyPath"`
	Unique     bool     `avro:"unique"`
	MultiEntry bool     `avro:"multiEntry"`
}

func (m *databaseMeta) store(name string) *storeMeta {
	for i := range m.Stores {
		if m.Stores[i].Name == name {
			return &m.Stores[i]
		}
	}
	return nil
}

func (m *databaseMeta) storeNames() []string {
	names := make([]string, len(m.Stores))
	for i, s := range m.Stores {
		names[i] = s.Name
	}
	return names
}

func (m *databaseMeta) removeStore(name string) {
	for i := range m.Stores {
		if m.Stores[i].Name == name {
			m.Stores = append(m.Stores[:i], m.Stores[i+1:]...)
			return
		}
	}
}

func (s *storeMeta) keyPath() KeyPath {
	return KeyPath(s.KeyPath)
}

func (s *storeMeta) index(name string) *indexMeta {
	for i := range s.Indexes {
		if s.Indexes[i].Name == name {
			return &s.Indexes[i]
		}
	}
	return nil
}

func (i *indexMeta) keyPath() KeyPath {
	return KeyPath(i.KeyPath)
}

func newStoreMeta(s StoreSchema) storeMeta {
	sm := storeMeta{
		Name:          s.Name,
		KeyPath:       append([]string{}, s.KeyPath...),
		AutoIncrement: s.AutoIncrement,
		Indexes:       make([]indexMeta, len(s.Indexes)),
	}
	for i, idx := range s.Indexes {
		sm.Indexes[i] = indexMeta{
			Name:       idx.Name,
			KeyPath:    append([]string{}, idx.KeyPath...),
			Unique:     idx.Unique,
			MultiEntry: idx.MultiEntry,
		}
	}
	return sm
}

// loadMeta returns the stored metadata for a database, or an empty version 0
// record if the database does not exist.
func loadMeta(tr dbpkg.Transaction, name string) (*databaseMeta, error) {
	meta := &databaseMeta{Name: name}
	data, err := tr.Get(metaKey(name))
	if err == dbpkg.ErrNotFound {
		return meta, nil
	} else if err != nil {
		return nil, errors.WithMessagef(err, "reading metadata for %q", name)
	}
	if err := avro.Unmarshal(metaSchema, data, meta); err != nil {
		return nil, errors.WithMessagef(err, "decoding metadata for %q", name)
	}
	return meta, nil
}

func saveMeta(tr dbpkg.Transaction, meta *databaseMeta) error {
	data, err := avro.Marshal(metaSchema, meta)
	if err != nil {
		return errors.WithMessagef(err, "encoding metadata for %q", meta.Name)
	}
	return tr.Put(metaKey(meta.Name), data)
}

// deletePrefix removes every key beginning with prefix. Keys are collected
// before deleting so no iterator is open while the transaction is modified.
func deletePrefix(tr dbpkg.Transaction, prefix []byte) (int, error) {
	var deletes [][]byte
	iter := tr.Iterator(prefix, nil)
	for iter.Next() {
		deletes = append(deletes, iter.Key())
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return 0, err
	}
	iter.Close()
	for _, key := range deletes {
		if err := tr.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(deletes), nil
}

// deleteStoreData removes a store's records, index entries and key generator.
func deleteStoreData(tr dbpkg.Transaction, db, store string) error {
	if _, err := deletePrefix(tr, recordPrefix(db, store)); err != nil {
		return err
	}
	if _, err := deletePrefix(tr, storeIndexPrefix(db, store)); err != nil {
		return err
	}
	if err := tr.Delete(generatorKey(db, store)); err != nil && err != dbpkg.ErrNotFound {
		return err
	}
	return nil
}

// currentGenerator returns the next number the store's key generator will
// issue. Generators start at 1.
func currentGenerator(tr dbpkg.Transaction, db, store string) (int64, error) {
	data, err := tr.Get(generatorKey(db, store))
	if err == dbpkg.ErrNotFound {
		return 1, nil
	} else if err != nil {
		return 0, err
	}
	_, n, err := encoding.DecodeVarintAscending(data)
	return n, err
}

func setGenerator(tr dbpkg.Transaction, db, store string, next int64) error {
	return tr.Put(generatorKey(db, store), encoding.EncodeVarintAscending(nil, next))
}
