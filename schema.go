package objectstore

import (
	"github.com/pkg/errors"
)

// StoreSchema declares an object store. Stores are created during an upgrade
// if they do not already exist; Recreate drops and rebuilds the store on every
// upgrade.
type StoreSchema struct {
	Name          string
	KeyPath       KeyPath
	AutoIncrement bool
	Recreate      bool
	Indexes       []IndexSchema
}

// IndexSchema declares a secondary index on a store.
type IndexSchema struct {
	Name       string
	KeyPath    KeyPath
	Unique     bool
	MultiEntry bool
}

func validateSchema(schema []StoreSchema) error {
	stores := make(map[string]struct{}, len(schema))
	for _, s := range schema {
		if s.Name == "" {
			return errors.Wrap(ErrInvalidSchema, "store name must not be empty")
		}
		if _, ok := stores[s.Name]; ok {
			return errors.Wrapf(ErrInvalidSchema, "duplicate store %q", s.Name)
		}
		stores[s.Name] = struct{}{}
		if err := s.KeyPath.validate(); err != nil {
			return errors.WithMessagef(err, "store %q", s.Name)
		}
		if s.AutoIncrement && (s.KeyPath.compound() || (s.KeyPath.inline() && s.KeyPath[0] == "")) {
			return errors.Wrapf(ErrInvalidSchema, "store %q: auto-increment requires a single non-empty key path", s.Name)
		}
		indexes := make(map[string]struct{}, len(s.Indexes))
		for _, idx := range s.Indexes {
			if idx.Name == "" {
				return errors.Wrapf(ErrInvalidSchema, "store %q: index name must not be empty", s.Name)
			}
			if _, ok := indexes[idx.Name]; ok {
				return errors.Wrapf(ErrInvalidSchema, "store %q: duplicate index %q", s.Name, idx.Name)
			}
			indexes[idx.Name] = struct{}{}
			if !idx.KeyPath.inline() {
				return errors.Wrapf(ErrInvalidSchema, "store %q: index %q has no key path", s.Name, idx.Name)
			}
			if err := idx.KeyPath.validate(); err != nil {
				return errors.WithMessagef(err, "store %q index %q", s.Name, idx.Name)
			}
			if idx.MultiEntry && idx.KeyPath.compound() {
				return errors.Wrapf(ErrInvalidSchema, "store %q: multi-entry index %q cannot use a compound key path", s.Name, idx.Name)
			}
		}
	}
	return nil
}
