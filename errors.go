package objectstore

import (
	"github.com/pkg/errors"
)

var (
	ErrUnsupported           = errors.New("no storage engine available")
	ErrUnresolvedTransaction = errors.New("transaction could not be resolved")
	ErrInvalidVersion        = errors.New("version must be a positive integer")
	ErrVersion               = errors.New("requested version is less than the existing version")
	ErrInvalidSchema         = errors.New("invalid schema declaration")
	ErrStoreNotFound         = errors.New("object store not found")
	ErrIndexNotFound         = errors.New("index not found")
	ErrReadOnly              = errors.New("attempted write to read-only transaction")
	ErrConstraint            = errors.New("constraint violation")
	ErrInvalidKey            = errors.New("invalid key")
	ErrInvalidValue          = errors.New("invalid value")
	ErrClosed                = errors.New("factory closed")
)
