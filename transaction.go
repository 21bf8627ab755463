package objectstore

import (
	"github.com/pkg/errors"

	dbpkg "github.com/openrelayxyz/cardinal-objectstore/db"
)

type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// Transaction is a unit of work over a fixed set of stores. It is only valid
// inside the closure passed to Handle.Transaction.
type Transaction struct {
	h     *Handle
	tr    dbpkg.Transaction
	mode  Mode
	scope map[string]*storeMeta
	done  bool
	err   error
}

// Transaction runs fn in a new transaction scoped to stores. In ReadWrite mode
// the changes are committed if fn returns nil and no request failed; otherwise
// they are discarded and the error is returned.
func (h *Handle) Transaction(stores []string, mode Mode, fn func(*Transaction) error) error {
	conn, err := h.connection()
	if err != nil {
		return err
	}
	if len(stores) == 0 {
		return errors.Wrap(ErrStoreNotFound, "transaction scope is empty")
	}
	tx := &Transaction{
		h:     h,
		mode:  mode,
		scope: make(map[string]*storeMeta, len(stores)),
	}
	for _, name := range stores {
		sm := conn.meta.store(name)
		if sm == nil {
			return errors.Wrapf(ErrStoreNotFound, "%q in database %q", name, h.name)
		}
		tx.scope[name] = sm
	}
	run := func(tr dbpkg.Transaction) error {
		tx.tr = tr
		defer func() { tx.done = true }()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.err
	}
	if mode != ReadWrite {
		return h.factory.db.View(run)
	}
	st := h.factory.state(h.name)
	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	return h.factory.db.Update(run)
}

func (t *Transaction) Mode() Mode {
	return t.mode
}

// Store returns the named store if it is within the transaction's scope.
func (t *Transaction) Store(name string) (*ObjectStore, error) {
	if t.done {
		return nil, errors.Wrap(ErrUnresolvedTransaction, "transaction has finished")
	}
	sm, ok := t.scope[name]
	if !ok {
		return nil, errors.Wrapf(ErrStoreNotFound, "%q is not in the transaction scope", name)
	}
	return &ObjectStore{
		tx:     t,
		meta:   sm,
		prefix: recordPrefix(t.h.name, sm.Name),
	}, nil
}

func (t *Transaction) writable() error {
	if t.done {
		return errors.Wrap(ErrUnresolvedTransaction, "transaction has finished")
	}
	if t.mode != ReadWrite {
		return ErrReadOnly
	}
	return nil
}

// fail records a failed write. The transaction will not commit even if the
// closure swallows the error.
func (t *Transaction) fail(err error) error {
	if t.err == nil {
		t.err = err
	}
	return err
}
