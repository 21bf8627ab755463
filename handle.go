package objectstore

import (
	"context"
	"sync"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	dbpkg "github.com/openrelayxyz/cardinal-objectstore/db"
)

// Hooks are optional callbacks for events of the open handshake and of the
// open connection. Absent callbacks are skipped.
type Hooks struct {
	// OnBlocked fires when an upgrade has to wait for other open connections
	// to the database to close.
	OnBlocked func(oldVersion, newVersion uint64)
	// OnVersionChange fires when another connection wants to upgrade or delete
	// the database (newVersion is 0 for a deletion). The callee is expected to
	// Close the handle. Without this hook the handle closes itself.
	OnVersionChange func(oldVersion, newVersion uint64)
	// OnError fires if the open handshake fails.
	OnError func(err error)
}

// Handle is a connection to one named, versioned database. Operations fail
// with ErrUnresolvedTransaction until the open handshake has succeeded, and
// again once the handle is closed.
type Handle struct {
	factory *Factory
	name    string
	version uint64
	schema  []StoreSchema
	hooks   Hooks
	log     log.Logger

	mu     sync.RWMutex
	conn   *connection
	closed bool
	ready  chan struct{}
	err    error
}

type connection struct {
	meta *databaseMeta
}

// New starts opening database name at version, applying schema if the
// database has to be created or upgraded. The handshake runs in the
// background; use Wait or Ready to learn when it settles.
func New(f *Factory, name string, version uint64, schema []StoreSchema, hooks *Hooks) (*Handle, error) {
	if !f.supported() {
		return nil, ErrUnsupported
	}
	if version == 0 {
		return nil, ErrInvalidVersion
	}
	if err := validateSchema(schema); err != nil {
		return nil, err
	}
	h := &Handle{
		factory: f,
		name:    name,
		version: version,
		schema:  schema,
		log:     log.New("db", name),
		ready:   make(chan struct{}),
	}
	if hooks != nil {
		h.hooks = *hooks
	}
	go h.open()
	return h, nil
}

func (h *Handle) Name() string {
	return h.name
}

// Version returns the version the handle was opened with.
func (h *Handle) Version() uint64 {
	return h.version
}

// Ready is closed once the open handshake has succeeded or failed.
func (h *Handle) Ready() <-chan struct{} {
	return h.ready
}

// Wait blocks until the open handshake settles or ctx is done, returning the
// handshake error if there was one.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// ObjectStoreNames lists the stores of the open database in creation order.
func (h *Handle) ObjectStoreNames() ([]string, error) {
	conn, err := h.connection()
	if err != nil {
		return nil, err
	}
	return conn.meta.storeNames(), nil
}

// Close detaches the handle from the database. Transactions already running
// complete; new ones fail.
func (h *Handle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.conn = nil
	h.mu.Unlock()
	h.factory.unregister(h)
	h.log.Debug("Closed database handle", "version", h.version)
}

func (h *Handle) connection() (*connection, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.conn == nil {
		return nil, ErrUnresolvedTransaction
	}
	return h.conn, nil
}

func (h *Handle) versionChange(oldVersion, newVersion uint64) {
	if h.hooks.OnVersionChange != nil {
		h.hooks.OnVersionChange(oldVersion, newVersion)
		return
	}
	h.log.Debug("Closing on version change", "old", oldVersion, "new", newVersion)
	h.Close()
}

func (h *Handle) open() {
	start := time.Now()
	err := h.handshake()
	if err != nil {
		openTotal.WithLabelValues("error").Inc()
		h.log.Error("Error opening database", "version", h.version, "err", err)
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		if h.hooks.OnError != nil {
			h.hooks.OnError(err)
		}
	} else {
		openTotal.WithLabelValues("ok").Inc()
		h.log.Debug("Opened database", "version", h.version, "elapsed", time.Since(start))
	}
	close(h.ready)
}

func (h *Handle) handshake() error {
	f := h.factory
	st := f.state(h.name)
	st.openMu.Lock()
	defer st.openMu.Unlock()

	var meta *databaseMeta
	if err := f.db.View(func(tr dbpkg.Transaction) (err error) {
		meta, err = loadMeta(tr, h.name)
		return err
	}); err != nil {
		return err
	}
	oldVersion := uint64(meta.Version)
	if h.version < oldVersion {
		return errors.Wrapf(ErrVersion, "%q is at version %v, requested %v", h.name, oldVersion, h.version)
	}
	if h.version > oldVersion {
		var err error
		if meta, err = h.upgrade(st, oldVersion); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.Wrapf(ErrUnresolvedTransaction, "%q closed before open completed", h.name)
	}
	if err := f.register(h); err != nil {
		return err
	}
	h.conn = &connection{meta: meta}
	return nil
}

// upgrade waits for other connections to close, then reconciles the declared
// schema with the stored one in a single engine transaction.
func (h *Handle) upgrade(st *databaseState, oldVersion uint64) (*databaseMeta, error) {
	f := h.factory
	notifyVersionChange(f.connections(h.name), oldVersion, h.version)
	if err := f.waitForClose(context.Background(), h.name, func() {
		h.log.Warn("Upgrade blocked by open connections", "old", oldVersion, "new", h.version)
		if h.hooks.OnBlocked != nil {
			h.hooks.OnBlocked(oldVersion, h.version)
		}
	}); err != nil {
		return nil, err
	}
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return nil, errors.Wrapf(ErrUnresolvedTransaction, "%q closed before upgrade", h.name)
	}

	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	var meta *databaseMeta
	err := f.db.Update(func(tr dbpkg.Transaction) (err error) {
		if meta, err = loadMeta(tr, h.name); err != nil {
			return err
		}
		for _, s := range h.schema {
			if s.Recreate && meta.store(s.Name) != nil {
				if err := deleteStoreData(tr, h.name, s.Name); err != nil {
					return errors.WithMessagef(err, "dropping store %q", s.Name)
				}
				meta.removeStore(s.Name)
				h.log.Debug("Dropped store for recreation", "store", s.Name)
			}
			if meta.store(s.Name) == nil {
				meta.Stores = append(meta.Stores, newStoreMeta(s))
				h.log.Debug("Created store", "store", s.Name, "keyPath", s.KeyPath, "autoIncrement", s.AutoIncrement, "indexes", len(s.Indexes))
			}
		}
		meta.Version = int64(h.version)
		return saveMeta(tr, meta)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "upgrading %q from %v to %v", h.name, oldVersion, h.version)
	}
	upgradesTotal.Inc()
	h.log.Info("Upgraded database", "old", oldVersion, "new", h.version)
	return meta, nil
}
