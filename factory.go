package objectstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamba/avro"
	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	dbpkg "github.com/openrelayxyz/cardinal-objectstore/db"
)

// Factory owns a storage engine and coordinates every connection opened on
// it. Opens, upgrades and deletions of one database are serialized, as are
// its readwrite transactions.
type Factory struct {
	db     dbpkg.Database
	mu     sync.Mutex
	cond   *sync.Cond
	dbs    map[string]*databaseState
	closed bool
}

type databaseState struct {
	openMu  sync.Mutex
	writeMu sync.Mutex
	conns   map[*Handle]struct{}
}

// DatabaseInfo names an existing database and its current version.
type DatabaseInfo struct {
	Name    string
	Version uint64
}

func NewFactory(db dbpkg.Database) *Factory {
	f := &Factory{
		db:  db,
		dbs: make(map[string]*databaseState),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Factory) supported() bool {
	return f != nil && f.db != nil
}

func (f *Factory) state(name string) *databaseState {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.dbs[name]
	if !ok {
		st = &databaseState{conns: make(map[*Handle]struct{})}
		f.dbs[name] = st
	}
	return st
}

func (f *Factory) register(h *Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.dbs[h.name].conns[h] = struct{}{}
	return nil
}

func (f *Factory) unregister(h *Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.dbs[h.name]; ok {
		delete(st.conns, h)
	}
	f.cond.Broadcast()
}

func (f *Factory) connections(name string) []*Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.dbs[name]
	if !ok {
		return nil
	}
	handles := make([]*Handle, 0, len(st.conns))
	for h := range st.conns {
		handles = append(handles, h)
	}
	return handles
}

// waitForClose blocks until no connection to name remains open. onBlocked is
// invoked once, without the lock held, if waiting is necessary.
func (f *Factory) waitForClose(ctx context.Context, name string, onBlocked func()) error {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()
	f.mu.Lock()
	defer f.mu.Unlock()
	notified := false
	for len(f.dbs[name].conns) > 0 {
		if f.closed {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !notified && onBlocked != nil {
			notified = true
			f.mu.Unlock()
			onBlocked()
			f.mu.Lock()
			continue
		}
		f.cond.Wait()
	}
	return nil
}

func notifyVersionChange(handles []*Handle, oldVersion, newVersion uint64) {
	for _, h := range handles {
		h.versionChange(oldVersion, newVersion)
	}
}

// Databases lists every database stored in the engine, ordered by name.
func (f *Factory) Databases() ([]DatabaseInfo, error) {
	if !f.supported() {
		return nil, ErrUnsupported
	}
	var infos []DatabaseInfo
	err := f.db.View(func(tr dbpkg.Transaction) error {
		iter := tr.Iterator([]byte{metaTag}, nil)
		defer iter.Close()
		for iter.Next() {
			meta := &databaseMeta{}
			if err := avro.Unmarshal(metaSchema, iter.Value(), meta); err != nil {
				return errors.WithMessagef(err, "decoding metadata at %x", iter.Key())
			}
			infos = append(infos, DatabaseInfo{Name: meta.Name, Version: uint64(meta.Version)})
		}
		return iter.Error()
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, err
}

// DeleteDatabase removes a database and all of its stores. Open connections
// receive a version change to 0; the deletion waits until they have closed or
// ctx is done. Deleting a database that does not exist is not an error.
func (f *Factory) DeleteDatabase(ctx context.Context, name string) error {
	if !f.supported() {
		return ErrUnsupported
	}
	st := f.state(name)
	st.openMu.Lock()
	defer st.openMu.Unlock()

	var meta *databaseMeta
	if err := f.db.View(func(tr dbpkg.Transaction) (err error) {
		meta, err = loadMeta(tr, name)
		return err
	}); err != nil {
		return err
	}
	notifyVersionChange(f.connections(name), uint64(meta.Version), 0)
	if err := f.waitForClose(ctx, name, func() {
		log.Warn("Database deletion blocked by open connections", "db", name)
	}); err != nil {
		return errors.WithMessagef(err, "deleting %q", name)
	}

	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	deleted := 0
	if err := f.db.Update(func(tr dbpkg.Transaction) error {
		for _, tag := range databaseTags {
			n, err := deletePrefix(tr, databasePrefix(tag, name))
			if err != nil {
				return err
			}
			deleted += n
		}
		return nil
	}); err != nil {
		return errors.WithMessagef(err, "deleting %q", name)
	}
	log.Info("Deleted database", "db", name, "version", meta.Version, "keys", deleted)
	return nil
}

// Vacuum runs engine garbage collection until the engine reports nothing left
// to reclaim or gcTime elapses.
func (f *Factory) Vacuum(gcTime time.Duration) {
	log.Info("Beginning vacuum")
	start := time.Now()
	for time.Since(start) < gcTime {
		if !f.db.Vacuum() {
			log.Info("DB Vacuum Is Complete")
			return
		}
	}
	log.Warn("DB vacuum timed out")
}

// Close closes every open handle and then the engine.
func (f *Factory) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	var handles []*Handle
	for _, st := range f.dbs {
		for h := range st.conns {
			handles = append(handles, h)
		}
	}
	f.cond.Broadcast()
	f.mu.Unlock()
	for _, h := range handles {
		h.Close()
	}
	log.Info("Shutting down object store")
	f.db.Close()
}
