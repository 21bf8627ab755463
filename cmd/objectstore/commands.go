package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	"github.com/openrelayxyz/cardinal-objectstore"
	"github.com/openrelayxyz/cardinal-objectstore/resolver"
)

// openExisting opens database at its current version without upgrading.
func openExisting(f *objectstore.Factory, name string) (*objectstore.Handle, error) {
	infos, err := f.Databases()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Name != name {
			continue
		}
		h, err := objectstore.New(f, name, info.Version, nil, nil)
		if err != nil {
			return nil, err
		}
		if err := h.Wait(context.Background()); err != nil {
			return nil, err
		}
		return h, nil
	}
	return nil, fmt.Errorf("database %q does not exist", name)
}

type cmdDatabases struct{}

func (cmd *cmdDatabases) Execute([]string) error {
	f, err := resolver.ResolveFactory(Config.Engine, true)
	if err != nil {
		return err
	}
	defer f.Close()
	infos, err := f.Databases()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, info := range infos {
		if err := enc.Encode(info); err != nil {
			return err
		}
	}
	return nil
}

type dumpRecord struct {
	Store string      `json:"store"`
	Key   interface{} `json:"key,omitempty"`
	Value interface{} `json:"value"`
}

type cmdDump struct {
	Database string `long:"database" short:"d" required:"true" description:"Database to dump"`
	Store    string `long:"store" short:"s" description:"Only dump this store"`
}

func (cmd *cmdDump) Execute([]string) error {
	f, err := resolver.ResolveFactory(Config.Engine, true)
	if err != nil {
		return err
	}
	defer f.Close()
	h, err := openExisting(f, cmd.Database)
	if err != nil {
		return err
	}
	defer h.Close()

	var stores []string
	if cmd.Store != "" {
		stores = []string{cmd.Store}
	}
	return dumpStores(h, stores, os.Stdout)
}

// dumpStores writes the records of stores, or of every store if stores is
// empty, to w as JSON lines.
func dumpStores(h *objectstore.Handle, stores []string, w io.Writer) error {
	if len(stores) == 0 {
		var err error
		if stores, err = h.ObjectStoreNames(); err != nil {
			return err
		}
		if len(stores) == 0 {
			return nil
		}
	}
	jsonStream := json.NewEncoder(w)
	return h.Transaction(stores, objectstore.ReadOnly, func(tx *objectstore.Transaction) error {
		for _, name := range stores {
			s, err := tx.Store(name)
			if err != nil {
				return err
			}
			keys, err := s.GetAllKeys(nil, 0)
			if err != nil {
				return err
			}
			values, err := s.GetAll(nil, 0)
			if err != nil {
				return err
			}
			for i := range keys {
				if err := jsonStream.Encode(dumpRecord{Store: name, Key: toJSON(keys[i]), Value: toJSON(values[i])}); err != nil {
					return err
				}
			}
			log.Debug("Dumped store", "store", name, "records", len(keys))
		}
		return nil
	})
}

type cmdLoad struct {
	Database  string `long:"database" short:"d" required:"true" description:"Database to load into"`
	Store     string `long:"store" short:"s" description:"Store for lines that do not name one"`
	BatchSize int    `long:"batch" default:"1000" description:"Records per transaction"`
}

type loadRecord struct {
	Store string      `json:"store"`
	Key   interface{} `json:"key"`
	Value interface{} `json:"value"`
}

func (cmd *cmdLoad) Execute([]string) error {
	f, err := resolver.ResolveFactory(Config.Engine, false)
	if err != nil {
		return err
	}
	defer f.Close()
	h, err := openExisting(f, cmd.Database)
	if err != nil {
		return err
	}
	defer h.Close()

	counter, err := loadRecords(h, cmd.Store, bufio.NewReader(os.Stdin), cmd.BatchSize)
	log.Info("Loaded records", "count", counter)
	return err
}

// loadRecords puts the JSON lines read from r, batchSize records per
// transaction. Keys are only passed to stores with out-of-line keys; in-line
// stores take the key from the value. It returns the number of records
// written.
func loadRecords(h *objectstore.Handle, defaultStore string, r io.Reader, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	stores, err := h.ObjectStoreNames()
	if err != nil {
		return 0, err
	}
	if len(stores) == 0 {
		return 0, fmt.Errorf("database %q has no stores", h.Name())
	}
	decoder := json.NewDecoder(r)
	counter := 0
	for done := false; !done; {
		written := 0
		if err := h.Transaction(stores, objectstore.ReadWrite, func(tx *objectstore.Transaction) error {
			for written < batchSize {
				var rec loadRecord
				if err := decoder.Decode(&rec); err == io.EOF {
					done = true
					return nil
				} else if err != nil {
					return errors.WithMessagef(err, "line %v", counter+written+1)
				}
				if err := putRecord(tx, defaultStore, &rec); err != nil {
					return errors.WithMessagef(err, "line %v", counter+written+1)
				}
				written++
			}
			return nil
		}); err != nil {
			return counter, err
		}
		counter += written
		log.Debug("Loaded batch", "records", written, "total", counter)
	}
	return counter, nil
}

func putRecord(tx *objectstore.Transaction, defaultStore string, rec *loadRecord) error {
	name := rec.Store
	if name == "" {
		name = defaultStore
	}
	if name == "" {
		return errors.New("no store named")
	}
	s, err := tx.Store(name)
	if err != nil {
		return err
	}
	value, err := fromJSON(rec.Value)
	if err != nil {
		return err
	}
	if rec.Key == nil || len(s.KeyPath()) > 0 {
		_, err = s.Put(value)
		return err
	}
	key, err := fromJSON(rec.Key)
	if err != nil {
		return err
	}
	_, err = s.Put(value, key)
	return err
}

type cmdDelete struct {
	Database string        `long:"database" short:"d" required:"true" description:"Database to delete"`
	Timeout  time.Duration `long:"timeout" default:"30s" description:"How long to wait for open connections to close"`
}

func (cmd *cmdDelete) Execute([]string) error {
	f, err := resolver.ResolveFactory(Config.Engine, false)
	if err != nil {
		return err
	}
	defer f.Close()
	ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
	defer cancel()
	return f.DeleteDatabase(ctx, cmd.Database)
}

type cmdVacuum struct {
	GCTime time.Duration `long:"gc-time" default:"1m" description:"Maximum time to spend collecting garbage"`
}

func (cmd *cmdVacuum) Execute([]string) error {
	f, err := resolver.ResolveFactory(Config.Engine, false)
	if err != nil {
		return err
	}
	defer f.Close()
	f.Vacuum(cmd.GCTime)
	return nil
}
