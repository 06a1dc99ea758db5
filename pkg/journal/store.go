package journal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// DefaultRetain is the number of records kept when Config.Retain is zero.
const DefaultRetain = 200

// Config configures the journal database.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the journal in memory only (tests, ephemeral runs).
	InMemory bool

	// Retain is the maximum number of records kept; older ones are pruned
	// on write.
	Retain int
}

// Journal stores operation records in BadgerDB.
//
// Thread Safety:
// Safe for concurrent use; BadgerDB transactions serialize conflicting writes.
type Journal struct {
	db     *badger.DB
	retain int
}

// Open opens (or creates) the journal database.
func Open(cfg Config) (*Journal, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", cfg.Path, err)
	}

	retain := cfg.Retain
	if retain <= 0 {
		retain = DefaultRetain
	}

	return &Journal{db: db, retain: retain}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Put inserts or replaces rec, then prunes records beyond the retention limit.
func (j *Journal) Put(rec *Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode journal record %s: %w", rec.ID, err)
	}

	key := keyOperation(rec)
	err = j.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(keyIndex(rec.ID), key)
	})
	if err != nil {
		return fmt.Errorf("write journal record %s: %w", rec.ID, err)
	}

	return j.prune()
}

// Get returns the record with the given id.
func (j *Journal) Get(id string) (*Record, error) {
	var rec Record

	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyIndex(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return err
		}

		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (j *Journal) List(limit int) ([]Record, error) {
	records := []Record{}

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixOperation)
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append([]byte(prefixOperation), 0xff)); it.Valid(); it.Next() {
			if limit > 0 && len(records) >= limit {
				return nil
			}

			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode journal record %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// prune deletes the oldest records beyond the retention limit.
func (j *Journal) prune() error {
	var stale [][]byte

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixOperation)
		opts.Reverse = true
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		seen := 0
		for it.Seek(append([]byte(prefixOperation), 0xff)); it.Valid(); it.Next() {
			seen++
			if seen > j.retain {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil || len(stale) == 0 {
		return err
	}

	return j.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
			id := key[len(prefixOperation)+21:]
			if err := txn.Delete(keyIndex(string(id))); err != nil {
				return err
			}
		}
		return nil
	})
}
