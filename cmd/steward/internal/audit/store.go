// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/steward/pkg/logging"
)

// keyPrefix namespaces cycle records inside the database.
const keyPrefix = "cycle/"

// keyTimeLayout is fixed-width so byte order matches time order.
// RFC3339Nano trims trailing zeros and would not sort correctly.
const keyTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Config holds store configuration.
type Config struct {
	// Dir is the directory for database files. Ignored when InMemory.
	Dir string

	// InMemory keeps everything in RAM; used by tests.
	InMemory bool

	// MemoryLimit caps the in-process ring of recent records served
	// without touching disk. Zero means 256.
	MemoryLimit int

	Logger *logging.Logger
}

// Store is the durable cycle log.
//
// Description:
//
//	Records go to BadgerDB keyed by timestamp and id, so iteration
//	order is chronological. A bounded in-process ring mirrors the
//	most recent records for cheap status queries.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *logging.Logger

	mu     sync.RWMutex
	recent []CycleRecord
	limit  int
}

// badgerLogger adapts our logger to BadgerDB's interface.
type badgerLogger struct {
	logger *logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open creates the store, creating the directory on first use.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("audit: directory is required for a persistent store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("audit: create directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	limit := cfg.MemoryLimit
	if limit <= 0 {
		limit = 256
	}
	return &Store{db: db, logger: logger, limit: limit}, nil
}

// Append persists one cycle record.
func (s *Store) Append(ctx context.Context, rec CycleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" || rec.Timestamp.IsZero() {
		return errors.New("audit: record needs an id and a timestamp")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}
	key := recordKey(rec)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return fmt.Errorf("audit: write record: %w", err)
	}

	s.mu.Lock()
	s.recent = append(s.recent, rec)
	if len(s.recent) > s.limit {
		s.recent = s.recent[len(s.recent)-s.limit:]
	}
	s.mu.Unlock()

	s.logger.Debug("audit record written", "id", rec.ID, "trigger", string(rec.Trigger))
	return nil
}

// Recent returns up to n records, newest first. It is served from the
// in-process ring when possible and falls back to the database after
// a restart.
func (s *Store) Recent(ctx context.Context, n int) ([]CycleRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	if len(s.recent) >= n {
		out := make([]CycleRecord, n)
		for i := 0; i < n; i++ {
			out[i] = s.recent[len(s.recent)-1-i]
		}
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	return s.scanRecent(ctx, n)
}

// scanRecent walks the database in reverse key order.
func (s *Store) scanRecent(ctx context.Context, n int) ([]CycleRecord, error) {
	var out []CycleRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past the whole prefix.
		seek := append([]byte(keyPrefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix([]byte(keyPrefix)) && len(out) < n; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var rec CycleRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					s.logger.Warn("skipping unreadable audit record", "error", err.Error())
					return nil
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: scan records: %w", err)
	}
	return out, nil
}

// Since returns all records with Timestamp at or after t, oldest first.
func (s *Store) Since(ctx context.Context, t time.Time) ([]CycleRecord, error) {
	var out []CycleRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := []byte(keyPrefix + t.UTC().Format(keyTimeLayout))
		for it.Seek(seek); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var rec CycleRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return nil
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: scan records: %w", err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("audit: count records: %w", err)
	}
	return count, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// recordKey builds "cycle/<RFC3339Nano>/<uuid>" so byte order is
// chronological order.
func recordKey(rec CycleRecord) []byte {
	return []byte(keyPrefix + rec.Timestamp.UTC().Format(keyTimeLayout) + "/" + rec.ID)
}
