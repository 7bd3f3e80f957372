// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/metrics"
)

// Spool record kinds.
const (
	SpoolKindFlow  = "flow"
	SpoolKindAlert = "alert"
)

// SpoolEntry is one record that failed both sinks, held durably for
// operator-driven replay.
type SpoolEntry struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	LastError string          `json:"last_error,omitempty"`
}

// UnmarshalPayload deserializes the spooled record into v.
func (e *SpoolEntry) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Spool is a BadgerDB-backed holding pen for records that could not be
// written to either sink. Entries survive process restarts; fsync per write
// when SyncWrites is on.
type Spool struct {
	db *badger.DB
}

// OpenSpool opens (or creates) the spool at the configured path.
func OpenSpool(cfg SpoolConfig) (*Spool, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}

	s := &Spool{db: db}
	if n, err := s.Count(); err == nil {
		metrics.SpoolEntries.Set(float64(n))
		if n > 0 {
			logging.Warn().Int("entries", n).Msg("Spool holds unreplayed records from a previous run")
		}
	}
	return s, nil
}

// Put persists one failed record.
func (s *Spool) Put(ctx context.Context, kind string, record any, cause error) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal spool payload: %w", err)
	}

	entry := SpoolEntry{
		ID:        uuid.New().String(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if cause != nil {
		entry.LastError = cause.Error()
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return "", fmt.Errorf("marshal spool entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(entry.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("write spool entry: %w", err)
	}

	metrics.SpoolWrites.Inc()
	metrics.SpoolEntries.Inc()
	return entry.ID, nil
}

// Pending returns all spooled entries, oldest first.
func (s *Spool) Pending(ctx context.Context) ([]*SpoolEntry, error) {
	var entries []*SpoolEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e SpoolEntry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				entries = append(entries, &e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read spool: %w", err)
	}

	// Badger iterates in key order; order by write time instead.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].CreatedAt.Before(entries[j-1].CreatedAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	return entries, nil
}

// Remove drops a replayed entry.
func (s *Spool) Remove(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("remove spool entry %s: %w", id, err)
	}
	metrics.SpoolEntries.Dec()
	return nil
}

// Count returns the number of spooled entries.
func (s *Spool) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close shuts the spool down.
func (s *Spool) Close() error {
	return s.db.Close()
}
