// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/models"
)

// DefaultDrainInterval is how often the drainer retries spooled records.
const DefaultDrainInterval = 30 * time.Second

// Drainer replays spooled records back through the writer once the
// sinks recover. Entries are removed only after a successful write, so
// a crash mid-replay re-delivers rather than drops.
type Drainer struct {
	spool    *Spool
	writer   *Writer
	interval time.Duration
}

// NewDrainer creates a spool drainer. A zero interval falls back to
// DefaultDrainInterval.
func NewDrainer(spool *Spool, writer *Writer, interval time.Duration) *Drainer {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	return &Drainer{spool: spool, writer: writer, interval: interval}
}

// Run retries the spool on an interval until the context is canceled.
func (d *Drainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

// drainOnce attempts every pending entry in insertion order, stopping
// early when the sinks are still rejecting writes.
func (d *Drainer) drainOnce(ctx context.Context) {
	entries, err := d.spool.Pending(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Spool scan failed")
		return
	}
	if len(entries) == 0 {
		return
	}

	replayed := 0
	for _, entry := range entries {
		err := d.replay(ctx, entry)
		if err != nil && !errors.Is(err, errDropEntry) {
			// Sinks are still down; later entries will fail too.
			logging.Debug().Err(err).Str("spool_id", entry.ID).Msg("Spool replay still failing")
			break
		}
		if err := d.spool.Remove(ctx, entry.ID); err != nil {
			logging.Error().Err(err).Str("spool_id", entry.ID).Msg("Failed to remove replayed spool entry")
			break
		}
		replayed++
	}

	if replayed > 0 {
		logging.Info().Int("replayed", replayed).Int("pending", len(entries)-replayed).Msg("Replayed spooled records")
	}
}

// errDropEntry marks entries that cannot be replayed and should be
// removed instead of retried forever.
var errDropEntry = errors.New("drop spool entry")

// replay writes one spooled record directly to the sinks. Going through
// Writer would re-spool on dual failure and duplicate the entry.
func (d *Drainer) replay(ctx context.Context, entry *SpoolEntry) error {
	switch entry.Kind {
	case SpoolKindFlow:
		var flow models.FlowRecord
		if err := entry.UnmarshalPayload(&flow); err != nil {
			logging.Error().Err(err).Str("spool_id", entry.ID).Msg("Corrupt spool entry, dropping")
			return errDropEntry
		}
		aErr := d.writer.analytical.InsertFlow(ctx, &flow)
		rErr := d.writer.relational.InsertFlow(ctx, &flow)
		if aErr != nil && rErr != nil {
			return errors.Join(aErr, rErr)
		}
		return nil

	case SpoolKindAlert:
		var alert models.AlertRecord
		if err := entry.UnmarshalPayload(&alert); err != nil {
			logging.Error().Err(err).Str("spool_id", entry.ID).Msg("Corrupt spool entry, dropping")
			return errDropEntry
		}
		id, rErr := d.writer.relational.InsertAlert(ctx, &alert)
		if rErr == nil {
			alert.ID = id
		}
		aErr := d.writer.analytical.InsertAlert(ctx, &alert)
		if aErr != nil && rErr != nil {
			return errors.Join(aErr, rErr)
		}
		return nil

	default:
		logging.Warn().Str("kind", entry.Kind).Str("spool_id", entry.ID).Msg("Unknown spool entry kind, dropping")
		return errDropEntry
	}
}
