// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package ingest

import (
	"context"
	"errors"

	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/metrics"
	"github.com/campuswatch/campuswatch/internal/models"
)

// AnalyticalSink is the write surface of the analytical store.
type AnalyticalSink interface {
	Name() string
	InsertFlow(ctx context.Context, f *models.FlowRecord) error
	InsertAlert(ctx context.Context, a *models.AlertRecord) error
}

// RelationalSink is the write surface of the relational store. Alert
// inserts return the assigned row id, which the writer threads through to
// the analytical copy so both stores list the same alert ids.
type RelationalSink interface {
	Name() string
	InsertFlow(ctx context.Context, f *models.FlowRecord) error
	InsertAlert(ctx context.Context, a *models.AlertRecord) (int64, error)
}

// Writer persists each normalized record to both stores. The two writes
// are independent: one sink failing never blocks the other, and a record
// both sinks reject goes to the durable spool instead of being dropped.
type Writer struct {
	analytical AnalyticalSink
	relational RelationalSink
	spool      *Spool
}

// NewWriter creates the dual-sink writer. The spool may be nil; records
// rejected by both sinks are then lost after logging.
func NewWriter(analytical AnalyticalSink, relational RelationalSink, spool *Spool) *Writer {
	return &Writer{analytical: analytical, relational: relational, spool: spool}
}

// WriteFlow writes one flow record to both sinks.
func (w *Writer) WriteFlow(ctx context.Context, f *models.FlowRecord) error {
	aErr := w.analytical.InsertFlow(ctx, f)
	metrics.RecordSinkWrite(w.analytical.Name(), aErr)
	if aErr != nil {
		logging.Error().Err(aErr).Str("sink", w.analytical.Name()).Msg("Flow write failed")
	}

	rErr := w.relational.InsertFlow(ctx, f)
	metrics.RecordSinkWrite(w.relational.Name(), rErr)
	if rErr != nil {
		logging.Error().Err(rErr).Str("sink", w.relational.Name()).Msg("Flow write failed")
	}

	if aErr != nil && rErr != nil {
		return w.spoolRecord(ctx, SpoolKindFlow, f, errors.Join(aErr, rErr))
	}
	return nil
}

// WriteAlert writes one alert record to both sinks. The relational insert
// runs first so its row id can be carried into the analytical copy; when
// it fails the analytical copy is written anyway with a zero id.
func (w *Writer) WriteAlert(ctx context.Context, a *models.AlertRecord) error {
	id, rErr := w.relational.InsertAlert(ctx, a)
	metrics.RecordSinkWrite(w.relational.Name(), rErr)
	if rErr != nil {
		logging.Error().Err(rErr).Str("sink", w.relational.Name()).Msg("Alert write failed")
	} else {
		a.ID = id
	}

	aErr := w.analytical.InsertAlert(ctx, a)
	metrics.RecordSinkWrite(w.analytical.Name(), aErr)
	if aErr != nil {
		logging.Error().Err(aErr).Str("sink", w.analytical.Name()).Msg("Alert write failed")
	}

	if aErr != nil && rErr != nil {
		return w.spoolRecord(ctx, SpoolKindAlert, a, errors.Join(aErr, rErr))
	}
	return nil
}

func (w *Writer) spoolRecord(ctx context.Context, kind string, record any, cause error) error {
	if w.spool == nil {
		logging.Error().Err(cause).Str("kind", kind).Msg("Record lost: both sinks failed and no spool configured")
		return errors.Join(ErrAllSinksFailed, cause)
	}

	id, err := w.spool.Put(ctx, kind, record, cause)
	if err != nil {
		logging.Error().Err(err).Str("kind", kind).Msg("Record lost: both sinks and the spool failed")
		return errors.Join(ErrAllSinksFailed, cause, err)
	}

	logging.Warn().
		Str("kind", kind).
		Str("spool_id", id).
		Msg("Both sinks failed, record spooled for replay")
	return nil
}
