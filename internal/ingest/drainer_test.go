// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package ingest

import (
	"context"
	"testing"

	"github.com/campuswatch/campuswatch/internal/models"
)

func newTestSpool(t *testing.T) *Spool {
	t.Helper()
	spool, err := OpenSpool(SpoolConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	t.Cleanup(func() { spool.Close() })
	return spool
}

func TestDrainerReplaysAfterRecovery(t *testing.T) {
	ctx := context.Background()
	analytical := &stubAnalytical{fail: true}
	relational := &stubRelational{fail: true}
	spool := newTestSpool(t)
	writer := NewWriter(analytical, relational, spool)

	if err := writer.WriteFlow(ctx, sampleFlow()); err != nil {
		t.Fatalf("WriteFlow while down: %v", err)
	}
	if err := writer.WriteAlert(ctx, sampleAlert(models.SeverityHigh)); err != nil {
		t.Fatalf("WriteAlert while down: %v", err)
	}
	if n, _ := spool.Count(); n != 2 {
		t.Fatalf("spool count = %d, want 2", n)
	}

	drainer := NewDrainer(spool, writer, 0)

	// Sinks still down: nothing moves.
	drainer.drainOnce(ctx)
	if n, _ := spool.Count(); n != 2 {
		t.Fatalf("spool count after failed drain = %d, want 2", n)
	}

	analytical.fail = false
	relational.fail = false
	drainer.drainOnce(ctx)

	if n, _ := spool.Count(); n != 0 {
		t.Fatalf("spool count after drain = %d, want 0", n)
	}
	flows, alerts := relational.snapshot()
	if len(flows) != 1 || len(alerts) != 1 {
		t.Errorf("relational got %d flows, %d alerts, want 1 each", len(flows), len(alerts))
	}
	flows, alerts = analytical.snapshot()
	if len(flows) != 1 || len(alerts) != 1 {
		t.Errorf("analytical got %d flows, %d alerts, want 1 each", len(flows), len(alerts))
	}
	// the replayed alert carries the relational row id
	if len(alerts) == 1 && alerts[0].ID == 0 {
		t.Error("replayed alert should carry the relational row id")
	}
}

func TestDrainerStopsWhileSinksDown(t *testing.T) {
	ctx := context.Background()
	analytical := &stubAnalytical{fail: true}
	relational := &stubRelational{fail: true}
	spool := newTestSpool(t)
	writer := NewWriter(analytical, relational, spool)

	for i := 0; i < 3; i++ {
		if err := writer.WriteFlow(ctx, sampleFlow()); err != nil {
			t.Fatalf("WriteFlow: %v", err)
		}
	}

	NewDrainer(spool, writer, 0).drainOnce(ctx)
	if n, _ := spool.Count(); n != 3 {
		t.Fatalf("spool count = %d, want 3 untouched entries", n)
	}
}

func TestDrainerDropsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	analytical := &stubAnalytical{}
	relational := &stubRelational{}
	spool := newTestSpool(t)
	writer := NewWriter(analytical, relational, spool)

	if _, err := spool.Put(ctx, "unknown-kind", map[string]string{"x": "y"}, nil); err != nil {
		t.Fatalf("spool put: %v", err)
	}

	NewDrainer(spool, writer, 0).drainOnce(ctx)
	if n, _ := spool.Count(); n != 0 {
		t.Fatalf("spool count = %d, want 0 after dropping unknown kind", n)
	}
}
