// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

var errSinkDown = errors.New("sink down")

// The stubs are mutex-guarded so consumer tests can poll them from the
// test goroutine while the consume loop writes.
type stubAnalytical struct {
	mu     sync.Mutex
	fail   bool
	flows  []*models.FlowRecord
	alerts []*models.AlertRecord
}

func (s *stubAnalytical) Name() string { return "analytical" }

func (s *stubAnalytical) InsertFlow(ctx context.Context, f *models.FlowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errSinkDown
	}
	s.flows = append(s.flows, f)
	return nil
}

func (s *stubAnalytical) InsertAlert(ctx context.Context, a *models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errSinkDown
	}
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *stubAnalytical) snapshot() (flows []*models.FlowRecord, alerts []*models.AlertRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(flows, s.flows...), append(alerts, s.alerts...)
}

type stubRelational struct {
	mu     sync.Mutex
	fail   bool
	nextID int64
	flows  []*models.FlowRecord
	alerts []*models.AlertRecord
}

func (s *stubRelational) Name() string { return "relational" }

func (s *stubRelational) InsertFlow(ctx context.Context, f *models.FlowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errSinkDown
	}
	s.flows = append(s.flows, f)
	return nil
}

func (s *stubRelational) InsertAlert(ctx context.Context, a *models.AlertRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return 0, errSinkDown
	}
	s.nextID++
	s.alerts = append(s.alerts, a)
	return s.nextID, nil
}

func (s *stubRelational) snapshot() (flows []*models.FlowRecord, alerts []*models.AlertRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(flows, s.flows...), append(alerts, s.alerts...)
}

func sampleFlow() *models.FlowRecord {
	return &models.FlowRecord{
		Timestamp: time.Now().UTC(),
		SourceIP:  "10.0.0.1",
		Protocol:  models.ProtocolTCP,
	}
}

func sampleAlert(sev models.Severity) *models.AlertRecord {
	return &models.AlertRecord{
		Title:     "port scan detected",
		Severity:  sev,
		AlertType: "recon",
		Status:    models.StatusNew,
		SourceIP:  "45.33.32.156",
		Timestamp: time.Now().UTC(),
	}
}

func TestWriteFlowBothSinks(t *testing.T) {
	analytical := &stubAnalytical{}
	relational := &stubRelational{}
	w := NewWriter(analytical, relational, nil)

	if err := w.WriteFlow(context.Background(), sampleFlow()); err != nil {
		t.Fatalf("WriteFlow error = %v", err)
	}
	if len(analytical.flows) != 1 || len(relational.flows) != 1 {
		t.Errorf("flows written analytical=%d relational=%d, want 1 and 1",
			len(analytical.flows), len(relational.flows))
	}
}

func TestSinkFailuresAreIndependent(t *testing.T) {
	cases := []struct {
		name           string
		analyticalFail bool
		relationalFail bool
	}{
		{"analytical down", true, false},
		{"relational down", false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			analytical := &stubAnalytical{fail: tc.analyticalFail}
			relational := &stubRelational{fail: tc.relationalFail}
			w := NewWriter(analytical, relational, nil)

			if err := w.WriteFlow(context.Background(), sampleFlow()); err != nil {
				t.Fatalf("WriteFlow error = %v, want nil when one sink survives", err)
			}
			if err := w.WriteAlert(context.Background(), sampleAlert(models.SeverityHigh)); err != nil {
				t.Fatalf("WriteAlert error = %v, want nil when one sink survives", err)
			}

			wrote := len(analytical.flows) + len(relational.flows)
			if wrote != 1 {
				t.Errorf("surviving sink wrote %d flows, want 1", wrote)
			}
		})
	}
}

func TestAlertIDThreadedToAnalytical(t *testing.T) {
	analytical := &stubAnalytical{}
	relational := &stubRelational{nextID: 41}
	w := NewWriter(analytical, relational, nil)

	if err := w.WriteAlert(context.Background(), sampleAlert(models.SeverityCritical)); err != nil {
		t.Fatalf("WriteAlert error = %v", err)
	}
	if len(analytical.alerts) != 1 || analytical.alerts[0].ID != 42 {
		t.Errorf("analytical copy id = %d, want relational's 42", analytical.alerts[0].ID)
	}
}

func TestDualFailureSpools(t *testing.T) {
	spool, err := OpenSpool(SpoolConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("OpenSpool error = %v", err)
	}
	defer func() { _ = spool.Close() }()

	analytical := &stubAnalytical{fail: true}
	relational := &stubRelational{fail: true}
	w := NewWriter(analytical, relational, spool)

	flow := sampleFlow()
	if err := w.WriteFlow(context.Background(), flow); err != nil {
		t.Fatalf("WriteFlow error = %v, want nil once spooled", err)
	}

	pending, err := spool.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending error = %v", err)
	}
	if len(pending) != 1 || pending[0].Kind != SpoolKindFlow {
		t.Fatalf("pending = %+v, want one flow entry", pending)
	}

	var replayed models.FlowRecord
	if err := pending[0].UnmarshalPayload(&replayed); err != nil {
		t.Fatalf("UnmarshalPayload error = %v", err)
	}
	if replayed.SourceIP != flow.SourceIP {
		t.Errorf("replayed source IP = %q, want %q", replayed.SourceIP, flow.SourceIP)
	}

	if err := spool.Remove(context.Background(), pending[0].ID); err != nil {
		t.Fatalf("Remove error = %v", err)
	}
	if n, _ := spool.Count(); n != 0 {
		t.Errorf("spool count after removal = %d, want 0", n)
	}
}

func TestDualFailureWithoutSpool(t *testing.T) {
	w := NewWriter(&stubAnalytical{fail: true}, &stubRelational{fail: true}, nil)

	err := w.WriteFlow(context.Background(), sampleFlow())
	if !errors.Is(err, ErrAllSinksFailed) {
		t.Errorf("WriteFlow error = %v, want ErrAllSinksFailed", err)
	}
}
