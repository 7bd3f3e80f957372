// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package analytics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/campuswatch/campuswatch/internal/cache"
	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

var errStoreDown = errors.New("store down")

// stubSource is a scripted aggregation source counting calls per query.
type stubSource struct {
	name     string
	fail     bool
	calls    map[string]int
	total    uint64
	buckets  []models.TimelineBucket
	talkers  []models.TalkerStat
	protos   []models.ProtocolStat
	sevs     map[models.Severity]uint64
	recent   []models.AlertSummary
	active   uint64
	lastTopN int
}

func newStub(name string) *stubSource {
	return &stubSource{name: name, calls: make(map[string]int), sevs: map[models.Severity]uint64{}}
}

func (s *stubSource) record(q string) error {
	s.calls[q]++
	if s.fail {
		return errStoreDown
	}
	return nil
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) TotalBytes(ctx context.Context, start, end time.Time) (uint64, error) {
	return s.total, s.record("total_bytes")
}

func (s *stubSource) Timeline(ctx context.Context, start, end time.Time, bucketSize time.Duration) ([]models.TimelineBucket, error) {
	return s.buckets, s.record("timeline")
}

func (s *stubSource) TopSourceIPs(ctx context.Context, start, end time.Time, n int) ([]models.TalkerStat, error) {
	s.lastTopN = n
	return s.talkers, s.record("top_source_ips")
}

func (s *stubSource) ProtocolDistribution(ctx context.Context, start, end time.Time) ([]models.ProtocolStat, error) {
	return s.protos, s.record("protocol_distribution")
}

func (s *stubSource) AlertsBySeverity(ctx context.Context, start, end time.Time) (map[models.Severity]uint64, error) {
	return s.sevs, s.record("alerts_by_severity")
}

func (s *stubSource) RecentAlerts(ctx context.Context, start, end time.Time, limit int) ([]models.AlertSummary, error) {
	return s.recent, s.record("recent_alerts")
}

func (s *stubSource) ActiveConnections(ctx context.Context) (uint64, error) {
	return s.active, s.record("active_connections")
}

func (s *stubSource) Ping(ctx context.Context) error {
	if s.fail {
		return errStoreDown
	}
	return nil
}

func TestAnalyticalPreferred(t *testing.T) {
	analytical := newStub("analytical")
	analytical.total = 1000
	relational := newStub("relational")
	relational.total = 999

	e := NewEngine(analytical, relational, nil, Options{})
	start, end := e.Window()

	total, err := e.TotalBytes(context.Background(), start, end)
	if err != nil {
		t.Fatalf("TotalBytes error = %v", err)
	}
	if total != 1000 {
		t.Errorf("TotalBytes = %d, want analytical's 1000", total)
	}
	if relational.calls["total_bytes"] != 0 {
		t.Error("relational store queried while analytical is healthy")
	}
}

func TestFallbackOnAnalyticalFailure(t *testing.T) {
	analytical := newStub("analytical")
	analytical.fail = true
	relational := newStub("relational")
	relational.total = 777

	e := NewEngine(analytical, relational, nil, Options{})
	start, end := e.Window()

	total, err := e.TotalBytes(context.Background(), start, end)
	if err != nil {
		t.Fatalf("TotalBytes error = %v", err)
	}
	if total != 777 {
		t.Errorf("TotalBytes = %d, want fallback's 777", total)
	}
	if analytical.calls["total_bytes"] != 1 || relational.calls["total_bytes"] != 1 {
		t.Errorf("calls analytical=%d relational=%d, want 1 and 1",
			analytical.calls["total_bytes"], relational.calls["total_bytes"])
	}
}

func TestBothSourcesFailed(t *testing.T) {
	analytical := newStub("analytical")
	analytical.fail = true
	relational := newStub("relational")
	relational.fail = true

	e := NewEngine(analytical, relational, nil, Options{})
	start, end := e.Window()

	if _, err := e.TotalBytes(context.Background(), start, end); !errors.Is(err, ErrAllSourcesFailed) {
		t.Errorf("TotalBytes error = %v, want ErrAllSourcesFailed", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	analytical := newStub("analytical")
	analytical.fail = true
	relational := newStub("relational")

	e := NewEngine(analytical, relational, nil, Options{})
	ctx := context.Background()
	start, end := e.Window()

	for i := 0; i < 8; i++ {
		if _, err := e.TotalBytes(ctx, start, end); err != nil {
			t.Fatalf("query %d error = %v", i, err)
		}
	}

	// The breaker trips after 5 consecutive failures; later queries go
	// straight to the fallback without touching the analytical store.
	if analytical.calls["total_bytes"] >= 8 {
		t.Errorf("analytical called %d times, breaker never opened", analytical.calls["total_bytes"])
	}
	if relational.calls["total_bytes"] != 8 {
		t.Errorf("relational called %d times, want 8", relational.calls["total_bytes"])
	}
}

func TestTimelineZeroFill(t *testing.T) {
	start := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	analytical := newStub("analytical")
	analytical.buckets = []models.TimelineBucket{
		{BucketStart: start.Add(3 * time.Hour), Bytes: 500, Count: 2},
		{BucketStart: start.Add(20 * time.Hour), Bytes: 100, Count: 1},
	}

	e := NewEngine(analytical, newStub("relational"), nil, Options{})
	buckets, err := e.Timeline(context.Background(), start, end, time.Hour)
	if err != nil {
		t.Fatalf("Timeline error = %v", err)
	}

	if len(buckets) != 24 {
		t.Fatalf("Timeline len = %d, want exactly 24 buckets", len(buckets))
	}
	for i, b := range buckets {
		want := start.Add(time.Duration(i) * time.Hour)
		if !b.BucketStart.Equal(want) {
			t.Fatalf("buckets[%d].BucketStart = %v, want %v", i, b.BucketStart, want)
		}
	}
	if buckets[3].Bytes != 500 || buckets[20].Bytes != 100 {
		t.Errorf("populated buckets misplaced: [3]=%+v [20]=%+v", buckets[3], buckets[20])
	}
	if buckets[0].Bytes != 0 || buckets[23].Count != 0 {
		t.Error("empty buckets not zeroed")
	}
}

func TestFallbackEquivalence(t *testing.T) {
	// Both sources hold the same logical data but return it in different
	// orders; the engine must normalize them to identical output.
	start := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	talkersA := []models.TalkerStat{
		{IP: "10.0.0.2", TotalBytes: 50, Count: 3},
		{IP: "10.0.0.1", TotalBytes: 900, Count: 1},
	}
	talkersB := []models.TalkerStat{
		{IP: "10.0.0.1", TotalBytes: 900, Count: 1},
		{IP: "10.0.0.2", TotalBytes: 50, Count: 3},
	}

	healthy := newStub("analytical")
	healthy.talkers = talkersA
	e1 := NewEngine(healthy, newStub("relational"), nil, Options{})

	broken := newStub("analytical")
	broken.fail = true
	fallback := newStub("relational")
	fallback.talkers = talkersB
	e2 := NewEngine(broken, fallback, nil, Options{})

	got1, err := e1.TopSourceIPs(context.Background(), start, end, 10)
	if err != nil {
		t.Fatal(err)
	}
	got2, err := e2.TopSourceIPs(context.Background(), start, end, 10)
	if err != nil {
		t.Fatal(err)
	}

	if len(got1) != len(got2) {
		t.Fatalf("result lengths differ: %d vs %d", len(got1), len(got2))
	}
	for i := range got1 {
		if got1[i] != got2[i] {
			t.Errorf("results diverge at %d: %+v vs %+v", i, got1[i], got2[i])
		}
	}
	if got1[0].IP != "10.0.0.2" {
		t.Errorf("ordering wrong: count must dominate bytes, got %+v first", got1[0])
	}
}

func TestProtocolDistributionOrderedByBytes(t *testing.T) {
	// A chatty low-volume protocol must not outrank a quiet heavy one:
	// the distribution is ordered by total bytes, not event count.
	analytical := newStub("analytical")
	analytical.protos = []models.ProtocolStat{
		{Protocol: "UDP", Count: 100, TotalBytes: 10},
		{Protocol: "TCP", Count: 1, TotalBytes: 999999},
		{Protocol: "ICMP", Count: 5, TotalBytes: 10},
	}

	e := NewEngine(analytical, newStub("relational"), nil, Options{})
	start, end := e.Window()

	protos, err := e.ProtocolDistribution(context.Background(), start, end)
	if err != nil {
		t.Fatalf("ProtocolDistribution error = %v", err)
	}
	if len(protos) != 3 {
		t.Fatalf("len = %d, want 3", len(protos))
	}
	if protos[0].Protocol != "TCP" {
		t.Errorf("first protocol = %q, want byte-heavy TCP", protos[0].Protocol)
	}
	// Equal byte totals break ties by protocol name.
	if protos[1].Protocol != "ICMP" || protos[2].Protocol != "UDP" {
		t.Errorf("tie order = %q, %q, want ICMP then UDP", protos[1].Protocol, protos[2].Protocol)
	}
}

func TestAlertsBySeverityZeroFilled(t *testing.T) {
	analytical := newStub("analytical")
	analytical.sevs = map[models.Severity]uint64{models.SeverityHigh: 4}

	e := NewEngine(analytical, newStub("relational"), nil, Options{})
	start, end := e.Window()

	counts, err := e.AlertsBySeverity(context.Background(), start, end)
	if err != nil {
		t.Fatalf("AlertsBySeverity error = %v", err)
	}
	if len(counts) != len(models.Severities) {
		t.Fatalf("len = %d, want one entry per severity", len(counts))
	}
	for i, sev := range models.Severities {
		if counts[i].Severity != sev {
			t.Errorf("counts[%d].Severity = %q, want %q", i, counts[i].Severity, sev)
		}
	}
	if counts[1].Count != 4 || counts[0].Count != 0 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestActiveConnectionsAlwaysRelational(t *testing.T) {
	analytical := newStub("analytical")
	relational := newStub("relational")
	relational.active = 12

	e := NewEngine(analytical, relational, nil, Options{})
	count, err := e.ActiveConnections(context.Background())
	if err != nil {
		t.Fatalf("ActiveConnections error = %v", err)
	}
	if count != 12 {
		t.Errorf("ActiveConnections = %d, want 12", count)
	}
	if analytical.calls["active_connections"] != 0 {
		t.Error("analytical store consulted for active connections")
	}
}

func TestDashboardSnapshotCached(t *testing.T) {
	analytical := newStub("analytical")
	analytical.total = 4096
	relational := newStub("relational")
	relational.active = 3

	c := cache.New(cache.SnapshotTTL)
	defer c.Close()

	e := NewEngine(analytical, relational, c, Options{})
	ctx := context.Background()

	first, err := e.Dashboard(ctx, "alice")
	if err != nil {
		t.Fatalf("Dashboard error = %v", err)
	}
	if first.Metrics.TotalTraffic != 4096 || first.Metrics.ActiveConnections != 3 {
		t.Errorf("snapshot metrics = %+v", first.Metrics)
	}
	if analytical.lastTopN != 5 {
		t.Errorf("snapshot top talkers n = %d, want default 5", analytical.lastTopN)
	}

	callsBefore := analytical.calls["total_bytes"]
	second, err := e.Dashboard(ctx, "alice")
	if err != nil {
		t.Fatalf("Dashboard error = %v", err)
	}
	if analytical.calls["total_bytes"] != callsBefore {
		t.Error("cached snapshot still queried the stores")
	}
	if second != first {
		t.Error("cache returned a different snapshot instance")
	}

	// A different caller has its own key and misses.
	if _, err := e.Dashboard(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	if analytical.calls["total_bytes"] != callsBefore+1 {
		t.Error("second caller served from first caller's snapshot")
	}

	// Invalidation drops every caller's snapshot.
	e.InvalidateSnapshot()
	if _, err := e.Dashboard(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Dashboard(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	if analytical.calls["total_bytes"] != callsBefore+3 {
		t.Errorf("total_bytes calls = %d, want %d after invalidation",
			analytical.calls["total_bytes"], callsBefore+3)
	}
}

func TestDashboardZeroedWhenStoresDown(t *testing.T) {
	analytical := newStub("analytical")
	analytical.fail = true
	relational := newStub("relational")
	relational.fail = true

	e := NewEngine(analytical, relational, nil, Options{BucketSize: time.Hour})
	stats, err := e.Dashboard(context.Background(), "")
	if err != nil {
		t.Fatalf("Dashboard error = %v, want zeroed snapshot instead", err)
	}
	if stats.Metrics.TotalTraffic != 0 || stats.Metrics.AlertsCount != 0 {
		t.Errorf("snapshot not zeroed: %+v", stats.Metrics)
	}
	if len(stats.TrafficTimeline) != 24 {
		t.Errorf("timeline len = %d, want zero-filled 24", len(stats.TrafficTimeline))
	}
	if len(stats.AlertsBySeverity) != len(models.Severities) {
		t.Errorf("severity counts len = %d", len(stats.AlertsBySeverity))
	}
	if stats.Metrics.SystemHealth.Status != "degraded" {
		t.Errorf("health status = %q, want degraded", stats.Metrics.SystemHealth.Status)
	}
}
