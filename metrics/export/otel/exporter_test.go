package otel

import (
	"context"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	portalauth "github.com/medportal/portalauth"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot portalauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() portalauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := portalauth.MetricsSnapshot{
		Counters:   make(map[portalauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[portalauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findSum(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("portal-test")

	src := &fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Counters: map[portalauth.MetricID]uint64{
				portalauth.MetricSessionInvalidated: 3,
			},
			Histograms: map[portalauth.MetricID][]uint64{
				portalauth.MetricRequestLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if v, ok := findSum(rm, "portal_session_invalidated_total"); !ok || v != 3 {
		t.Fatalf("expected invalidation counter 3, got %d ok=%v", v, ok)
	}
	if v, ok := findSum(rm, "portal_request_latency_seconds_bucket_le_inf"); !ok || v != 8 {
		t.Fatalf("expected +Inf bucket 8, got %d ok=%v", v, ok)
	}
	if v, ok := findSum(rm, "portal_audit_dropped_total"); !ok || v != 1 {
		t.Fatalf("expected audit dropped 1, got %d ok=%v", v, ok)
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	_, provider := newReader()
	meter := provider.Meter("portal-test")

	if _, err := NewExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := NewExporter(meter, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err == nil {
		t.Fatal("expected error for nil meter")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("portal-test")

	src := &fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Counters: map[portalauth.MetricID]uint64{
				portalauth.MetricLoginSuccess: 1,
			},
			Histograms: map[portalauth.MetricID][]uint64{},
		},
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[portalauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestExporterReadsLiveClient(t *testing.T) {
	reader, provider := newReader()
	client, err := portalauth.New().Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer client.Close()

	exp, err := NewExporter(provider.Meter("portal-test"), client)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	if _, err := client.Open("/admin/users"); err != nil {
		t.Fatalf("open: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if v, ok := findSum(rm, "portal_route_login_redirect_total"); !ok || v != 1 {
		t.Fatalf("expected login redirect 1, got %d ok=%v", v, ok)
	}
}
