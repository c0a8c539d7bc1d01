package portalauth

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsInertWhenOffOrNil(t *testing.T) {
	off := NewMetrics(MetricsConfig{EnableLatencyHistograms: true})
	off.Inc(MetricLoginSuccess)
	off.Observe(MetricRequestLatency, time.Millisecond)
	if off.Value(MetricLoginSuccess) != 0 || off.LatencyEnabled() {
		t.Fatal("disabled metrics recorded a value")
	}
	if snap := off.Snapshot(); len(snap.Counters)+len(snap.Histograms) != 0 {
		t.Fatalf("disabled metrics must snapshot empty, got %+v", snap)
	}

	var none *Metrics
	none.Inc(MetricLogout)
	none.Observe(MetricRequestLatency, time.Millisecond)
	if none.Value(MetricLogout) != 0 || none.Enabled() || len(none.Snapshot().Counters) != 0 {
		t.Fatal("nil metrics must be inert")
	}
}

func TestMetricsParallelIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			for range 5000 {
				m.Inc(MetricVerificationPoll)
			}
		})
	}
	wg.Wait()

	if got := m.Value(MetricVerificationPoll); got != 16*5000 {
		t.Fatalf("poll counter = %d, want %d", got, 16*5000)
	}
}

func TestLatencyBucketBoundsAreInclusive(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{5*time.Millisecond + 1, 1},
		{25 * time.Millisecond, 2},
		{99 * time.Millisecond, 4},
		{500 * time.Millisecond, 6},
		{2 * time.Second, 7},
	}
	for _, tc := range cases {
		if got := latencyBucket(tc.d); got != tc.want {
			t.Fatalf("latencyBucket(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestSnapshotCarriesHistogramOnlyWhenEnabled(t *testing.T) {
	plain := NewMetrics(MetricsConfig{Enabled: true})
	plain.Inc(MetricSessionInvalidated)
	plain.Inc(MetricUnauthorizedIgnored)
	plain.Inc(MetricUnauthorizedIgnored)
	plain.Observe(MetricRequestLatency, 2*time.Millisecond)

	snap := plain.Snapshot()
	if len(snap.Counters) != len(MetricIDs()) {
		t.Fatalf("snapshot has %d counters, want %d", len(snap.Counters), len(MetricIDs()))
	}
	if snap.Counters[MetricSessionInvalidated] != 1 || snap.Counters[MetricUnauthorizedIgnored] != 2 {
		t.Fatalf("unexpected counters: %+v", snap.Counters)
	}
	if len(snap.Histograms) != 0 {
		t.Fatal("latency histogram present while collection is off")
	}

	timed := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	for _, d := range []time.Duration{time.Millisecond, 3 * time.Millisecond, 300 * time.Millisecond, time.Minute} {
		timed.Observe(MetricRequestLatency, d)
	}
	timed.Observe(MetricLoginSuccess, time.Millisecond)

	hist := timed.Snapshot().Histograms
	want := []uint64{2, 0, 0, 0, 0, 0, 1, 1}
	got := hist[MetricRequestLatency]
	if len(got) != len(want) {
		t.Fatalf("histogram = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("histogram = %v, want %v", got, want)
		}
	}
	if _, ok := hist[MetricLoginSuccess]; ok {
		t.Fatal("counter metric grew a histogram")
	}
}
