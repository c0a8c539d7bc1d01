package portalauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one client lifecycle counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricRegisterSuccess
	MetricRegisterFailure
	MetricLogout
	// MetricSessionInvalidated counts sessions torn down by a 401 response.
	MetricSessionInvalidated
	// MetricUnauthorizedIgnored counts 401 responses that changed nothing, either
	// because they were stale or because the client was already logged out.
	MetricUnauthorizedIgnored
	MetricRouteGranted
	MetricRouteLoginRedirect
	MetricRouteRoleRedirect
	MetricVerificationCodeIssued
	MetricVerificationPoll
	MetricVerificationExpired
	MetricVerificationSuccess
	MetricVerificationError
	// MetricRequestLatency is the only histogram: round-trip time of backend calls
	// made through the client.
	MetricRequestLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of the first seven latency buckets.
// Anything slower lands in the eighth.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBucketCount = len(latencyBounds) + 1

// slot keeps each counter on its own cache line so hot counters do not contend.
type slot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed set of lock-free counters plus the request latency
// histogram. Its configuration never changes after NewMetrics.
type Metrics struct {
	on      bool
	latency bool
	slots   [metricIDCount]slot
	buckets [latencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{on: cfg.Enabled, latency: cfg.Enabled && cfg.EnableLatencyHistograms}
}

func (m *Metrics) Enabled() bool        { return m != nil && m.on }
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

// Inc adds one to id. It is a no-op on a nil or disabled Metrics.
func (m *Metrics) Inc(id MetricID) {
	if m.Enabled() && id < metricIDCount {
		m.slots[id].n.Add(1)
	}
}

// Observe records d when id is MetricRequestLatency and latency collection is on.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricRequestLatency || !m.LatencyEnabled() {
		return
	}
	m.buckets[latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.slots[id].n.Load()
}

// MetricIDs lists every defined metric.
func MetricIDs() []MetricID {
	ids := make([]MetricID, metricIDCount)
	for i := range ids {
		ids[i] = MetricID(i)
	}
	return ids
}

// Snapshot copies all counters. Histograms are included only when latency
// collection is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return snap
	}
	for id := range metricIDCount {
		snap.Counters[id] = m.slots[id].n.Load()
	}
	if m.latency {
		hist := make([]uint64, latencyBucketCount)
		for i := range hist {
			hist[i] = m.buckets[i].Load()
		}
		snap.Histograms[MetricRequestLatency] = hist
	}
	return snap
}

func latencyBucket(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
