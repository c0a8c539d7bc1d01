// Package prometheus exposes portal client metrics through client_golang.
//
// [NewCollector] wraps a [portalauth.Client] as a prometheus.Collector. Counter names
// are prefixed portal_*_total; the single histogram is portal_request_latency_seconds.
// The collector is not registered globally; callers register it or mount [Handler].
package prometheus
