package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	portalauth "github.com/medportal/portalauth"
	"github.com/medportal/portalauth/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() portalauth.MetricsSnapshot
	AuditDropped() uint64
}

// latencyGauges holds the cumulative bucket gauges of one histogram. The last
// bucket doubles as the sample count.
type latencyGauges struct {
	buckets []metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes client metrics as OpenTelemetry observable instruments. A single
// callback reads one snapshot per collection.
type Exporter struct {
	source       metricsSource
	registration metric.Registration

	counters     map[portalauth.MetricID]metric.Int64ObservableCounter
	latency      map[portalauth.MetricID]latencyGauges
	auditDropped metric.Int64ObservableCounter

	instruments []metric.Observable
}

func NewExporter(meter metric.Meter, client *portalauth.Client) (*Exporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, client)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[portalauth.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
		latency:  make(map[portalauth.MetricID]latencyGauges, len(internaldefs.HistogramDefs)),
	}

	for _, def := range internaldefs.CounterDefs {
		c, err := e.counter(meter, def.Name, def.Help)
		if err != nil {
			return nil, err
		}
		e.counters[def.ID] = c
	}
	for _, def := range internaldefs.HistogramDefs {
		var g latencyGauges
		for _, suffix := range internaldefs.HistogramBoundSuffix {
			b, err := e.gauge(meter, def.Name+"_bucket_le_"+suffix, "Cumulative histogram bucket count.")
			if err != nil {
				return nil, err
			}
			g.buckets = append(g.buckets, b)
		}
		count, err := e.gauge(meter, def.Name+"_count", "Histogram total sample count.")
		if err != nil {
			return nil, err
		}
		g.count = count
		e.latency[def.ID] = g
	}
	dropped, err := e.counter(meter, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp)
	if err != nil {
		return nil, err
	}
	e.auditDropped = dropped

	reg, err := meter.RegisterCallback(e.observe, e.instruments...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) counter(meter metric.Meter, name, help string) (metric.Int64ObservableCounter, error) {
	c, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", name, err)
	}
	e.instruments = append(e.instruments, c)
	return c, nil
}

func (e *Exporter) gauge(meter metric.Meter, name, help string) (metric.Int64ObservableGauge, error) {
	g, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
	if err != nil {
		return nil, fmt.Errorf("gauge %s: %w", name, err)
	}
	e.instruments = append(e.instruments, g)
	return g, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for id, g := range e.latency {
		raw, ok := snap.Histograms[id]
		if !ok {
			continue
		}
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, b := range g.buckets {
			o.ObserveInt64(b, int64(cum[i]))
		}
		o.ObserveInt64(g.count, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
