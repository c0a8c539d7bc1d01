// Package otel binds portal client metrics to an OpenTelemetry Meter.
//
// [NewExporter] registers an Int64ObservableCounter per portal counter and an
// Int64ObservableGauge per latency bucket. Callers own the MeterProvider.
package otel
