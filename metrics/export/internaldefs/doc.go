// Package internaldefs holds the metric names and bucket bounds shared by the
// exporters, so Prometheus and OpenTelemetry publish identical series.
package internaldefs
