// Package otel provides OpenTelemetry metric exporter bindings for keyturn counters
// and histograms.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each keyturn
// metric and Int64ObservableGauge per histogram bucket. A single callback reads
// [keyturn.Workflow.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate workflow state.
package otel
