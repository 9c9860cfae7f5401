// Package otel publishes goSession counters through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per latency bucket. A single callback reads
// [goSession.Manager.MetricsSnapshot] on each collection cycle, so the hot path never
// touches the OTel SDK.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate Manager state.
package otel
