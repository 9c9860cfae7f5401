// Package prometheus exposes goSession counters as a prometheus.Collector.
//
// [NewPrometheusExporter] wraps a [goSession.Manager]. Each scrape reads one snapshot,
// so counter values are exactly what the Manager recorded. Counters are named
// gosession_*_total; the latency histogram is gosession_container_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers mount Handler or register
//     the exporter themselves.
//   - Mutate Manager state.
package prometheus
