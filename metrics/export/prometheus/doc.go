// Package prometheus exports goGrant engine metrics through
// github.com/prometheus/client_golang.
//
// [PrometheusExporter] is a prometheus.Collector. Register it on your own
// registry, or mount [PrometheusExporter.Handler], which serves it from a
// private one. Counter names are gogrant_*_total; the single histogram is
// gogrant_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
