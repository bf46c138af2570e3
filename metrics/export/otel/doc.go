// Package otel binds goGrant engine metrics to an OpenTelemetry Meter.
//
// [NewOTelExporter] registers an Int64ObservableCounter for every engine
// counter and an Int64ObservableGauge per histogram bucket. One callback
// reads [goGrant.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
