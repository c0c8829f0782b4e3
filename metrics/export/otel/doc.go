// Package otel publishes goGuard engine metrics as OpenTelemetry observable
// instruments.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter and an
// Int64ObservableGauge per latency bucket. One callback reads
// [goGuard.Engine.MetricsSnapshot] on every collection cycle.
//
// The caller owns the MeterProvider; the exporter never mutates engine state.
package otel
