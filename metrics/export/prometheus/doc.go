// Package prometheus exposes goGuard engine metrics as a
// prometheus.Collector.
//
// Counter names follow goguard_*_total; the one histogram is
// goguard_authorize_latency_seconds. Register the [Collector] with your own
// registry, or mount [Collector.Handler], which uses a private one.
package prometheus
