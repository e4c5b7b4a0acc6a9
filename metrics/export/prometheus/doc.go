// Package prometheus renders keyturn metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] accepts a [keyturn.Workflow] and exposes an [http.Handler]
// that renders all keyturn counters and histograms. Counter names are prefixed
// keyturn_*_total; the single histogram is keyturn_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate workflow state.
package prometheus
