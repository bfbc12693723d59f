// Package prometheus renders goGuard counters in Prometheus text exposition
// format.
//
// [NewExporter] reads [goGuard.Provider.MetricsSnapshot] on every scrape.
// Counters are named goguard_*_total; the single histogram is
// goguard_phi_gate_latency_seconds and appears only when latency
// histograms are enabled.
//
// # What this package must NOT do
//
//   - Register in a global Prometheus registry. Callers mount the Handler.
//   - Mutate Provider state.
package prometheus
