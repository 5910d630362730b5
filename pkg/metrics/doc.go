// Package metrics provides Prometheus-compatible metrics for turq.
//
// The registry writes the Prometheus text exposition format
// (text/plain; version=0.0.4). Counters, gauges and histograms are safe for
// concurrent use.
//
// # turq metrics
//
//   - turq_requests_total: mock responses (labels: method, status)
//   - turq_request_duration_seconds: mock request latency (labels: method)
//   - turq_rule_errors_total: requests answered with the rule error page
//   - turq_rule_submissions_total: rule submissions (labels: source, result)
//   - turq_rules_version: version of the installed program
//   - turq_rules_directives: top-level directives of the installed program
//   - turq_uptime_seconds: process uptime
//
// # Usage
//
//	m := metrics.New()
//	m.ObserveRequest("GET", "200", elapsed)
//	mux.Handle("GET /metrics", m.Handler())
//
// Custom registries work the same way:
//
//	r := metrics.NewRegistry()
//	c := r.NewCounter("my_counter", "Description", "label")
//	_ = c.Inc("value")
package metrics
