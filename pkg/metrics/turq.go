package metrics

import (
	"net/http"
	"time"
)

// Metrics is the set of metrics turq records. Each server process creates
// one with New and shares it between the mock and editor listeners.
type Metrics struct {
	Registry *Registry

	// RequestsTotal counts mock responses. Labels: method, status.
	// Status is "reset" or "raw" for connections that got no HTTP response.
	RequestsTotal *Counter

	// RequestDuration is the time from request to last byte written. Labels: method.
	RequestDuration *Histogram

	// RuleErrorsTotal counts requests answered with the rule error page.
	RuleErrorsTotal *Counter

	// SubmissionsTotal counts rule submissions. Labels: source, result.
	SubmissionsTotal *Counter

	// RulesVersion is the version of the installed rule program.
	RulesVersion *Gauge

	// RulesDirectives is the number of top-level directives installed.
	RulesDirectives *Gauge

	// UptimeSeconds is refreshed on every scrape.
	UptimeSeconds *Gauge

	start time.Time
}

// New creates a registry with every turq metric registered.
func New() *Metrics {
	r := NewRegistry()
	return &Metrics{
		Registry: r,
		RequestsTotal: r.NewCounter(
			"turq_requests_total",
			"Total number of requests answered by the mock server",
			"method", "status",
		),
		RequestDuration: r.NewHistogram(
			"turq_request_duration_seconds",
			"Duration of mock requests in seconds",
			DefaultBuckets,
			"method",
		),
		RuleErrorsTotal: r.NewCounter(
			"turq_rule_errors_total",
			"Requests whose rule evaluation failed",
		),
		SubmissionsTotal: r.NewCounter(
			"turq_rule_submissions_total",
			"Rule scripts submitted for installation",
			"source", "result",
		),
		RulesVersion: r.NewGauge(
			"turq_rules_version",
			"Version of the installed rule program",
		),
		RulesDirectives: r.NewGauge(
			"turq_rules_directives",
			"Top-level directives in the installed rule program",
		),
		UptimeSeconds: r.NewGauge(
			"turq_uptime_seconds",
			"Seconds since the process started",
		),
		start: time.Now(),
	}
}

// ObserveRequest records one mock response.
func (m *Metrics) ObserveRequest(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	_ = m.RequestsTotal.Inc(method, status)
	_ = m.RequestDuration.Observe(d.Seconds(), method)
}

// ObserveRuleError records a request answered with the rule error page.
func (m *Metrics) ObserveRuleError() {
	if m == nil {
		return
	}
	_ = m.RuleErrorsTotal.Inc()
}

// ObserveSubmission records a rule submission from source ("editor",
// "watch", "startup").
func (m *Metrics) ObserveSubmission(source string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "compile_error"
	}
	_ = m.SubmissionsTotal.Inc(source, result)
}

// SetRules records the installed program.
func (m *Metrics) SetRules(version uint64, directives int) {
	if m == nil {
		return
	}
	_ = m.RulesVersion.Set(float64(version))
	_ = m.RulesDirectives.Set(float64(directives))
}

// Handler serves the registry, refreshing the uptime gauge first.
func (m *Metrics) Handler() http.Handler {
	inner := m.Registry.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = m.UptimeSeconds.Set(time.Since(m.start).Seconds())
		inner.ServeHTTP(w, r)
	})
}
