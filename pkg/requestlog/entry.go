package requestlog

import "time"

// Entry describes one finished request to the mock server.
type Entry struct {
	// ID is the request ID also used in operational logs.
	ID string `json:"id"`

	// Timestamp is when the request was received.
	Timestamp time.Time `json:"timestamp"`

	Method      string              `json:"method"`
	Path        string              `json:"path"`
	QueryString string              `json:"queryString,omitempty"`
	Proto       string              `json:"proto"`
	Headers     map[string][]string `json:"headers,omitempty"`
	RemoteAddr  string              `json:"remoteAddr"`
	TLS         bool                `json:"tls,omitempty"`

	// RulesVersion is the version of the rules that answered.
	RulesVersion uint64 `json:"rulesVersion"`

	// Outcome is the final status code as a string, or one of "reset",
	// "raw" and "aborted".
	Outcome string `json:"outcome"`

	// ResponseBytes counts body bytes written through the handler. Raw
	// responses are not counted.
	ResponseBytes int64 `json:"responseBytes"`

	DurationMs int64 `json:"durationMs"`

	// RuleError is set when the rules failed and the error response was sent.
	RuleError bool `json:"ruleError,omitempty"`
}
