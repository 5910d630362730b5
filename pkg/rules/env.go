package rules

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/vfaronov/turq/internal/matching"
)

// Env is the environment rule expressions are compiled and evaluated
// against. Absent request data never fails: missing map keys and helper
// lookups yield "" and an undecodable body yields a nil json.
type Env struct {
	Method  string            `expr:"method"`
	Path    string            `expr:"path"`
	Host    string            `expr:"host"`
	Scheme  string            `expr:"scheme"`
	Proto   string            `expr:"proto"`
	Remote  string            `expr:"remote"`
	Query   map[string]string `expr:"query"`
	Headers map[string]string `expr:"headers"`
	Body    string            `expr:"body"`
	JSON    any               `expr:"json"`

	Header   func(name string) string            `expr:"header"`
	Param    func(name string) string            `expr:"param"`
	Glob     func(pattern string) (bool, error)  `expr:"glob"`
	Route    func(pattern string) bool           `expr:"route"`
	Segment  func(name string) string            `expr:"segment"`
	JSONPath func(path string) (any, error)      `expr:"jsonpath"`
	UUID     func() string                       `expr:"uuid"`
}

// newEnv binds an Env to one request. Route captures are written to st so
// that segment() sees the captures of the last route() that matched.
func newEnv(req *Request, st *evalState) Env {
	headers := make(map[string]string, len(req.Header))
	for name, values := range req.Header {
		if len(values) > 0 {
			headers[http.CanonicalHeaderKey(name)] = values[0]
		}
	}
	query := make(map[string]string, len(req.Query))
	for name, values := range req.Query {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}
	decoded := decodeJSON(req.Body)

	return Env{
		Method:  req.Method,
		Path:    req.Path,
		Host:    req.Host,
		Scheme:  req.Scheme,
		Proto:   req.Proto,
		Remote:  req.RemoteAddr,
		Query:   query,
		Headers: headers,
		Body:    string(req.Body),
		JSON:    decoded,

		Header: func(name string) string {
			return req.Header.Get(name)
		},
		Param: func(name string) string {
			return req.Query.Get(name)
		},
		Glob: func(pattern string) (bool, error) {
			return matching.Glob(pattern, req.Path)
		},
		Route: func(pattern string) bool {
			captures, ok := matching.MatchRoute(pattern, req.Path)
			if ok {
				st.segments = captures
			}
			return ok
		},
		Segment: func(name string) string {
			return st.segments[name]
		},
		JSONPath: func(path string) (any, error) {
			return matching.FirstJSONPath(path, decoded)
		},
		UUID: uuid.NewString,
	}
}

func decodeJSON(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil
	}
	return v
}
