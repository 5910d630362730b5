package rules

import (
	"net/http"
	"net/url"
)

// Request is the read-only view of an incoming request that rules are
// evaluated against. It is built once per request by the mock server.
type Request struct {
	Method     string
	Path       string
	RawQuery   string
	Query      url.Values
	Header     http.Header
	Body       []byte
	Host       string
	Scheme     string
	Proto      string
	RemoteAddr string
}

// NewRequest builds a Request from an http.Request whose body has already
// been read into body.
func NewRequest(r *http.Request, body []byte) *Request {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	return &Request{
		Method:     r.Method,
		Path:       path,
		RawQuery:   r.URL.RawQuery,
		Query:      r.URL.Query(),
		Header:     r.Header.Clone(),
		Body:       body,
		Host:       r.Host,
		Scheme:     scheme,
		Proto:      r.Proto,
		RemoteAddr: r.RemoteAddr,
	}
}

// RequestURI returns the path plus the raw query string, if any.
func (r *Request) RequestURI() string {
	if r.RawQuery == "" {
		return r.Path
	}
	return r.Path + "?" + r.RawQuery
}
