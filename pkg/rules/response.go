package rules

import (
	"strings"
	"time"
)

// DefaultStatus is the status of a response that no directive touched.
const DefaultStatus = 404

// Header is one response header line. Order and duplicates are preserved.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Response is the fully resolved description of a response before it is
// written to the wire. Every field follows last-write-wins: a later
// directive overwrites what an earlier one set.
type Response struct {
	Status  int
	Headers []Header

	// Body holds the body pieces. Unless Stream is set they are written as
	// one block with a Content-Length.
	Body       []string
	Stream     bool
	ChunkDelay time.Duration

	// Wire-level directives.
	Delay    time.Duration
	Close    bool
	Reset    bool
	Truncate int // bytes of body to send; -1 sends everything
	Raw      []byte
}

// NewResponse returns the baseline response: 404 with an empty body.
func NewResponse() *Response {
	return &Response{
		Status:   DefaultStatus,
		Truncate: -1,
	}
}

// SetHeader replaces every value of name with value.
func (r *Response) SetHeader(name, value string) {
	r.RemoveHeader(name)
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
}

// AddHeader appends a value for name, keeping existing ones.
func (r *Response) AddHeader(name, value string) {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
}

// RemoveHeader drops every value of name. Names compare case-insensitively.
func (r *Response) RemoveHeader(name string) {
	kept := r.Headers[:0]
	for _, h := range r.Headers {
		if !strings.EqualFold(h.Name, name) {
			kept = append(kept, h)
		}
	}
	r.Headers = kept
}

// HeaderValue returns the first value of name, or "".
func (r *Response) HeaderValue(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HeaderValues returns all values of name in order.
func (r *Response) HeaderValues(name string) []string {
	var values []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// SetBody replaces the body and turns streaming off.
func (r *Response) SetBody(s string) {
	r.Stream = false
	if s == "" {
		r.Body = nil
		return
	}
	r.Body = []string{s}
}

// AppendChunk adds a body piece and turns streaming on.
func (r *Response) AppendChunk(s string) {
	r.Body = append(r.Body, s)
	r.Stream = true
}

// BodyBytes returns the concatenated body.
func (r *Response) BodyBytes() []byte {
	return []byte(strings.Join(r.Body, ""))
}

// ContentLength is the length of the concatenated body in bytes.
func (r *Response) ContentLength() int {
	n := 0
	for _, piece := range r.Body {
		n += len(piece)
	}
	return n
}
