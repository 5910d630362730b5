package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Directive is one compiled statement of a Program. The set of directives
// is closed: only this package can implement it.
type Directive interface {
	// Name is the directive name as written in the script ("if" for
	// conditionals).
	Name() string
	// Line is the 1-based script line the directive starts on.
	Line() int

	apply(st *evalState) error
}

// evalState is the per-request scratch space of one evaluation.
type evalState struct {
	req      *Request
	resp     *Response
	env      Env
	segments map[string]string
}

type base struct {
	name string
	line int
}

func (b base) Name() string { return b.name }
func (b base) Line() int    { return b.line }

type statusDirective struct {
	base
	code *arg
}

func (d *statusDirective) apply(st *evalState) error {
	code, err := statusCode(st, d.code)
	if err != nil {
		return err
	}
	st.resp.Status = code
	return nil
}

type errorDirective struct {
	base
	code *arg
}

func (d *errorDirective) apply(st *evalState) error {
	code, err := statusCode(st, d.code)
	if err != nil {
		return err
	}
	st.resp.Status = code
	st.resp.SetBody("")
	return nil
}

func statusCode(st *evalState, a *arg) (int, error) {
	code, err := a.int(st)
	if err != nil {
		return 0, err
	}
	if !validStatus(code) {
		return 0, fmt.Errorf("status code %d out of range 100-999", code)
	}
	return code, nil
}

type headerOp int

const (
	headerSet headerOp = iota
	headerAdd
	headerRemove
)

type headerDirective struct {
	base
	op    headerOp
	name  *arg
	value *arg
}

func (d *headerDirective) apply(st *evalState) error {
	name, err := d.name.string(st)
	if err != nil {
		return err
	}
	if !validHeaderName(name) {
		return fmt.Errorf("invalid header name %q", name)
	}
	if d.op == headerRemove {
		st.resp.RemoveHeader(name)
		return nil
	}
	value, err := d.value.string(st)
	if err != nil {
		return err
	}
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("header %s: value contains a line break", name)
	}
	if d.op == headerSet {
		st.resp.SetHeader(name, value)
	} else {
		st.resp.AddHeader(name, value)
	}
	return nil
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune("()<>@,;:\\\"/[]?={}", r) {
			return false
		}
	}
	return true
}

// bodyDirective implements body, text and html.
type bodyDirective struct {
	base
	value       *arg
	contentType string
}

func (d *bodyDirective) apply(st *evalState) error {
	s, err := d.value.string(st)
	if err != nil {
		return err
	}
	st.resp.SetBody(s)
	if d.contentType != "" {
		st.resp.SetHeader("Content-Type", d.contentType)
	}
	return nil
}

type jsonDirective struct {
	base
	value *arg
}

func (d *jsonDirective) apply(st *evalState) error {
	v, err := d.value.value(st)
	if err != nil {
		return err
	}
	var body string
	if s, ok := v.(string); ok {
		body = s
	} else {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("cannot encode %T as JSON: %w", v, err)
		}
		body = string(data)
	}
	st.resp.SetBody(body)
	st.resp.SetHeader("Content-Type", "application/json")
	return nil
}

// echoDirective reflects the request back as plain text.
type echoDirective struct {
	base
}

func (d *echoDirective) apply(st *evalState) error {
	req := st.req
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", req.Method, req.RequestURI(), req.Proto)
	if req.Host != "" {
		fmt.Fprintf(&b, "Host: %s\n", req.Host)
	}
	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		for _, value := range req.Header[name] {
			fmt.Fprintf(&b, "%s: %s\n", name, value)
		}
	}
	b.WriteString("\n")
	b.Write(req.Body)

	st.resp.SetBody(b.String())
	st.resp.SetHeader("Content-Type", "text/plain; charset=utf-8")
	return nil
}

type chunkDirective struct {
	base
	value *arg
}

func (d *chunkDirective) apply(st *evalState) error {
	s, err := d.value.string(st)
	if err != nil {
		return err
	}
	st.resp.AppendChunk(s)
	return nil
}

// delayDirective implements delay and chunk_delay.
type delayDirective struct {
	base
	d             *arg
	betweenChunks bool
}

func (d *delayDirective) apply(st *evalState) error {
	dur, err := d.d.duration(st)
	if err != nil {
		return err
	}
	if d.betweenChunks {
		st.resp.ChunkDelay = dur
	} else {
		st.resp.Delay = dur
	}
	return nil
}

type redirectDirective struct {
	base
	location *arg
	code     *arg // optional
}

func (d *redirectDirective) apply(st *evalState) error {
	location, err := d.location.string(st)
	if err != nil {
		return err
	}
	if strings.ContainsAny(location, "\r\n") {
		return errors.New("location contains a line break")
	}
	code := http.StatusFound
	if d.code != nil {
		if code, err = statusCode(st, d.code); err != nil {
			return err
		}
	}
	st.resp.Status = code
	st.resp.SetHeader("Location", location)
	return nil
}

const corsAllowMethods = "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS"

type corsDirective struct {
	base
}

func (d *corsDirective) apply(st *evalState) error {
	req, resp := st.req, st.resp
	if origin := req.Header.Get("Origin"); origin != "" {
		resp.SetHeader("Access-Control-Allow-Origin", origin)
		resp.SetHeader("Access-Control-Allow-Credentials", "true")
		resp.SetHeader("Vary", "Origin")
	} else {
		resp.SetHeader("Access-Control-Allow-Origin", "*")
	}

	if req.Method != http.MethodOptions || req.Header.Get("Access-Control-Request-Method") == "" {
		return nil
	}
	resp.SetHeader("Access-Control-Allow-Methods", corsAllowMethods)
	if requested := req.Header.Values("Access-Control-Request-Headers"); len(requested) > 0 {
		resp.SetHeader("Access-Control-Allow-Headers", strings.Join(requested, ", "))
	}
	resp.SetHeader("Access-Control-Max-Age", "86400")
	resp.Status = http.StatusNoContent
	resp.SetBody("")
	return nil
}

// authDirective answers 401 unless the request carries credentials of the
// given scheme. Credentials are not verified.
type authDirective struct {
	base
	scheme string
	realm  *arg // optional
}

func newAuthDirective(b base, scheme string, args []*arg) *authDirective {
	d := &authDirective{base: b, scheme: scheme}
	if len(args) > 0 {
		d.realm = args[0]
	}
	return d
}

func (d *authDirective) apply(st *evalState) error {
	if hasCredentials(st.req.Header.Get("Authorization"), d.scheme) {
		return nil
	}
	realm := "turq"
	if d.realm != nil {
		var err error
		if realm, err = d.realm.string(st); err != nil {
			return err
		}
	}
	st.resp.Status = http.StatusUnauthorized
	st.resp.SetHeader("WWW-Authenticate", fmt.Sprintf("%s realm=%q", d.scheme, realm))
	st.resp.SetBody("")
	return nil
}

func hasCredentials(authorization, scheme string) bool {
	prefix, credentials, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	return ok && strings.EqualFold(prefix, scheme) && strings.TrimSpace(credentials) != ""
}

type closeDirective struct {
	base
}

func (d *closeDirective) apply(st *evalState) error {
	st.resp.Close = true
	return nil
}

type resetDirective struct {
	base
}

func (d *resetDirective) apply(st *evalState) error {
	st.resp.Reset = true
	return nil
}

type truncateDirective struct {
	base
	n *arg
}

func (d *truncateDirective) apply(st *evalState) error {
	n, err := d.n.int(st)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("negative byte count %d", n)
	}
	st.resp.Truncate = n
	return nil
}

type rawDirective struct {
	base
	value *arg
}

func (d *rawDirective) apply(st *evalState) error {
	s, err := d.value.string(st)
	if err != nil {
		return err
	}
	raw := []byte(s)
	if raw == nil {
		raw = []byte{}
	}
	st.resp.Raw = raw
	return nil
}

type failDirective struct {
	base
	message *arg
}

func (d *failDirective) apply(st *evalState) error {
	msg, err := d.message.string(st)
	if err != nil {
		return err
	}
	if msg == "" {
		msg = "failed"
	}
	return errors.New(msg)
}

// conditional applies exactly one of its branches.
type conditional struct {
	base
	guard *arg
	then  []Directive
	els   []Directive
}

func (d *conditional) apply(st *evalState) error {
	ok, err := d.guard.bool(st)
	if err != nil {
		return err
	}
	if ok {
		return applyAll(st, d.then)
	}
	return applyAll(st, d.els)
}

func applyAll(st *evalState, directives []Directive) error {
	for _, d := range directives {
		if err := d.apply(st); err != nil {
			var evalErr *EvaluationError
			if errors.As(err, &evalErr) {
				return evalErr
			}
			return &EvaluationError{Directive: d.Name(), Line: d.Line(), Err: err}
		}
	}
	return nil
}
