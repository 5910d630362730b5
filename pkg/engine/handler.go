package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vfaronov/turq/pkg/chaos"
	"github.com/vfaronov/turq/pkg/httputil"
	"github.com/vfaronov/turq/pkg/logging"
	"github.com/vfaronov/turq/pkg/rules"
	"github.com/vfaronov/turq/pkg/store"
)

// Handler answers requests by evaluating the current rule program.
type Handler struct {
	store          *store.Store
	log            *slog.Logger
	serverHeader   string
	maxRequestBody int64
}

// NewHandler creates a Handler reading programs from st. A maxRequestBody
// of 0 means no limit.
func NewHandler(st *store.Store, version string, maxRequestBody int64) *Handler {
	return &Handler{
		store:          st,
		log:            logging.Nop(),
		serverHeader:   "turq/" + version,
		maxRequestBody: maxRequestBody,
	}
}

// SetOperationalLogger sets the logger for rule and write errors.
func (h *Handler) SetOperationalLogger(log *slog.Logger) {
	if log != nil {
		h.log = log
	} else {
		h.log = logging.Nop()
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	info := infoFrom(r.Context())
	snap := h.store.Current()
	info.Version = snap.Version
	w.Header().Set("Server", h.serverHeader)

	body, err := h.readBody(w, r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.log.Warn("request body too large", "request_id", info.ID, "limit", maxBytesErr.Limit)
			w.Header().Set("Connection", "close")
			httputil.WriteText(w, http.StatusRequestEntityTooLarge, "Request body too large\n")
			return
		}
		h.log.Debug("failed to read request body", "request_id", info.ID, "error", err)
		info.Outcome = outcomeAborted
		return
	}

	resp, err := snap.Program.Evaluate(rules.NewRequest(r, body))
	if err != nil {
		info.RuleError = true
		var evalErr *rules.EvaluationError
		if !errors.As(err, &evalErr) {
			evalErr = &rules.EvaluationError{Err: err}
		}
		h.log.Error("rule evaluation failed",
			"request_id", info.ID,
			"rules_version", snap.Version,
			"line", evalErr.Line,
			"directive", evalErr.Directive,
			"error", evalErr.Err,
		)
		httputil.WriteText(w, http.StatusInternalServerError, ruleErrorText(evalErr))
		return
	}

	h.write(w, r, resp, info)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	reader := r.Body
	if h.maxRequestBody > 0 {
		reader = http.MaxBytesReader(w, r.Body, h.maxRequestBody)
	}
	return io.ReadAll(reader)
}

// ruleErrorText is the body of the 500 response sent when rules fail.
func ruleErrorText(err *rules.EvaluationError) string {
	msg := "evaluation failed"
	if err.Err != nil {
		msg = err.Err.Error()
	}
	if err.Directive != "" {
		msg = err.Directive + ": " + msg
	}
	if err.Line > 0 {
		return fmt.Sprintf("Error in rules (line %d): %s\n", err.Line, msg)
	}
	return "Error in rules: " + msg + "\n"
}

// write puts resp on the wire.
func (h *Handler) write(w http.ResponseWriter, r *http.Request, resp *rules.Response, info *requestInfo) {
	if resp.Delay > 0 {
		if err := chaos.Sleep(r.Context(), resp.Delay); err != nil {
			info.Outcome = outcomeAborted
			return
		}
	}

	switch {
	case resp.Reset:
		info.Outcome = outcomeReset
		if err := chaos.Reset(w); err != nil {
			h.log.Debug("reset fell back to aborting the handler", "request_id", info.ID, "error", err)
			info.Abort = true
		}
		return

	case resp.Raw != nil:
		info.Outcome = outcomeRaw
		h.writeRaw(w, resp.Raw, info)
		return

	case resp.Status < 200 && resp.Status != http.StatusSwitchingProtocols:
		// net/http treats WriteHeader(1xx) as an interim response, so a
		// final 1xx status has to be framed by hand.
		info.Outcome = strconv.Itoa(resp.Status)
		h.writeRaw(w, h.frame(resp), info)
		return
	}

	hdr := w.Header()
	h.copyHeaders(hdr, resp)

	truncate := resp.Truncate >= 0
	if resp.Close || truncate {
		hdr.Set("Connection", "close")
	}
	if !resp.Stream && hdr.Get("Content-Length") == "" && bodyAllowedForStatus(resp.Status) {
		hdr.Set("Content-Length", strconv.Itoa(resp.ContentLength()))
	}

	var out http.ResponseWriter = w
	if resp.Stream {
		out = chaos.NewPacedWriter(r.Context(), out, resp.ChunkDelay)
	}
	if truncate {
		out = chaos.NewTruncatingWriter(out, resp.Truncate)
	}

	out.WriteHeader(resp.Status)
	if r.Method == http.MethodHead {
		return
	}

	if resp.Stream {
		if len(resp.Body) == 0 {
			_ = http.NewResponseController(w).Flush()
		}
		for _, piece := range resp.Body {
			if _, err := io.WriteString(out, piece); err != nil {
				h.log.Debug("failed to write response", "request_id", info.ID, "error", err)
				info.Abort = true
				return
			}
		}
	} else if len(resp.Body) > 0 {
		if _, err := out.Write(resp.BodyBytes()); err != nil {
			h.log.Debug("failed to write response", "request_id", info.ID, "error", err)
			return
		}
	}

	// A chunked body would still get its terminating chunk, so a truncated
	// stream ends by dropping the connection.
	if truncate && resp.Stream && resp.ContentLength() > resp.Truncate {
		_ = http.NewResponseController(w).Flush()
		info.Abort = true
	}
}

func (h *Handler) copyHeaders(hdr http.Header, resp *rules.Response) {
	hdr.Set("Server", h.serverHeader)
	seen := make(map[string]bool, len(resp.Headers))
	for _, rh := range resp.Headers {
		key := http.CanonicalHeaderKey(rh.Name)
		if !seen[key] {
			hdr.Del(key)
			seen[key] = true
		}
		hdr[key] = append(hdr[key], rh.Value)
	}
}

func (h *Handler) writeRaw(w http.ResponseWriter, data []byte, info *requestInfo) {
	if err := chaos.WriteRaw(w, data); err != nil {
		h.log.Debug("raw write fell back to aborting the handler", "request_id", info.ID, "error", err)
		info.Abort = true
	}
}

// frame builds an HTTP/1.1 response for resp by hand.
func (h *Handler) frame(resp *rules.Response) []byte {
	hdr := make(http.Header)
	h.copyHeaders(hdr, resp)
	if hdr.Get("Content-Length") == "" {
		hdr.Set("Content-Length", strconv.Itoa(resp.ContentLength()))
	}
	hdr.Set("Connection", "close")

	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %03d %s\r\n", resp.Status, http.StatusText(resp.Status))
	_ = hdr.Write(&b)
	b.WriteString("\r\n")
	body := resp.BodyBytes()
	if resp.Truncate >= 0 && resp.Truncate < len(body) {
		body = body[:resp.Truncate]
	}
	b.Write(body)
	return b.Bytes()
}

func bodyAllowedForStatus(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
