package engine

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vfaronov/turq/pkg/metrics"
	"github.com/vfaronov/turq/pkg/requestlog"
)

// Outcome labels for requests that did not end in a regular response.
const (
	outcomeReset   = "reset"
	outcomeRaw     = "raw"
	outcomeAborted = "aborted"
)

// requestInfo is filled in by the handler and read back by the middleware.
type requestInfo struct {
	ID        string
	Version   uint64
	Outcome   string
	RuleError bool
	// Abort closes the connection without finishing the response.
	Abort bool
}

type requestInfoKey struct{}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// infoFrom never returns nil so the handler also works without the
// middleware.
func infoFrom(ctx context.Context) *requestInfo {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		return info
	}
	return &requestInfo{}
}

// statusRecorder wraps http.ResponseWriter to capture the status code and
// body size.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 && code >= 200 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it.
func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the connection for hijacking.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// instrument assigns a request ID, then logs and records metrics for every
// request once the handler returns. reqlog may be nil.
func instrument(next http.Handler, log *slog.Logger, m *metrics.Metrics, reqlog requestlog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{ID: uuid.NewString()}
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r.WithContext(withRequestInfo(r.Context(), info)))

		duration := time.Since(start)
		outcome := info.Outcome
		if outcome == "" {
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			outcome = strconv.Itoa(status)
		}

		m.ObserveRequest(r.Method, outcome, duration)
		if info.RuleError {
			m.ObserveRuleError()
		}
		log.Debug("request",
			"request_id", info.ID,
			"method", r.Method,
			"uri", r.URL.RequestURI(),
			"remote", r.RemoteAddr,
			"status", outcome,
			"bytes", rec.bytes,
			"duration", duration,
			"rules_version", info.Version,
		)
		if reqlog != nil {
			reqlog.Log(&requestlog.Entry{
				ID:            info.ID,
				Timestamp:     start,
				Method:        r.Method,
				Path:          r.URL.Path,
				QueryString:   r.URL.RawQuery,
				Proto:         r.Proto,
				Headers:       r.Header.Clone(),
				RemoteAddr:    r.RemoteAddr,
				TLS:           r.TLS != nil,
				RulesVersion:  info.Version,
				Outcome:       outcome,
				ResponseBytes: rec.bytes,
				DurationMs:    duration.Milliseconds(),
				RuleError:     info.RuleError,
			})
		}

		if info.Abort {
			panic(http.ErrAbortHandler)
		}
	})
}
