package chaos

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// TruncatingWriter passes through at most maxBytes of body and silently
// discards the rest.
type TruncatingWriter struct {
	w        http.ResponseWriter
	maxBytes int
	written  int
	mu       sync.Mutex
}

// NewTruncatingWriter wraps w so that only the first maxBytes body bytes are
// sent.
func NewTruncatingWriter(w http.ResponseWriter, maxBytes int) *TruncatingWriter {
	return &TruncatingWriter{w: w, maxBytes: maxBytes}
}

// Header returns the header map
func (tw *TruncatingWriter) Header() http.Header {
	return tw.w.Header()
}

// WriteHeader writes the status code
func (tw *TruncatingWriter) WriteHeader(statusCode int) {
	tw.w.WriteHeader(statusCode)
}

// Write writes bytes up to the maximum allowed. Bytes past the limit are
// reported as written so callers do not treat truncation as an error.
func (tw *TruncatingWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	total := len(p)
	if tw.written >= tw.maxBytes {
		return total, nil
	}

	remaining := tw.maxBytes - tw.written
	if len(p) > remaining {
		p = p[:remaining]
	}

	n, err := tw.w.Write(p)
	tw.written += n
	if err != nil {
		return n, err
	}
	return total, nil
}

// Flush flushes the underlying writer if it supports flushing
func (tw *TruncatingWriter) Flush() {
	if f, ok := tw.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter
func (tw *TruncatingWriter) Unwrap() http.ResponseWriter {
	return tw.w
}

// BytesWritten returns the number of bytes actually sent.
func (tw *TruncatingWriter) BytesWritten() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.written
}

// Truncated reports whether any bytes were discarded.
func (tw *TruncatingWriter) Truncated() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.written >= tw.maxBytes
}

// PacedWriter flushes every write and waits interval between consecutive
// writes. The wait is abandoned when ctx is done.
type PacedWriter struct {
	ctx      context.Context
	w        http.ResponseWriter
	interval time.Duration
	started  bool
	mu       sync.Mutex
}

// NewPacedWriter wraps w. ctx is normally the request context.
func NewPacedWriter(ctx context.Context, w http.ResponseWriter, interval time.Duration) *PacedWriter {
	return &PacedWriter{ctx: ctx, w: w, interval: interval}
}

// Header returns the header map
func (pw *PacedWriter) Header() http.Header {
	return pw.w.Header()
}

// WriteHeader writes the status code
func (pw *PacedWriter) WriteHeader(statusCode int) {
	pw.w.WriteHeader(statusCode)
}

// Write sends p as one piece, after the pause if it is not the first.
func (pw *PacedWriter) Write(p []byte) (int, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.started {
		if err := Sleep(pw.ctx, pw.interval); err != nil {
			return 0, err
		}
	}
	pw.started = true

	n, err := pw.w.Write(p)
	if err != nil {
		return n, err
	}
	pw.Flush()
	return n, nil
}

// Flush flushes the underlying writer if it supports flushing
func (pw *PacedWriter) Flush() {
	if f, ok := pw.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter
func (pw *PacedWriter) Unwrap() http.ResponseWriter {
	return pw.w
}

// Sleep waits for d or until ctx is done, whichever comes first. It returns
// ctx.Err() if the wait was cut short.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
