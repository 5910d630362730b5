package editor

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vfaronov/turq/pkg/httputil"
	"github.com/vfaronov/turq/pkg/rules"
	"github.com/vfaronov/turq/pkg/store"
)

// RulesResponse is returned after a successful install.
type RulesResponse struct {
	Version uint64 `json:"version"`
	Rules   string `json:"rules"`
}

// SubmissionError describes the last rejected submission.
type SubmissionError struct {
	Message     string    `json:"message"`
	Line        int       `json:"line,omitempty"`
	Column      int       `json:"column,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Version      string           `json:"version"`
	RulesVersion uint64           `json:"rulesVersion"`
	InstalledAt  time.Time        `json:"installedAt"`
	Directives   int              `json:"directives"`
	Uptime       int              `json:"uptime"`
	LastError    *SubmissionError `json:"lastError,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime int    `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, HealthResponse{
		Status: "ok",
		Uptime: int(s.uptime().Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	httputil.WriteOK(w, StatusResponse{
		Version:      s.version,
		RulesVersion: snap.Version,
		InstalledAt:  snap.InstalledAt,
		Directives:   snap.Program.Len(),
		Uptime:       int(s.uptime().Seconds()),
		LastError:    submissionError(s.store.LastError()),
	})
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	httputil.WriteText(w, http.StatusOK, s.store.Current().Text)
}

func (s *Server) handlePutRules(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxScriptSize))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "Rules exceed the maximum size")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}

	snap, err := s.submit(string(data), r)
	if err != nil {
		var compileErr *rules.CompileError
		if errors.As(err, &compileErr) {
			httputil.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, "compile_error", compileErr.Message, map[string]any{
				"line":   compileErr.Line,
				"column": compileErr.Column,
			})
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to install rules")
		return
	}

	httputil.WriteOK(w, RulesResponse{Version: snap.Version, Rules: snap.Text})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	s.renderPage(w, http.StatusOK, pageData{
		Version:      s.version,
		RulesVersion: snap.Version,
		Rules:        snap.Text,
		Saved:        r.URL.Query().Has("saved"),
		Error:        submissionError(s.store.LastError()),
	})
}

func (s *Server) handlePageSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxScriptSize)
	if err := r.ParseForm(); err != nil {
		httputil.WriteText(w, http.StatusBadRequest, "Invalid form submission\n")
		return
	}

	// Browsers submit textarea contents with CRLF line breaks.
	text := strings.ReplaceAll(r.PostForm.Get("rules"), "\r\n", "\n")

	if _, err := s.submit(text, r); err != nil {
		snap := s.store.Current()
		s.renderPage(w, http.StatusUnprocessableEntity, pageData{
			Version:      s.version,
			RulesVersion: snap.Version,
			Rules:        text,
			Error:        submissionError(&store.Failure{Err: err, Text: text, SubmittedAt: time.Now()}),
		})
		return
	}

	http.Redirect(w, r, "/?saved", http.StatusSeeOther)
}

// submit installs text and records the outcome.
func (s *Server) submit(text string, r *http.Request) (*store.Snapshot, error) {
	snap, err := s.store.Submit(text)
	s.metrics.ObserveSubmission("editor", err == nil)
	if err != nil {
		s.log.Warn("rules rejected", "source", "editor", "remote", r.RemoteAddr, "error", err)
		return nil, err
	}
	s.log.Info("rules installed", "source", "editor", "remote", r.RemoteAddr, "version", snap.Version)
	return snap, nil
}

func submissionError(f *store.Failure) *SubmissionError {
	if f == nil {
		return nil
	}
	out := &SubmissionError{
		Message:     f.Err.Error(),
		SubmittedAt: f.SubmittedAt,
	}
	if ce := f.CompileError(); ce != nil {
		out.Message = ce.Message
		out.Line = ce.Line
		out.Column = ce.Column
	}
	return out
}
