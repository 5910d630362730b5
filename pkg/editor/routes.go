package editor

import (
	"net/http"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Browser page
	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("POST /{$}", s.handlePageSubmit)

	// Plain-text API
	mux.HandleFunc("GET /rules", s.handleGetRules)
	mux.HandleFunc("PUT /rules", s.handlePutRules)
	mux.HandleFunc("POST /rules", s.handlePutRules)

	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.requests != nil {
		mux.HandleFunc("GET /requests", s.handleListRequests)
		mux.HandleFunc("GET /requests/{id}", s.handleGetRequest)
		mux.HandleFunc("DELETE /requests", s.handleClearRequests)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// securityHeaders keeps the editor page from being framed or sniffed.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "same-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
