package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vfaronov/turq/pkg/config"
	"github.com/vfaronov/turq/pkg/logging"
	"github.com/vfaronov/turq/pkg/metrics"
	"github.com/vfaronov/turq/pkg/requestlog"
	"github.com/vfaronov/turq/pkg/store"
)

// MaxScriptSize caps the size of a submitted script.
const MaxScriptSize = 1 << 20

// Server is the editor listener.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	log      *slog.Logger
	metrics  *metrics.Metrics
	version  string
	requests requestlog.Store
	handler  http.Handler

	mu         sync.RWMutex
	running    bool
	startTime  time.Time
	httpServer *http.Server
	listener   net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics records submissions into m and serves it on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithVersion sets the version shown on the page and in /status.
func WithVersion(version string) Option {
	return func(s *Server) {
		if version != "" {
			s.version = version
		}
	}
}

// WithRequestLog serves the recent mock requests in l on /requests.
func WithRequestLog(l requestlog.Store) Option {
	return func(s *Server) {
		s.requests = l
	}
}

// NewServer creates an editor for st.
func NewServer(cfg *config.Config, st *store.Store, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		cfg:     cfg,
		store:   st,
		log:     logging.Nop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = securityHeaders(mux)
	return s
}

// Handler returns the editor's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the editor port and serves it in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("editor is already running")
	}

	addr := s.cfg.EditorAddr()
	ln, err := net.Listen(s.cfg.Network(), addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelDebug),
	}
	s.running = true
	s.startTime = time.Now()

	s.log.Info("starting editor", "addr", ln.Addr().String())
	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("editor error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the editor down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.log.Info("editor stopped")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startTime)
}
