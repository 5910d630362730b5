package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/vfaronov/turq/pkg/config"
	"github.com/vfaronov/turq/pkg/logging"
	"github.com/vfaronov/turq/pkg/metrics"
	"github.com/vfaronov/turq/pkg/requestlog"
	"github.com/vfaronov/turq/pkg/store"
	turqtls "github.com/vfaronov/turq/pkg/tls"
)

// Server is the mock server. It serves HTTP on the mock port and, when a
// TLS port is configured, HTTPS with the same handler.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	log       *slog.Logger
	metrics   *metrics.Metrics
	version   string
	tlsConfig *tls.Config
	reqlog    requestlog.Logger

	handler     *Handler
	httpHandler http.Handler // handler wrapped with instrumentation

	mu          sync.RWMutex
	running     bool
	startTime   time.Time
	httpServer  *http.Server
	httpsServer *http.Server
	listener    net.Listener
	tlsListener net.Listener
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger sets the operational logger for the server.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics records request metrics into m.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithVersion sets the version reported in the Server header.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		if version != "" {
			s.version = version
		}
	}
}

// WithRequestLog records every finished request into l.
func WithRequestLog(l requestlog.Logger) ServerOption {
	return func(s *Server) {
		s.reqlog = l
	}
}

// WithTLSConfig sets the TLS config of the HTTPS listener instead of
// building one from the configured certificate files.
func WithTLSConfig(cfg *tls.Config) ServerOption {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

// NewServer creates a mock server answering from st.
func NewServer(cfg *config.Config, st *store.Store, opts ...ServerOption) *Server {
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

	s.handler = NewHandler(st, s.version, cfg.MaxRequestBodySize)
	s.handler.SetOperationalLogger(s.log)
	s.httpHandler = instrument(s.handler, s.log, s.metrics, s.reqlog)
	return s
}

// Handler returns the instrumented mock handler.
func (s *Server) Handler() http.Handler {
	return s.httpHandler
}

// Start binds the mock listeners and serves them in the background. A bind
// failure is returned and leaves nothing running.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("server is already running")
	}

	ln, err := s.listen(s.cfg.MockAddr())
	if err != nil {
		return err
	}

	var tlsLn net.Listener
	if s.cfg.TLSPort > 0 {
		tlsCfg := s.tlsConfig
		if tlsCfg == nil {
			tlsCfg, err = turqtls.ServerConfig(s.cfg.TLSCert, s.cfg.TLSKey, s.cfg.Host())
			if err != nil {
				_ = ln.Close()
				return fmt.Errorf("failed to setup TLS: %w", err)
			}
		}
		rawTLS, err := s.listen(s.cfg.TLSAddr())
		if err != nil {
			_ = ln.Close()
			return err
		}
		tlsLn = tls.NewListener(rawTLS, tlsCfg)
	}

	s.listener = ln
	s.httpServer = s.newHTTPServer()
	s.log.Info("starting HTTP server", "addr", ln.Addr().String())
	go s.serve(s.httpServer, ln, "HTTP")

	if tlsLn != nil {
		s.tlsListener = tlsLn
		s.httpsServer = s.newHTTPServer()
		s.log.Info("starting HTTPS server", "addr", tlsLn.Addr().String())
		go s.serve(s.httpsServer, tlsLn, "HTTPS")
	}

	s.running = true
	s.startTime = time.Now()
	return nil
}

func (s *Server) listen(addr string) (net.Listener, error) {
	ln, err := net.Listen(s.cfg.Network(), addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	return ln, nil
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Handler:           s.httpHandler,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelDebug),
	}
}

func (s *Server) serve(srv *http.Server, ln net.Listener, name string) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error(name+" server error", "error", err)
	}
}

// Stop gracefully shuts down both listeners, waiting for in-flight
// requests until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
		}
	}
	if s.httpsServer != nil {
		if err := s.httpsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTPS shutdown: %w", err))
		}
	}

	s.running = false
	s.log.Info("mock server stopped")
	return errors.Join(errs...)
}

// Addr returns the address of the HTTP listener, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// TLSAddr returns the address of the HTTPS listener, or nil if there is none.
func (s *Server) TLSAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tlsListener == nil {
		return nil
	}
	return s.tlsListener.Addr()
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startTime)
}
