package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vfaronov/turq/pkg/config"
	"github.com/vfaronov/turq/pkg/editor"
	"github.com/vfaronov/turq/pkg/engine"
	"github.com/vfaronov/turq/pkg/logging"
	"github.com/vfaronov/turq/pkg/metrics"
	"github.com/vfaronov/turq/pkg/requestlog"
	"github.com/vfaronov/turq/pkg/rules"
	"github.com/vfaronov/turq/pkg/store"
)

func runServe(cmd *cobra.Command, f *serveFlags) error {
	cfg, err := loadConfig(cmd, f, nil)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.EffectiveLogLevel()),
		Format:  logging.ParseFormat(cfg.LogFormat),
		Output:  cmd.ErrOrStderr(),
		NoColor: cfg.NoColor,
	})

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	if err := a.start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return a.stop(shutdownCtx)
}

// app is one running turq process: the store shared by the mock server,
// the editor and the rules-file watcher.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *store.Store
	metrics  *metrics.Metrics
	requests *requestlog.Memory // nil when disabled

	mock    *engine.Server
	editor  *editor.Server
	watcher *config.Watcher
	done    chan struct{}
}

// newApp loads and compiles the startup rules. A script that does not
// compile is a startup error.
func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	text := rules.DefaultRules
	if cfg.RulesFile != "" {
		var err error
		if text, err = config.LoadRules(cfg.RulesFile); err != nil {
			return nil, err
		}
	}
	prog, err := rules.Compile(text)
	if err != nil {
		if cfg.RulesFile != "" {
			return nil, fmt.Errorf("%s: %w", cfg.RulesFile, err)
		}
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		store:   store.New(prog),
		metrics: metrics.New(),
		done:    make(chan struct{}),
	}
	a.metrics.ObserveSubmission("startup", true)
	a.metrics.SetRules(a.store.Current().Version, prog.Len())
	a.store.OnReplace(func(snap *store.Snapshot) {
		a.metrics.SetRules(snap.Version, snap.Program.Len())
		a.log.Debug("rules replaced", "version", snap.Version, "directives", snap.Program.Len())
	})

	mockOpts := []engine.ServerOption{
		engine.WithLogger(log),
		engine.WithMetrics(a.metrics),
		engine.WithVersion(Version),
	}
	editorOpts := []editor.Option{
		editor.WithLogger(log),
		editor.WithMetrics(a.metrics),
		editor.WithVersion(Version),
	}
	if cfg.RequestLogSize > 0 && !cfg.NoEditor {
		a.requests = requestlog.NewMemory(cfg.RequestLogSize)
		mockOpts = append(mockOpts, engine.WithRequestLog(a.requests))
		editorOpts = append(editorOpts, editor.WithRequestLog(a.requests))
	}

	a.mock = engine.NewServer(cfg, a.store, mockOpts...)
	if !cfg.NoEditor {
		a.editor = editor.NewServer(cfg, a.store, editorOpts...)
	}
	return a, nil
}

// start binds the listeners. A listener that fails to bind is reported and
// the others still start; it is an error only if nothing could start.
func (a *app) start() error {
	var errs []error

	if err := a.mock.Start(); err != nil {
		a.log.Error("mock server failed to start", "error", err)
		errs = append(errs, fmt.Errorf("mock server: %w", err))
	} else {
		a.banner("mock", a.mock.Addr(), "http")
		if addr := a.mock.TLSAddr(); addr != nil {
			a.banner("mock", addr, "https")
		}
	}

	if a.editor != nil {
		if err := a.editor.Start(); err != nil {
			a.log.Error("editor failed to start", "error", err)
			errs = append(errs, fmt.Errorf("editor: %w", err))
		} else {
			a.banner("editor", a.editor.Addr(), "http")
		}
	}

	if !a.mock.IsRunning() && (a.editor == nil || a.editor.Addr() == nil) {
		return errors.Join(errs...)
	}

	if a.cfg.Watch {
		a.watcher = config.NewWatcher(a.cfg.RulesFile, a.cfg.WatchInterval)
		go a.watch(a.watcher.Start())
		a.log.Info("watching rules file", "path", a.cfg.RulesFile)
	}
	return nil
}

// watch installs every readable change of the rules file. Compile errors
// are logged and leave the active rules in place.
func (a *app) watch(events <-chan config.WatchEvent) {
	for {
		select {
		case <-a.done:
			return
		case ev := <-events:
			if ev.Error != nil {
				a.log.Warn("cannot read rules file", "path", ev.Path, "error", ev.Error)
				continue
			}
			snap, err := a.store.Submit(ev.Text)
			a.metrics.ObserveSubmission("watch", err == nil)
			if err != nil {
				a.log.Error("rules file rejected", "path", ev.Path, "error", err)
				continue
			}
			a.log.Info("rules reloaded", "path", ev.Path, "version", snap.Version)
		}
	}
}

func (a *app) stop(ctx context.Context) error {
	close(a.done)
	if a.watcher != nil {
		a.watcher.Stop()
	}

	var errs []error
	if a.editor != nil {
		if err := a.editor.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("editor: %w", err))
		}
	}
	if err := a.mock.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mock server: %w", err))
	}
	return errors.Join(errs...)
}

// banner logs where a listener can be reached, e.g.
// "mock on 0.0.0.0 port 13085 - try http://localhost:13085/".
func (a *app) banner(label string, addr net.Addr, scheme string) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		a.log.Info(label + " on " + addr.String())
		return
	}
	host := tcp.IP.String()
	a.log.Info(fmt.Sprintf("%s on %s port %d - try %s", label, host, tcp.Port, tryURL(scheme, tcp)))
}

// tryURL is a URL a user on this machine can open for addr.
func tryURL(scheme string, addr *net.TCPAddr) string {
	host := addr.IP.String()
	if addr.IP.IsUnspecified() {
		host = "localhost"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(addr.Port)) + "/"
}
