// Package app wires the livevad subsystems into a running service.
//
// The App struct owns the full lifecycle: New builds the scorer engine, the
// WebSocket server and the HTTP mux and binds the listener, Run serves until
// the context is cancelled, and Shutdown drains streams and tears everything
// down in order.
//
// For testing, inject doubles via functional options (WithEngine,
// WithListener, etc.). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/livevad/internal/config"
	"github.com/MrWong99/livevad/internal/health"
	"github.com/MrWong99/livevad/internal/observe"
	"github.com/MrWong99/livevad/internal/resilience"
	"github.com/MrWong99/livevad/internal/server"
	"github.com/MrWong99/livevad/pkg/provider/vad"
)

const (
	// readHeaderTimeout bounds the HTTP upgrade request.
	readHeaderTimeout = 10 * time.Second

	// engineProbeTimeout bounds the startup session probe.
	engineProbeTimeout = 10 * time.Second
)

// App owns all subsystem lifetimes of the livevad service.
type App struct {
	cfg *config.Config

	// vadCfg holds the decision parameters for new sessions. It is swapped
	// on hot reload.
	vadCfg atomic.Pointer[config.VADConfig]

	engine    vad.Engine
	server    *server.Server
	health    *health.Handler
	http      *http.Server
	listener  net.Listener
	metrics   *observe.Metrics
	registry  *prometheus.Registry
	levelVar  *slog.LevelVar
	watchPath string
	watchOpts []config.WatcherOption
	watcher   *config.Watcher

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce    sync.Once
	shutdownErr error
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithEngine injects a scorer engine instead of creating one from the registry.
func WithEngine(e vad.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithListener injects a bound listener instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithMetrics injects the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsRegistry sets the Prometheus registry served at the metrics path.
// When unset, the default Prometheus gatherer is served.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithLevelVar lets hot reload adjust the level of the process logger.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithConfigWatch enables hot reload from the config file at path.
func WithConfigWatch(path string, opts ...config.WatcherOption) Option {
	return func(a *App) {
		a.watchPath = path
		a.watchOpts = opts
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. Scorer backends are looked up in reg by
// vad.provider.name unless an engine is injected. The engine must open and
// close a session within ctx before anything is bound, so a broken backend
// fails at startup instead of on the first stream. New binds the listener so
// [App.Addr] is valid immediately.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	vadCfg := cfg.VAD
	a.vadCfg.Store(&vadCfg)
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Scorer engine ─────────────────────────────────────────────────
	if err := a.initEngine(reg); err != nil {
		return nil, fmt.Errorf("app: init engine: %w", err)
	}
	probeCtx, cancel := context.WithTimeout(ctx, engineProbeTimeout)
	err := health.EngineChecker("vad", a.engine, a.SessionConfig).Check(probeCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("app: probe engine: %w", err)
	}

	// ── 2. WebSocket server ──────────────────────────────────────────────
	srv, err := server.New(server.Config{
		Layout:          cfg.Audio.Layout(),
		Engine:          a.engine,
		SessionConfig:   a.SessionConfig,
		MaxConnections:  cfg.Server.ConnectionLimit(),
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		WriteTimeout:    cfg.Server.WriteTimeout,
		Metrics:         a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}
	a.server = srv

	// ── 3. Health checks ─────────────────────────────────────────────────
	a.health = health.New(
		health.EngineChecker("vad", a.engine, a.SessionConfig),
		health.DrainChecker(srv.Draining),
	)

	// ── 4. HTTP server ───────────────────────────────────────────────────
	if err := a.initHTTP(); err != nil {
		return nil, fmt.Errorf("app: init http: %w", err)
	}

	// ── 5. Config hot reload ─────────────────────────────────────────────
	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.OnConfigChange, a.watchOpts...)
		if err != nil {
			_ = a.listener.Close()
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error {
			w.Stop()
			return nil
		})
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initEngine creates the scorer engine from the registry unless injected.
// With vad.fallbacks configured, the primary and fallbacks are combined into
// a [resilience.Failover].
func (a *App) initEngine(reg *config.Registry) error {
	if a.engine != nil {
		return nil
	}
	if reg == nil {
		return errors.New("no provider registry and no engine injected")
	}
	v := a.cfg.VAD
	eng, err := reg.CreateVAD(v.Provider)
	if err != nil {
		return fmt.Errorf("create vad provider %q: %w", v.Provider.Name, err)
	}
	slog.Info("provider created", "kind", "vad", "name", v.Provider.Name)
	if len(v.Fallbacks) == 0 {
		a.engine = eng
		return nil
	}

	backends := []resilience.Backend{{Name: v.Provider.Name, Engine: eng}}
	for i, entry := range v.Fallbacks {
		fb, err := reg.CreateVAD(entry)
		if err != nil {
			return fmt.Errorf("create vad fallback %d (%q): %w", i, entry.Name, err)
		}
		backends = append(backends, resilience.Backend{
			Name:   fmt.Sprintf("%s#%d", entry.Name, i+1),
			Engine: fb,
		})
		slog.Info("provider created", "kind", "vad-fallback", "name", entry.Name)
	}
	failover, err := resilience.NewFailover(resilience.FailoverConfig{
		MaxFailures:  v.Breaker.MaxFailures,
		ResetTimeout: v.Breaker.ResetTimeout,
	}, backends...)
	if err != nil {
		return err
	}
	a.engine = failover
	return nil
}

// initHTTP builds the mux and binds the listener.
func (a *App) initHTTP() error {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Server.WSPath, a.server)
	mux.Handle("GET "+a.cfg.Telemetry.MetricsPath, observe.MetricsHandler(a.registry))
	a.health.Register(mux)

	a.http = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	if a.listener == nil {
		l, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen on %q: %w", a.cfg.Server.ListenAddr, err)
		}
		a.listener = l
	}
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Addr returns the address the service listens on.
func (a *App) Addr() net.Addr { return a.listener.Addr() }

// Server returns the WebSocket server.
func (a *App) Server() *server.Server { return a.server }

// SessionConfig returns the scorer config for a new connection, built from
// the current (possibly hot-reloaded) decision parameters.
func (a *App) SessionConfig() vad.Config {
	return a.vadCfg.Load().SessionConfig(a.cfg.Audio.Layout())
}

// OnConfigChange applies the hot-reloadable parts of a config change. Other
// changes are logged as requiring a restart.
func (a *App) OnConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged {
		if a.levelVar != nil {
			a.levelVar.Set(d.NewLogLevel.SlogLevel())
		}
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VADChanged {
		vadCfg := new.VAD
		vadCfg.Provider = a.cfg.VAD.Provider
		vadCfg.Fallbacks = a.cfg.VAD.Fallbacks
		vadCfg.Breaker = a.cfg.VAD.Breaker
		a.vadCfg.Store(&vadCfg)
		slog.Info("vad parameters reloaded; applies to new connections",
			"threshold", vadCfg.Threshold,
			"min_silence", vadCfg.MinSilence(),
			"speech_pad", vadCfg.SpeechPad(),
		)
	}
	for _, section := range d.RestartRequired {
		slog.Warn("config change requires restart", "section", section)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and WebSocket traffic and blocks until ctx is cancelled or
// the listener fails. On return the App has been shut down with the
// configured shutdown timeout. A cancelled ctx yields ctx.Err().
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", "addr", a.Addr().String(),
			"ws_path", a.cfg.Server.WSPath,
			"metrics_path", a.cfg.Telemetry.MetricsPath,
		)
		if err := a.http.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown drains live streams, stops the HTTP server and runs the remaining
// closers. It respects the context deadline; later calls return the result
// of the first.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "active_connections", a.server.ActiveConnections())
		var errs []error

		// Streams first, so clients get 1001 rather than a dropped socket.
		if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, server.ErrDraining) {
			errs = append(errs, err)
		}
		if err := a.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: http shutdown: %w", err))
		}
		// Shutdown does not close a listener that was never served.
		if err := a.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("app: close listener: %w", err))
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, ctx.Err())
				a.shutdownErr = errors.Join(errs...)
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		a.shutdownErr = errors.Join(errs...)
		slog.Info("shutdown complete")
	})
	return a.shutdownErr
}
