// Package server exposes the livevad WebSocket endpoint. Each accepted
// connection gets its own scorer session and [session.Worker]; connections
// never share mutable state, so a failure in one stream cannot affect another.
//
// Close codes sent to clients:
//
//   - 1000 normal closure after the stream ended
//   - 1001 going away when the server shuts down
//   - 1003 unsupported data for text messages
//   - 1011 internal error for decode, scoring, send or panic failures
//   - 1013 try again later when the connection limit is reached
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/livevad/internal/observe"
	"github.com/MrWong99/livevad/internal/session"
	"github.com/MrWong99/livevad/pkg/audio"
	"github.com/MrWong99/livevad/pkg/provider/vad"
)

// errShutdown is the cancellation cause of workers still running when the
// [Server.Shutdown] deadline expires.
var errShutdown = errors.New("server: shutting down")

// ErrDraining is returned by [Server.Shutdown] when called twice.
var ErrDraining = errors.New("server: already draining")

// Config configures a [Server].
type Config struct {
	// Layout describes the inbound PCM stream. Required.
	Layout audio.Layout

	// Engine creates one scorer session per connection. Required.
	Engine vad.Engine

	// SessionConfig returns the scorer config for a new connection. It is
	// called once per connection so hot-reloaded parameters apply to new
	// streams only. Required.
	SessionConfig func() vad.Config

	// MaxConnections caps concurrently served streams. Zero means unlimited.
	MaxConnections int

	// MaxMessageBytes is the per-message read limit. Zero keeps the
	// websocket library default.
	MaxMessageBytes int64

	// WriteTimeout bounds each outbound event write.
	WriteTimeout time.Duration

	// AcceptOptions are passed to [websocket.Accept].
	AcceptOptions *websocket.AcceptOptions

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// Server accepts WebSocket streams and runs one [session.Worker] per
// connection. It implements [http.Handler].
type Server struct {
	cfg     Config
	sem     *semaphore.Weighted
	metrics *observe.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	conns    map[string]liveConn
	wg       sync.WaitGroup
	draining atomic.Bool
	active   atomic.Int64
}

var _ http.Handler = (*Server)(nil)

type liveConn struct {
	conn   *websocket.Conn
	cancel context.CancelCauseFunc
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine must not be nil")
	}
	if cfg.SessionConfig == nil {
		return nil, errors.New("server: session config func must not be nil")
	}
	if err := cfg.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if cfg.MaxConnections < 0 {
		return nil, fmt.Errorf("server: max connections must not be negative, got %d", cfg.MaxConnections)
	}
	s := &Server{
		cfg:     cfg,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		conns:   make(map[string]liveConn),
	}
	if cfg.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConnections))
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// ActiveConnections reports the number of streams currently being served.
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

// Draining reports whether [Server.Shutdown] has been called.
func (s *Server) Draining() bool {
	return s.draining.Load()
}

// ServeHTTP upgrades the request to a WebSocket and serves the stream until
// it ends. It returns only after the connection has been torn down.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, s.cfg.AcceptOptions)
	if err != nil {
		s.logger.Warn("websocket accept failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	id := uuid.NewString()
	logger := s.logger.With(slog.String("conn_id", id), slog.String("remote_addr", r.RemoteAddr))

	if s.sem != nil && !s.sem.TryAcquire(1) {
		s.metrics.RecordConnection(r.Context(), observe.OutcomeRejected)
		logger.Warn("connection limit reached", "max_connections", s.cfg.MaxConnections)
		conn.Close(websocket.StatusTryAgainLater, "connection limit reached")
		return
	}
	s.active.Add(1)
	defer func() {
		// Free the slot before the gauge drops so a zero count means a new
		// stream will be admitted.
		if s.sem != nil {
			s.sem.Release(1)
		}
		s.active.Add(-1)
	}()
	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)
	if !s.track(id, liveConn{conn: conn, cancel: cancel}) {
		conn.Close(websocket.StatusGoingAway, "server is shutting down")
		return
	}
	defer s.untrack(id)

	s.metrics.ConnectionOpened(ctx)
	logger.Info("connection accepted")

	runErr := s.serve(ctx, id, conn)

	code, reason, outcome := closeCode(runErr, s.draining.Load())
	s.metrics.ConnectionClosed(context.WithoutCancel(ctx), outcome)
	if err := conn.Close(code, reason); err != nil {
		logger.Debug("websocket close", "err", err)
	}
	logger.Info("connection finished", "code", int(code), "outcome", outcome)
}

// serve opens the connection's scorer session and runs its worker.
func (s *Server) serve(ctx context.Context, id string, conn *websocket.Conn) error {
	scorer, err := s.cfg.Engine.NewSession(s.cfg.SessionConfig())
	if err != nil {
		s.metrics.RecordSessionError(ctx, "scorer_init")
		return fmt.Errorf("server: open scorer session: %w", err)
	}
	worker, err := session.NewWorker(session.WorkerConfig{
		ID:        id,
		Layout:    s.cfg.Layout,
		Scorer:    scorer,
		Transport: newTransport(conn, s.cfg.WriteTimeout),
		Metrics:   s.metrics,
	})
	if err != nil {
		_ = scorer.Close()
		return err
	}
	return worker.Run(ctx)
}

// closeCode maps the worker's result to a WebSocket close code, a reason
// text and a metric outcome.
func closeCode(err error, draining bool) (websocket.StatusCode, string, string) {
	switch {
	case draining && (err == nil || errors.Is(err, context.Canceled)):
		return websocket.StatusGoingAway, "server is shutting down", observe.OutcomeShutdown
	case err == nil:
		return websocket.StatusNormalClosure, "stream ended", observe.OutcomeClosed
	case errors.Is(err, session.ErrUnsupportedMessage):
		return websocket.StatusUnsupportedData, "binary audio messages only", observe.OutcomeError
	}
	kind := session.ErrorKind(err)
	if kind == "transport" {
		kind = "internal error"
	}
	return websocket.StatusInternalError, kind, observe.OutcomeError
}

// track registers a live connection. It reports false once draining.
func (s *Server) track(id string, c liveConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining.Load() {
		return false
	}
	s.conns[id] = c
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	s.wg.Done()
}

// Shutdown stops accepting streams and closes every live connection with
// status 1001. Workers observe the close, tear down and return. If ctx
// expires first, remaining workers are cancelled and ctx's error returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.draining.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return ErrDraining
	}
	live := make([]liveConn, 0, len(s.conns))
	for _, c := range s.conns {
		live = append(live, c)
	}
	s.mu.Unlock()

	s.logger.Info("draining connections", "active", len(live))
	for _, c := range live {
		// Close waits for the peer's close frame, so run them concurrently.
		go c.conn.Close(websocket.StatusGoingAway, "server is shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, c := range live {
			c.cancel(errShutdown)
		}
		return fmt.Errorf("server: shutdown: %w", ctx.Err())
	}
}
