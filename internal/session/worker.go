package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/livevad/internal/observe"
	"github.com/MrWong99/livevad/pkg/audio"
	"github.com/MrWong99/livevad/pkg/provider/vad"
	"github.com/MrWong99/livevad/pkg/types"
)

// Transport is the per-connection message channel a [Worker] serves.
type Transport interface {
	// Receive blocks until the next inbound audio payload arrives. It returns
	// [ErrConnectionClosed] when the peer ended the stream normally and
	// [ErrUnsupportedMessage] for payloads that cannot carry audio. It must
	// return promptly once ctx is cancelled.
	Receive(ctx context.Context) ([]byte, error)

	// Send delivers one event to the client.
	Send(ctx context.Context, ev types.SpeechEvent) error
}

// Extractor turns one raw window of inbound bytes into one analysis window.
// [*audio.WindowExtractor] is the production implementation.
type Extractor interface {
	RawWindowBytes() int
	Extract(raw []byte) ([]float32, error)
}

// WorkerConfig configures a [Worker].
type WorkerConfig struct {
	// ID identifies the connection in logs, spans and metrics.
	ID string

	// Layout describes the inbound stream and analysis window. Ignored when
	// Extractor is set.
	Layout audio.Layout

	// Extractor overrides the extractor built from Layout.
	Extractor Extractor

	// Scorer is the connection's own scorer session. The worker takes
	// ownership and closes it on teardown.
	Scorer vad.SessionHandle

	// Transport is the connection. Required.
	Transport Transport

	// Metrics receives session metrics. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Worker binds one connection to one byte queue, extractor and [Detector].
// Run processes inbound audio strictly in arrival order and sends each
// event as soon as its window has been scored.
type Worker struct {
	id        string
	transport Transport
	extractor Extractor
	scorer    vad.SessionHandle
	detector  *Detector
	metrics   *observe.Metrics
	logger    *slog.Logger

	queue audio.ByteQueue

	teardownOnce sync.Once
}

// NewWorker validates cfg and returns a Worker ready to Run.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Transport == nil {
		return nil, errors.New("session: transport must not be nil")
	}
	if cfg.Scorer == nil {
		return nil, errors.New("session: scorer must not be nil")
	}
	ex := cfg.Extractor
	if ex == nil {
		we, err := audio.NewWindowExtractor(cfg.Layout)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		ex = we
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	logger := slog.Default().With(slog.String("conn_id", cfg.ID))
	return &Worker{
		id:        cfg.ID,
		transport: cfg.Transport,
		extractor: ex,
		scorer:    cfg.Scorer,
		detector:  NewDetector(cfg.Scorer, logger),
		metrics:   m,
		logger:    logger,
	}, nil
}

// ID returns the connection ID.
func (w *Worker) ID() string { return w.id }

// Detector exposes the worker's state machine for inspection.
func (w *Worker) Detector() *Detector { return w.detector }

// Run serves the connection until the peer disconnects, ctx is cancelled, or
// a session-fatal error occurs. A normal disconnect returns nil. Every exit
// path tears the session down exactly once; an open segment is discarded
// without a closing END.
func (w *Worker) Run(ctx context.Context) (err error) {
	ctx = observe.WithConnID(ctx, w.id)
	ctx, span := observe.StartSpan(ctx, "vad.session",
		trace.WithAttributes(attribute.String("conn.id", w.id)),
	)
	defer span.End()
	w.logger = observe.Logger(ctx)
	w.detector.logger = w.logger

	defer w.Close()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session: panic: %v", r)
			w.logger.Error("session panicked", "panic", r, "stack", string(debug.Stack()))
			w.metrics.RecordSessionError(ctx, "panic")
		}
		if err != nil && ctx.Err() == nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int64("vad.windows", w.detector.Windows()))
	}()

	w.logger.Info("session started")
	for {
		msg, rerr := w.transport.Receive(ctx)
		switch {
		case rerr == nil:
		case errors.Is(rerr, ErrConnectionClosed):
			w.logger.Info("connection closed", "status", w.detector.Status())
			return nil
		case ctx.Err() != nil:
			w.logger.Info("session cancelled", "cause", context.Cause(ctx))
			return ctx.Err()
		default:
			err = fmt.Errorf("session: receive: %w", rerr)
			w.fail(ctx, err)
			return err
		}

		if ferr := w.Feed(ctx, msg); ferr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.fail(ctx, ferr)
			return ferr
		}
	}
}

// fail logs and counts a session-fatal error.
func (w *Worker) fail(ctx context.Context, err error) {
	kind := ErrorKind(err)
	w.metrics.RecordSessionError(ctx, kind)
	w.logger.Warn("session terminated", "kind", kind, "err", err)
}

// Feed appends msg to the byte queue and processes every complete window,
// sending each produced event before scoring the next window. Bytes short of
// a full window stay queued for the next call.
func (w *Worker) Feed(ctx context.Context, msg []byte) error {
	w.metrics.BytesReceived.Add(ctx, int64(len(msg)))
	w.queue.Append(msg)

	for raw := range w.queue.Windows(w.extractor.RawWindowBytes()) {
		samples, err := w.extractor.Extract(raw)
		if err != nil {
			return fmt.Errorf("session: extract window: %w", err)
		}

		start := time.Now()
		ev, ok, err := w.detector.Process(samples)
		w.metrics.ScoreDuration.Record(ctx, time.Since(start).Seconds())
		w.metrics.WindowsProcessed.Add(ctx, 1)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if err := w.transport.Send(ctx, ev); err != nil {
			return &SendError{Err: err}
		}
		w.metrics.RecordSpeechEvent(ctx, string(ev.Kind))
		w.logger.Debug("speech event sent", "kind", ev.Kind, "timestamp", ev.Timestamp)
	}
	return nil
}

// Close tears the session down: it resets the detector and scorer, discards
// buffered bytes and closes the scorer. Only the first call has any effect.
func (w *Worker) Close() {
	w.teardownOnce.Do(func() {
		w.detector.Reset()
		w.queue.Reset()
		if err := w.scorer.Close(); err != nil {
			w.logger.Warn("close scorer", "err", err)
		}
	})
}
