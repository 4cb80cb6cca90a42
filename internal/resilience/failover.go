package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/livevad/pkg/provider/vad"
)

// ErrAllFailed is returned by [Failover.NewSession] when no backend could open
// a session.
var ErrAllFailed = errors.New("resilience: all scorer backends failed")

// Backend is a named scorer engine taking part in a [Failover].
type Backend struct {
	Name   string
	Engine vad.Engine
}

// FailoverConfig tunes the breakers created for each backend.
type FailoverConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
	Logger       *slog.Logger

	// Now overrides the breaker clock. Tests only.
	Now func() time.Time
}

type member struct {
	name    string
	engine  vad.Engine
	breaker *Breaker
}

// Failover is a [vad.Engine] that opens each session on the first backend
// whose breaker admits the call and whose NewSession succeeds. Backends are
// tried in the order given; the first is the primary.
//
// A session, once opened, stays on its backend for its whole lifetime.
type Failover struct {
	members []member
	logger  *slog.Logger
}

var _ vad.Engine = (*Failover)(nil)

// NewFailover returns a Failover over backends. At least one is required.
func NewFailover(cfg FailoverConfig, backends ...Backend) (*Failover, error) {
	if len(backends) == 0 {
		return nil, errors.New("resilience: failover needs at least one backend")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	f := &Failover{logger: cfg.Logger}
	for i, b := range backends {
		if b.Engine == nil {
			return nil, fmt.Errorf("resilience: backend %d (%q) has no engine", i, b.Name)
		}
		f.members = append(f.members, member{
			name:   b.Name,
			engine: b.Engine,
			breaker: NewBreaker(BreakerConfig{
				Name:         b.Name,
				MaxFailures:  cfg.MaxFailures,
				ResetTimeout: cfg.ResetTimeout,
				Logger:       cfg.Logger,
				Now:          cfg.Now,
			}),
		})
	}
	return f, nil
}

// NewSession implements [vad.Engine].
func (f *Failover) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	var errs []error
	for i, m := range f.members {
		var sess vad.SessionHandle
		err := m.breaker.Do(func() error {
			var err error
			sess, err = m.engine.NewSession(cfg)
			return err
		})
		if err == nil {
			if i > 0 {
				f.logger.Warn("scorer session opened on fallback backend", "backend", m.name)
			}
			return sess, nil
		}
		if !errors.Is(err, ErrCircuitOpen) {
			f.logger.Warn("scorer backend failed to open session", "backend", m.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

// States reports the breaker state of each backend, keyed by name.
func (f *Failover) States() map[string]State {
	out := make(map[string]State, len(f.members))
	for _, m := range f.members {
		out[m.name] = m.breaker.State()
	}
	return out
}
