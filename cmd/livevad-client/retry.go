package main

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// errBusy means the server closed the stream with 1013 (try again later).
var errBusy = errors.New("server at connection limit")

// backoff retries a stream rejected with [errBusy], doubling the wait after
// each attempt up to max.
type backoff struct {
	attempts int
	initial  time.Duration
	max      time.Duration
}

// retry runs fn until it returns something other than errBusy, the attempts
// are used up, or ctx ends.
func (b backoff) retry(ctx context.Context, fn func() error) error {
	wait := b.initial
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if !errors.Is(err, errBusy) || attempt >= b.attempts {
			return err
		}
		slog.Info("server busy, retrying", "attempt", attempt, "max_attempts", b.attempts, "backoff", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, b.max)
	}
}
