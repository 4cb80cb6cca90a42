package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff_Retry(t *testing.T) {
	t.Parallel()

	errOther := errors.New("boom")
	tests := []struct {
		name      string
		results   []error
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{"first try succeeds", []error{nil}, 3, 1, nil},
		{"busy then ok", []error{errBusy, errBusy, nil}, 3, 3, nil},
		{"gives up", []error{errBusy, errBusy, errBusy, nil}, 3, 3, errBusy},
		{"other error not retried", []error{errOther, nil}, 3, 1, errOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := backoff{attempts: tt.attempts, initial: time.Millisecond, max: 2 * time.Millisecond}
			calls := 0
			err := b.retry(context.Background(), func() error {
				err := tt.results[calls]
				calls++
				return err
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBackoff_RetryStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	b := backoff{attempts: 10, initial: time.Hour, max: time.Hour}
	err := b.retry(ctx, func() error {
		cancel()
		return errBusy
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
