//go:build !silero

// Package silero provides a VAD engine backed by the Silero ONNX model. This
// build was compiled without the "silero" tag, so New always fails.
package silero

import (
	"errors"

	"github.com/MrWong99/livevad/pkg/provider/vad"
)

// Available reports whether this binary was built with Silero support.
const Available = false

// ErrUnavailable is returned by New in builds without the "silero" tag.
var ErrUnavailable = errors.New("silero: not compiled in (rebuild with -tags silero)")

// Engine is never constructed in this build.
type Engine struct{}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// New always returns ErrUnavailable.
func New(string) (*Engine, error) { return nil, ErrUnavailable }

// NewSession implements vad.Engine.
func (*Engine) NewSession(vad.Config) (vad.SessionHandle, error) { return nil, ErrUnavailable }
