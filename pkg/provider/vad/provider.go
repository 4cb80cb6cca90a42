// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a window-level speech scorer (e.g., Silero VAD or an
// energy detector) and surfaces it as a stateful, per-stream session. Each
// session maintains its own internal state (sample clock, hysteresis, model
// recurrent state) so that multiple concurrent audio streams can be processed
// independently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// detection result. A session reports at most one speech boundary per window.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/livevad/pkg/types"
)

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("vad: session is closed")

// DefaultSilenceGap is subtracted from SpeechThreshold when SilenceThreshold
// is left at zero.
const DefaultSilenceGap = 0.15

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the real rate of the windows passed to ProcessFrame in Hz.
	// It drives the session's sample clock and therefore every timestamp.
	SampleRate float64

	// NominalSampleRate is the rate a model is told the audio has. Models
	// that only accept fixed rates (Silero: 8000 or 16000) use it instead of
	// SampleRate. Zero means "same as SampleRate".
	NominalSampleRate int

	// FrameSize is the number of samples in every window. ProcessFrame
	// returns an error if the supplied window does not match. Zero disables
	// the check.
	FrameSize int

	// SpeechThreshold is the probability at or above which a window counts as
	// speech. Range: (0.0, 1.0]. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which a window counts towards
	// ending an active segment. Must be ≤ SpeechThreshold. Zero selects
	// SpeechThreshold - DefaultSilenceGap.
	SilenceThreshold float64

	// MinSilenceDuration is how long the probability must stay below
	// SilenceThreshold before a segment end is reported.
	MinSilenceDuration time.Duration

	// SpeechPad widens reported segments on both sides.
	SpeechPad time.Duration

	// ReturnSeconds selects seconds (true) or sample offsets (false) for
	// event timestamps.
	ReturnSeconds bool

	// TimeResolution is the number of decimal places second timestamps are
	// rounded to. Ignored when ReturnSeconds is false.
	TimeResolution int
}

// EffectiveSilenceThreshold returns SilenceThreshold, or the default derived
// from SpeechThreshold when it is unset.
func (c Config) EffectiveSilenceThreshold() float64 {
	if c.SilenceThreshold > 0 {
		return c.SilenceThreshold
	}
	return c.SpeechThreshold - DefaultSilenceGap
}

// ModelSampleRate returns NominalSampleRate, falling back to SampleRate.
func (c Config) ModelSampleRate() int {
	if c.NominalSampleRate > 0 {
		return c.NominalSampleRate
	}
	return int(c.SampleRate)
}

// Validate reports every invalid field of c.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %g", c.SampleRate))
	}
	if c.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("frame size must not be negative, got %d", c.FrameSize))
	}
	if c.SpeechThreshold <= 0 || c.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("speech threshold must be in (0, 1], got %g", c.SpeechThreshold))
	}
	if c.SilenceThreshold < 0 || c.SilenceThreshold > c.SpeechThreshold {
		errs = append(errs, fmt.Errorf("silence threshold %g must be in [0, speech threshold %g]", c.SilenceThreshold, c.SpeechThreshold))
	}
	if c.MinSilenceDuration < 0 {
		errs = append(errs, fmt.Errorf("min silence duration must not be negative, got %s", c.MinSilenceDuration))
	}
	if c.SpeechPad < 0 {
		errs = append(errs, fmt.Errorf("speech pad must not be negative, got %s", c.SpeechPad))
	}
	if c.TimeResolution < 0 || c.TimeResolution > 6 {
		errs = append(errs, fmt.Errorf("time resolution must be in [0, 6], got %d", c.TimeResolution))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("vad: invalid config: %w", err)
	}
	return nil
}

// SessionHandle represents an active VAD session for a single audio stream. It is
// an interface so that test code can supply mock implementations without a live
// engine. Each session maintains its own detection state; Reset clears this state
// without closing the session.
//
// A SessionHandle should not be shared between goroutines unless the implementation
// explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame scores a single analysis window of normalised float
	// samples at the configured SampleRate and returns the decision. Only
	// [types.VADSpeechStart] and [types.VADSpeechEnd] carry a boundary
	// timestamp. Returns an error if the window has the wrong size or the
	// backend fails; the session state is then unspecified until Reset.
	ProcessFrame(frame []float32) (types.VADEvent, error)

	// Reset clears all accumulated detection state (sample clock, hysteresis,
	// model state) without closing the session. The next window is treated as
	// the first of a brand-new stream.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// ProcessFrame must return an error and Reset must be a no-op. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration. The session
	// is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid (e.g., unsupported sample
	// rate or threshold out of range) or if the engine cannot allocate
	// resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
