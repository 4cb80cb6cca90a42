//go:build silero

// Package silero provides a VAD engine backed by the Silero ONNX model through
// github.com/streamer45/silero-vad-go. It requires cgo and the ONNX Runtime
// shared library, so it is only compiled with the "silero" build tag.
package silero

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/MrWong99/livevad/pkg/provider/vad"
	"github.com/MrWong99/livevad/pkg/types"
)

// Available reports whether this binary was built with Silero support.
const Available = true

// Engine implements vad.Engine with one Silero detector per session.
type Engine struct {
	modelPath string
}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// New creates a Silero Engine for the ONNX model at modelPath.
func New(modelPath string) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("silero: model path must not be empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("silero: model: %w", err)
	}
	return &Engine{modelPath: modelPath}, nil
}

// NewSession implements vad.Engine. The model runs at cfg.ModelSampleRate,
// which must be 8000 or 16000; its timestamps are rescaled onto cfg.SampleRate.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rate := cfg.ModelSampleRate()
	if rate != 8000 && rate != 16000 {
		return nil, fmt.Errorf("silero: unsupported model sample rate %d (want 8000 or 16000)", rate)
	}
	det, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            e.modelPath,
		SampleRate:           rate,
		Threshold:            float32(cfg.SpeechThreshold),
		MinSilenceDurationMs: int(cfg.MinSilenceDuration.Milliseconds()),
		SpeechPadMs:          int(cfg.SpeechPad.Milliseconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("silero: create detector: %w", err)
	}
	return &session{
		det:   det,
		cfg:   cfg,
		scale: float64(rate) / cfg.SampleRate,
	}, nil
}

// session adapts the detector's segment output to one event per window.
type session struct {
	det   *speech.Detector
	cfg   vad.Config
	scale float64

	buf       []float32
	processed int64
	triggered bool
	pending   []types.VADEvent
	closed    bool
}

func (s *session) ProcessFrame(frame []float32) (types.VADEvent, error) {
	if s.closed {
		return types.VADEvent{}, vad.ErrSessionClosed
	}
	if s.cfg.FrameSize > 0 && len(frame) != s.cfg.FrameSize {
		return types.VADEvent{}, fmt.Errorf("silero: frame has %d samples, want %d", len(frame), s.cfg.FrameSize)
	}

	// Detect skips its final sub-window unless the input runs past it.
	s.buf = append(append(s.buf[:0], frame...), 0)
	s.processed += int64(len(frame))

	segments, err := s.det.Detect(s.buf)
	switch {
	case err != nil && strings.Contains(err.Error(), "unexpected speech end"):
		// The segment began in an earlier call; the detector has already
		// cleared it, so report the end at the current position.
		if s.triggered {
			s.queue(types.VADSpeechEnd, s.clockSeconds())
		}
	case err != nil:
		return types.VADEvent{}, fmt.Errorf("silero: detect: %w", err)
	default:
		for _, seg := range segments {
			s.queue(types.VADSpeechStart, s.rescale(seg.SpeechStartAt))
			if seg.SpeechEndAt > 0 {
				s.queue(types.VADSpeechEnd, s.rescale(seg.SpeechEndAt))
			}
		}
	}

	if len(s.pending) > 0 {
		ev := s.pending[0]
		s.pending = s.pending[1:]
		return ev, nil
	}
	if s.triggered {
		return types.VADEvent{Type: types.VADSpeechContinue}, nil
	}
	return types.VADEvent{Type: types.VADSilence}, nil
}

// queue records a boundary if it keeps START and END alternating.
func (s *session) queue(kind types.VADEventType, secs float64) {
	switch {
	case kind == types.VADSpeechStart && s.triggered:
		return
	case kind == types.VADSpeechEnd && !s.triggered:
		return
	}
	s.triggered = kind == types.VADSpeechStart
	s.pending = append(s.pending, types.VADEvent{Type: kind, Probability: 1, Timestamp: s.format(secs)})
}

// rescale converts detector seconds (at the model rate) to seconds on the
// session clock.
func (s *session) rescale(secs float64) float64 { return secs * s.scale }

func (s *session) clockSeconds() float64 { return float64(s.processed) / s.cfg.SampleRate }

func (s *session) format(secs float64) float64 {
	if !s.cfg.ReturnSeconds {
		return float64(int64(secs * s.cfg.SampleRate))
	}
	p := math.Pow10(s.cfg.TimeResolution)
	return math.RoundToEven(secs*p) / p
}

func (s *session) Reset() {
	if s.closed {
		return
	}
	_ = s.det.Reset()
	s.processed = 0
	s.triggered = false
	s.pending = s.pending[:0]
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.det.Destroy()
}
