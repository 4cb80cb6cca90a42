package vad

import (
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/livevad/pkg/types"
)

// Model scores a single window with a speech probability in [0, 1].
// Implementations may carry recurrent state between calls; ResetState clears it.
type Model interface {
	Probability(frame []float32) (float64, error)
	ResetState()
}

// Iterator turns per-window probabilities from a [Model] into speech
// boundaries. It implements [SessionHandle].
//
// A window with probability ≥ SpeechThreshold starts a segment (or cancels a
// pending end). While in a segment, a window below the silence threshold
// records a tentative end; the end is reported once MinSilenceDuration of
// samples has passed since that point without speech returning. Both
// boundaries are widened by SpeechPad and measured on a clock that advances
// by the window length at SampleRate.
type Iterator struct {
	model Model
	cfg   Config

	speechThreshold   float64
	silenceThreshold  float64
	minSilenceSamples int64
	speechPadSamples  int64
	roundScale        float64

	currentSample int64
	tempEnd       int64
	triggered     bool
	closed        bool
}

// Compile-time interface assertion.
var _ SessionHandle = (*Iterator)(nil)

// NewIterator validates cfg and wraps model in a hysteresis state machine.
func NewIterator(model Model, cfg Config) (*Iterator, error) {
	if model == nil {
		return nil, fmt.Errorf("vad: model must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Iterator{
		model:             model,
		cfg:               cfg,
		speechThreshold:   cfg.SpeechThreshold,
		silenceThreshold:  cfg.EffectiveSilenceThreshold(),
		minSilenceSamples: durationToSamples(cfg.MinSilenceDuration, cfg.SampleRate),
		speechPadSamples:  durationToSamples(cfg.SpeechPad, cfg.SampleRate),
		roundScale:        math.Pow10(cfg.TimeResolution),
	}, nil
}

func durationToSamples(d time.Duration, rate float64) int64 {
	return int64(d.Seconds() * rate)
}

// ProcessFrame implements [SessionHandle].
func (it *Iterator) ProcessFrame(frame []float32) (types.VADEvent, error) {
	if it.closed {
		return types.VADEvent{}, ErrSessionClosed
	}
	if it.cfg.FrameSize > 0 && len(frame) != it.cfg.FrameSize {
		return types.VADEvent{}, fmt.Errorf("vad: frame has %d samples, want %d", len(frame), it.cfg.FrameSize)
	}

	p, err := it.model.Probability(frame)
	if err != nil {
		return types.VADEvent{}, fmt.Errorf("vad: score window: %w", err)
	}

	n := int64(len(frame))
	it.currentSample += n

	if p >= it.speechThreshold && it.tempEnd != 0 {
		it.tempEnd = 0
	}

	if p >= it.speechThreshold && !it.triggered {
		it.triggered = true
		start := max(0, it.currentSample-it.speechPadSamples-n)
		return types.VADEvent{Type: types.VADSpeechStart, Probability: p, Timestamp: it.timestamp(start)}, nil
	}

	if p < it.silenceThreshold && it.triggered {
		if it.tempEnd == 0 {
			it.tempEnd = it.currentSample
		}
		if it.currentSample-it.tempEnd >= it.minSilenceSamples {
			end := it.tempEnd + it.speechPadSamples - n
			it.tempEnd = 0
			it.triggered = false
			return types.VADEvent{Type: types.VADSpeechEnd, Probability: p, Timestamp: it.timestamp(end)}, nil
		}
	}

	if it.triggered {
		return types.VADEvent{Type: types.VADSpeechContinue, Probability: p}, nil
	}
	return types.VADEvent{Type: types.VADSilence, Probability: p}, nil
}

// timestamp converts a sample offset into the configured unit.
func (it *Iterator) timestamp(sample int64) float64 {
	if !it.cfg.ReturnSeconds {
		return float64(sample)
	}
	secs := float64(sample) / it.cfg.SampleRate
	return math.RoundToEven(secs*it.roundScale) / it.roundScale
}

// Triggered reports whether the iterator is inside a speech segment.
func (it *Iterator) Triggered() bool { return it.triggered }

// Reset implements [SessionHandle].
func (it *Iterator) Reset() {
	if it.closed {
		return
	}
	it.model.ResetState()
	it.currentSample = 0
	it.tempEnd = 0
	it.triggered = false
}

// Close implements [SessionHandle].
func (it *Iterator) Close() error {
	it.closed = true
	return nil
}
