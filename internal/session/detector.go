// Package session implements the per-connection side of livevad: the speech
// state machine that turns scorer decisions into START/END events, and the
// worker that binds one transport connection to one buffer, extractor and
// state machine for the connection's lifetime.
//
// Nothing in this package is shared between connections. A [Worker] and its
// [Detector] are owned by the goroutine serving the connection.
package session

import (
	"log/slog"

	"github.com/MrWong99/livevad/pkg/provider/vad"
	"github.com/MrWong99/livevad/pkg/types"
)

// Status is the speech state of a [Detector].
type Status int

const (
	// StatusSilence is the initial state.
	StatusSilence Status = iota

	// StatusSpeech means a START has been emitted without a matching END.
	StatusSpeech
)

// String returns "SILENCE" or "SPEECH".
func (s Status) String() string {
	if s == StatusSpeech {
		return "SPEECH"
	}
	return "SILENCE"
}

// Detector is the per-session speech state machine. It feeds one window at a
// time to a [vad.SessionHandle] and emits zero or one [types.SpeechEvent] per
// window, guaranteeing that START and END strictly alternate beginning with
// START. Boundaries that would break the alternation are dropped.
//
// A Detector is not safe for concurrent use.
type Detector struct {
	handle vad.SessionHandle
	logger *slog.Logger

	status       Status
	segmentStart float64
	windows      int64
}

// NewDetector wraps handle. A nil logger selects [slog.Default].
func NewDetector(handle vad.SessionHandle, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{handle: handle, logger: logger}
}

// Process scores window and returns the boundary it produced, if any. A
// scorer failure is returned as a *[ScoringError]; the detector state is
// left untouched and no event is produced.
func (d *Detector) Process(window []float32) (types.SpeechEvent, bool, error) {
	idx := d.windows
	d.windows++

	ev, err := d.handle.ProcessFrame(window)
	if err != nil {
		return types.SpeechEvent{}, false, &ScoringError{Window: idx, Err: err}
	}

	switch ev.Type {
	case types.VADSpeechStart:
		if d.status == StatusSpeech {
			d.logger.Debug("ignoring start while in speech", "window", idx, "timestamp", ev.Timestamp)
			return types.SpeechEvent{}, false, nil
		}
		d.status = StatusSpeech
		d.segmentStart = ev.Timestamp
		return types.SpeechEvent{Kind: types.SpeechStart, Timestamp: ev.Timestamp}, true, nil

	case types.VADSpeechEnd:
		if d.status != StatusSpeech {
			d.logger.Debug("ignoring end while in silence", "window", idx, "timestamp", ev.Timestamp)
			return types.SpeechEvent{}, false, nil
		}
		d.status = StatusSilence
		d.segmentStart = 0
		return types.SpeechEvent{Kind: types.SpeechEnd, Timestamp: ev.Timestamp}, true, nil
	}
	return types.SpeechEvent{}, false, nil
}

// Reset clears the scorer state and returns the detector to SILENCE. The
// next window is treated as the first of a new stream.
func (d *Detector) Reset() {
	d.handle.Reset()
	d.status = StatusSilence
	d.segmentStart = 0
	d.windows = 0
}

// Status returns the current speech state.
func (d *Detector) Status() Status { return d.status }

// SegmentStart returns the timestamp of the open segment's START, if any.
func (d *Detector) SegmentStart() (float64, bool) {
	return d.segmentStart, d.status == StatusSpeech
}

// Windows returns the number of windows processed since construction or the
// last Reset.
func (d *Detector) Windows() int64 { return d.windows }
