// Package types defines the shared types used across all livevad packages.
//
// These types form the lingua franca between the scorer providers, the
// per-connection detector and the transport. Each package defines its own
// domain types, but cross-cutting data structures live here to avoid circular
// imports.
package types

import (
	"encoding/json"
	"fmt"
)

// VADEvent represents a scorer decision for a single analysis window.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Probability is the speech probability score (0.0–1.0). Backends that do
	// not expose a raw probability leave it at zero.
	Probability float64

	// Timestamp is the boundary position on the session's own sample clock.
	// It is only meaningful for VADSpeechStart and VADSpeechEnd. The unit is
	// seconds or samples depending on the scorer's return-seconds mode.
	Timestamp float64
}

// IsBoundary reports whether the event marks a speech start or end.
func (e VADEvent) IsBoundary() bool {
	return e.Type == VADSpeechStart || e.Type == VADSpeechEnd
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)

// String returns a short lowercase name for the event type.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	}
	return fmt.Sprintf("VADEventType(%d)", int(t))
}

// SpeechEventKind is the kind of boundary carried by a [SpeechEvent].
type SpeechEventKind string

const (
	// SpeechStart marks the beginning of a speech segment.
	SpeechStart SpeechEventKind = "START"

	// SpeechEnd marks the end of a speech segment.
	SpeechEnd SpeechEventKind = "END"
)

// IsValid reports whether k is a recognised event kind.
func (k SpeechEventKind) IsValid() bool {
	return k == SpeechStart || k == SpeechEnd
}

// SpeechEvent is a segment boundary delivered to exactly one client connection.
// It is ephemeral: events are sent as they are produced and never stored.
type SpeechEvent struct {
	// Kind is START or END.
	Kind SpeechEventKind `json:"kind"`

	// Timestamp is the boundary position relative to the start of the
	// connection's audio stream.
	Timestamp float64 `json:"timestamp"`
}

// MarshalJSON validates the kind before encoding so that a zero-value event
// never reaches a client.
func (e SpeechEvent) MarshalJSON() ([]byte, error) {
	if !e.Kind.IsValid() {
		return nil, fmt.Errorf("types: invalid speech event kind %q", e.Kind)
	}
	type wire SpeechEvent
	return json.Marshal(wire(e))
}
