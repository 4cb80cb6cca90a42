// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script VADEvent responses and inspect the windows that were
// submitted for processing. Use Model to drive a real [vad.Iterator] with a
// fixed probability sequence.
//
// Example:
//
//	sess := &mock.Session{
//	    Events: []types.VADEvent{
//	        {Type: types.VADSpeechStart, Timestamp: 0.5},
//	        {Type: types.VADSpeechEnd, Timestamp: 1.2},
//	    },
//	}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"slices"
	"sync"

	"github.com/MrWong99/livevad/pkg/provider/vad"
	"github.com/MrWong99/livevad/pkg/types"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// falls back to NewSessionFunc, then to a new default Session.
	Session vad.SessionHandle

	// NewSessionFunc, if set and Session is nil, builds the handle for each
	// call. Use it when every stream needs its own session.
	NewSessionFunc func(cfg vad.Config) (vad.SessionHandle, error)

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns the configured handle.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	if e.NewSessionFunc != nil {
		return e.NewSessionFunc(cfg)
	}
	return &Session{}, nil
}

// Calls returns a copy of the recorded NewSession calls. Thread-safe.
func (e *Engine) Calls() []NewSessionCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.NewSessionCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// ProcessFrameCall records a single invocation of Session.ProcessFrame.
type ProcessFrameCall struct {
	// Frame is a copy of the samples passed to ProcessFrame.
	Frame []float32
}

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Events is consumed in order, one entry per ProcessFrame call. Once it
	// runs out, EventResult is returned.
	Events []types.VADEvent

	// EventResult is returned by ProcessFrame once Events is exhausted.
	EventResult types.VADEvent

	// ProcessFrameErr, if non-nil, is returned by ProcessFrame.
	ProcessFrameErr error

	// FailAt, if positive, makes only the FailAt-th ProcessFrame call (1-based)
	// return ProcessFrameErr. Zero means every call returns it.
	FailAt int

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ProcessFrameCalls records every call to ProcessFrame in order.
	ProcessFrameCalls []ProcessFrameCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// ProcessFrame records the call and returns the next scripted event.
func (s *Session) ProcessFrame(frame []float32) (types.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProcessFrameCalls = append(s.ProcessFrameCalls, ProcessFrameCall{Frame: slices.Clone(frame)})
	if s.ProcessFrameErr != nil && (s.FailAt == 0 || s.FailAt == len(s.ProcessFrameCalls)) {
		return types.VADEvent{}, s.ProcessFrameErr
	}
	if s.next < len(s.Events) {
		ev := s.Events[s.next]
		s.next++
		return ev, nil
	}
	return s.EventResult, nil
}

// Reset records the call by incrementing ResetCallCount and rewinds Events.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
	s.next = 0
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Counts returns the number of ProcessFrame, Reset and Close calls. Thread-safe.
func (s *Session) Counts() (frames, resets, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ProcessFrameCalls), s.ResetCallCount, s.CloseCallCount
}

// ResetCalls clears all recorded call history. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProcessFrameCalls = nil
	s.ResetCallCount = 0
	s.CloseCallCount = 0
	s.next = 0
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)

// Model is a mock implementation of vad.Model that returns Probabilities in
// order, then Fallback.
type Model struct {
	mu sync.Mutex

	// Probabilities is consumed one entry per Probability call.
	Probabilities []float64

	// Fallback is returned once Probabilities is exhausted.
	Fallback float64

	// Err, if non-nil, is returned by every Probability call.
	Err error

	// ResetStateCallCount is the number of times ResetState was called.
	ResetStateCallCount int

	next int
}

// Probability returns the next scripted probability.
func (m *Model) Probability(_ []float32) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	if m.next < len(m.Probabilities) {
		p := m.Probabilities[m.next]
		m.next++
		return p, nil
	}
	return m.Fallback, nil
}

// ResetState rewinds the script and counts the call.
func (m *Model) ResetState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetStateCallCount++
	m.next = 0
}

// Ensure Model implements vad.Model at compile time.
var _ vad.Model = (*Model)(nil)
