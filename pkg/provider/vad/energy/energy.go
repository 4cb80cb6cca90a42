// Package energy provides a pure-Go VAD engine that scores windows by their
// RMS level. It needs no model file and is the default backend.
//
// The level in dBFS is mapped linearly onto a probability: FloorDB and below
// score 0, CeilDB and above score 1. The resulting probabilities feed the same
// hysteresis state machine as every other backend ([vad.Iterator]).
package energy

import (
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/livevad/pkg/provider/vad"
)

const (
	defaultFloorDB = -60.0
	defaultCeilDB  = -20.0

	// silenceDB is reported for a window of exact zeros.
	silenceDB = -120.0
)

// Option is a functional option for configuring the energy Engine.
type Option func(*Engine)

// WithFloorDB sets the level in dBFS that maps to probability 0.
func WithFloorDB(db float64) Option {
	return func(e *Engine) {
		e.floorDB = db
	}
}

// WithCeilDB sets the level in dBFS that maps to probability 1.
func WithCeilDB(db float64) Option {
	return func(e *Engine) {
		e.ceilDB = db
	}
}

// Engine implements vad.Engine with an RMS energy model.
type Engine struct {
	floorDB float64
	ceilDB  float64
}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// New creates an energy Engine. CeilDB must be above FloorDB.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		floorDB: defaultFloorDB,
		ceilDB:  defaultCeilDB,
	}
	for _, o := range opts {
		o(e)
	}
	if e.ceilDB <= e.floorDB {
		return nil, fmt.Errorf("energy: ceil %g dB must be above floor %g dB", e.ceilDB, e.floorDB)
	}
	if e.ceilDB > 0 {
		return nil, fmt.Errorf("energy: ceil %g dB must not exceed 0 dBFS", e.ceilDB)
	}
	return e, nil
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	return vad.NewIterator(&model{floorDB: e.floorDB, ceilDB: e.ceilDB}, cfg)
}

// model is stateless; each window is scored on its own.
type model struct {
	floorDB float64
	ceilDB  float64
}

func (m *model) Probability(frame []float32) (float64, error) {
	if len(frame) == 0 {
		return 0, errors.New("energy: empty window")
	}
	db := LevelDB(frame)
	p := (db - m.floorDB) / (m.ceilDB - m.floorDB)
	return min(1, max(0, p)), nil
}

func (m *model) ResetState() {}

// RMS returns the root mean square of frame.
func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// LevelDB returns the RMS level of frame in dBFS, floored at -120.
func LevelDB(frame []float32) float64 {
	rms := RMS(frame)
	if rms == 0 {
		return silenceDB
	}
	return max(silenceDB, 20*math.Log10(rms))
}
