// Package audio implements the byte-level half of the livevad pipeline:
// buffering arbitrarily chunked little-endian int16 PCM, slicing it into
// fixed-size raw windows, decoding those to normalised float samples and
// decimating them to the analysis rate.
//
// Nothing in this package keeps per-process state. Every type is owned by a
// single connection and is not safe for concurrent use unless documented
// otherwise.
package audio

import (
	"errors"
	"fmt"
)

// BytesPerSample is the size of one mono little-endian int16 PCM sample.
const BytesPerSample = 2

// Layout describes how an inbound PCM stream is reframed into analysis
// windows. It is fixed for the lifetime of a connection.
type Layout struct {
	// InputSampleRate is the rate of the inbound PCM stream in Hz (e.g. 44100).
	InputSampleRate int

	// OutputSampleRate is the nominal analysis rate in Hz (e.g. 16000). The
	// rate actually achieved is [Layout.EffectiveOutputRate].
	OutputSampleRate int

	// WindowSize is the number of output samples per analysis window.
	WindowSize int
}

// Validate reports whether the layout can drive a [WindowExtractor].
func (l Layout) Validate() error {
	var errs []error
	if l.InputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("input sample rate must be positive, got %d", l.InputSampleRate))
	}
	if l.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("output sample rate must be positive, got %d", l.OutputSampleRate))
	}
	if l.InputSampleRate > 0 && l.OutputSampleRate > l.InputSampleRate {
		errs = append(errs, fmt.Errorf("output sample rate %d exceeds input sample rate %d; only decimation is supported",
			l.OutputSampleRate, l.InputSampleRate))
	}
	if l.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %d", l.WindowSize))
	}
	return errors.Join(errs...)
}

// Factor returns the integer decimation factor floor(input / output). For
// 44100 → 16000 this is 2, not the true ratio 2.75625.
func (l Layout) Factor() int {
	if l.OutputSampleRate <= 0 {
		return 0
	}
	return l.InputSampleRate / l.OutputSampleRate
}

// EffectiveOutputRate is the sample rate the decimated windows really have:
// InputSampleRate / Factor. It differs from OutputSampleRate whenever the
// input rate is not an integer multiple of the output rate.
func (l Layout) EffectiveOutputRate() float64 {
	k := l.Factor()
	if k == 0 {
		return 0
	}
	return float64(l.InputSampleRate) / float64(k)
}

// RawWindowBytes is the number of inbound bytes that decode and decimate to
// exactly WindowSize output samples.
func (l Layout) RawWindowBytes() int {
	return l.WindowSize * l.Factor() * BytesPerSample
}
