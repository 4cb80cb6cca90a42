package audio

import "fmt"

// WindowExtractor turns one raw window of inbound bytes into one analysis
// window of normalised, decimated float samples.
type WindowExtractor struct {
	layout    Layout
	decimator Decimator
}

// NewWindowExtractor validates layout and returns an extractor for it.
func NewWindowExtractor(layout Layout) (*WindowExtractor, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("audio: window extractor: %w", err)
	}
	dec, err := NewDecimator(layout.InputSampleRate, layout.OutputSampleRate)
	if err != nil {
		return nil, err
	}
	return &WindowExtractor{layout: layout, decimator: dec}, nil
}

// Layout returns the layout the extractor was built with.
func (e *WindowExtractor) Layout() Layout { return e.layout }

// RawWindowBytes is the number of inbound bytes consumed per window.
func (e *WindowExtractor) RawWindowBytes() int { return e.layout.RawWindowBytes() }

// WindowSize is the number of samples in every extracted window.
func (e *WindowExtractor) WindowSize() int { return e.layout.WindowSize }

// Extract decodes raw and decimates the result. It returns a *[DecodeError]
// when raw is not sample aligned or does not hold exactly one raw window; both
// are impossible when windows come from [ByteQueue.Windows] with
// RawWindowBytes, but a wrong-sized window must never reach the scorer.
func (e *WindowExtractor) Extract(raw []byte) ([]float32, error) {
	samples, err := DecodePCM16(raw)
	if err != nil {
		return nil, err
	}
	if want := e.RawWindowBytes(); len(raw) != want {
		return nil, &DecodeError{Len: len(raw), Want: want}
	}
	return e.decimator.Resample(samples), nil
}
