package audio

import "fmt"

// Decimator downsamples by keeping every k-th sample starting at index 0,
// where k = floor(input rate / output rate). No anti-aliasing filter is
// applied. Decimator is immutable and safe for concurrent use.
type Decimator struct {
	factor    int
	inputRate int
}

// NewDecimator returns a Decimator for the given rates. It fails when the
// integer factor would be zero.
func NewDecimator(inputRate, outputRate int) (Decimator, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return Decimator{}, fmt.Errorf("audio: decimator rates must be positive, got %d -> %d", inputRate, outputRate)
	}
	k := inputRate / outputRate
	if k < 1 {
		return Decimator{}, fmt.Errorf("audio: cannot decimate %d Hz to %d Hz", inputRate, outputRate)
	}
	return Decimator{factor: k, inputRate: inputRate}, nil
}

// Factor returns k.
func (d Decimator) Factor() int { return d.factor }

// EffectiveRate returns the sample rate of the decimated output.
func (d Decimator) EffectiveRate() float64 {
	if d.factor == 0 {
		return 0
	}
	return float64(d.inputRate) / float64(d.factor)
}

// OutputLen returns floor(n / k), the number of samples Resample produces for
// an input of n samples.
func (d Decimator) OutputLen(n int) int {
	if d.factor == 0 {
		return 0
	}
	return n / d.factor
}

// Resample returns a new slice holding in[0], in[k], in[2k], ... with exactly
// OutputLen(len(in)) elements. The input is never modified.
func (d Decimator) Resample(in []float32) []float32 {
	out := make([]float32, d.OutputLen(len(in)))
	for i := range out {
		out[i] = in[i*d.factor]
	}
	return out
}
