package audio

import (
	"math"
	"time"
)

// sampleCount returns the number of samples covering d at rate.
func sampleCount(rate int, d time.Duration) int {
	if rate <= 0 || d <= 0 {
		return 0
	}
	return int(int64(rate) * int64(d) / int64(time.Second))
}

// Silence returns d worth of zero-valued mono PCM16 bytes at rate.
func Silence(rate int, d time.Duration) []byte {
	return make([]byte, sampleCount(rate, d)*BytesPerSample)
}

// Tone returns d worth of a sine wave at freq Hz as mono PCM16 bytes at rate.
// amplitude is relative to full scale and clamped to [0, 1].
func Tone(rate int, freq, amplitude float64, d time.Duration) []byte {
	amplitude = min(max(amplitude, 0), 1)
	samples := make([]int16, sampleCount(rate, d))
	for i := range samples {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		samples[i] = int16(v * math.MaxInt16)
	}
	return EncodePCM16(samples)
}
