package audio_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/livevad/pkg/audio"
	"pgregory.net/rapid"
)

func TestNewDecimator_Factor(t *testing.T) {
	tests := []struct {
		in, out int
		want    int
	}{
		{44100, 16000, 2},
		{48000, 16000, 3},
		{16000, 16000, 1},
		{44100, 22050, 2},
		{8000, 3000, 2},
	}
	for _, tc := range tests {
		d, err := audio.NewDecimator(tc.in, tc.out)
		if err != nil {
			t.Fatalf("NewDecimator(%d, %d): %v", tc.in, tc.out, err)
		}
		if d.Factor() != tc.want {
			t.Errorf("NewDecimator(%d, %d).Factor() = %d, want %d", tc.in, tc.out, d.Factor(), tc.want)
		}
	}
}

func TestNewDecimator_Invalid(t *testing.T) {
	for _, rates := range [][2]int{{16000, 44100}, {0, 16000}, {44100, 0}, {-1, 1}} {
		if _, err := audio.NewDecimator(rates[0], rates[1]); err == nil {
			t.Errorf("NewDecimator(%d, %d): expected error", rates[0], rates[1])
		}
	}
}

// The floor-divided factor makes 44.1 kHz input come out at 22.05 kHz, not the
// nominal 16 kHz.
func TestDecimator_EffectiveRate(t *testing.T) {
	d, err := audio.NewDecimator(44100, 16000)
	if err != nil {
		t.Fatalf("NewDecimator: %v", err)
	}
	if got := d.EffectiveRate(); got != 22050 {
		t.Errorf("EffectiveRate = %v, want 22050", got)
	}
	if got := d.EffectiveRate(); got == 16000 {
		t.Error("effective rate unexpectedly matches the nominal output rate")
	}
}

func TestDecimator_KeepsEveryKthFromZero(t *testing.T) {
	d, _ := audio.NewDecimator(48000, 16000)
	in := []float32{0, 1, 2, 3, 4, 5, 6, 7}
	got := d.Resample(in)
	want := []float32{0, 3}
	if !slices.Equal(got, want) {
		t.Errorf("Resample = %v, want %v", got, want)
	}
}

func TestDecimator_DoesNotModifyInput(t *testing.T) {
	d, _ := audio.NewDecimator(44100, 16000)
	in := []float32{0.1, 0.2, 0.3, 0.4}
	orig := slices.Clone(in)
	out := d.Resample(in)
	out[0] = 99
	if !slices.Equal(in, orig) {
		t.Errorf("input modified: %v", in)
	}
}

func TestDecimator_DeterministicAndSized(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.IntRange(8000, 96000).Draw(t, "in")
		out := rapid.IntRange(1000, in).Draw(t, "out")
		nOut := rapid.IntRange(1, 64).Draw(t, "nOut")
		d, err := audio.NewDecimator(in, out)
		if err != nil {
			t.Fatalf("NewDecimator(%d, %d): %v", in, out, err)
		}
		window := rapid.SliceOfN(rapid.Float32Range(-1, 1), nOut*d.Factor(), nOut*d.Factor()).Draw(t, "window")

		a := d.Resample(window)
		b := d.Resample(window)
		if len(a) != nOut {
			t.Fatalf("len = %d, want %d", len(a), nOut)
		}
		if !slices.Equal(a, b) {
			t.Fatal("Resample is not deterministic")
		}
	})
}
