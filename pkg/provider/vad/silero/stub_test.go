//go:build !silero

package silero_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/livevad/pkg/provider/vad/silero"
)

func TestNew_Unavailable(t *testing.T) {
	if silero.Available {
		t.Fatal("Available = true in a build without the silero tag")
	}
	if _, err := silero.New("model.onnx"); !errors.Is(err, silero.ErrUnavailable) {
		t.Errorf("New = %v, want ErrUnavailable", err)
	}
}
