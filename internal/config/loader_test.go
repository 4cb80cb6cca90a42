package config_test

import (
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/livevad/internal/config"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "livevad.yaml")
	writeFile(t, path, sampleYAML)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist cause, got %v", err)
	}
}

func TestLoad_ParseErrorNamesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "broken.yaml")
	writeFile(t, path, "server: [unterminated\n")

	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
	if !strings.Contains(err.Error(), "broken.yaml") {
		t.Errorf("error should name the file, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
vad:
  threshold: 2
  time_resolution: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "vad.threshold", "time_resolution"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_ZeroMinSilenceIsValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("vad:\n  min_silence_duration_ms: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.VAD.MinSilence(); got != 0 {
		t.Errorf("min_silence: got %s, want 0", got)
	}
}

func TestValidate_MaxConnections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		yaml      string
		wantLimit int
	}{
		{"unset takes default", "", config.DefaultMaxConnections},
		{"zero takes default", "server:\n  max_connections: 0\n", config.DefaultMaxConnections},
		{"explicit cap", "server:\n  max_connections: 3\n", 3},
		{"minus one is unlimited", "server:\n  max_connections: -1\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := cfg.Server.ConnectionLimit(); got != tt.wantLimit {
				t.Errorf("ConnectionLimit() = %d, want %d", got, tt.wantLimit)
			}
		})
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("vad:\n  provider:\n    name: webrtc\n"))
	if err != nil {
		t.Fatalf("unknown provider names should only warn, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	names := config.ValidProviderNames["vad"]
	if len(names) == 0 {
		t.Fatal("ValidProviderNames[\"vad\"] should not be empty")
	}
	for _, want := range []string{"energy", "silero"} {
		if !slices.Contains(names, want) {
			t.Errorf("ValidProviderNames[\"vad\"] should contain %q", want)
		}
	}
}
