package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/livevad/internal/config"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()

	d := config.Diff(old, new)
	if d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level is hot-reloadable, got RestartRequired=%v", d.RestartRequired)
	}
}

func TestDiff_VADParameters(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.VADConfig)
	}{
		{"threshold", func(v *config.VADConfig) { v.Threshold = 0.7 }},
		{"min silence", func(v *config.VADConfig) { v.MinSilenceDurationMs = intPtr(300) }},
		{"speech pad", func(v *config.VADConfig) { v.SpeechPadMs = intPtr(0) }},
		{"return seconds", func(v *config.VADConfig) { v.ReturnSeconds = boolPtr(false) }},
		{"time resolution", func(v *config.VADConfig) { v.TimeResolution = intPtr(3) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			new := config.Default()
			tt.mutate(&new.VAD)

			d := config.Diff(old, new)
			if !d.VADChanged {
				t.Error("expected VADChanged=true")
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("decision parameters are hot-reloadable, got RestartRequired=%v", d.RestartRequired)
			}
		})
	}
}

func TestDiff_ExplicitDefaultIsNotAChange(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.VAD.MinSilenceDurationMs = intPtr(config.DefaultMinSilenceMs)
	new.VAD.ReturnSeconds = boolPtr(true)

	if d := config.Diff(old, new); d.Changed() {
		t.Errorf("spelling out defaults should not count as a change, got %+v", d)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.ListenAddr = ":9999"
	new.Audio.WindowSize = 512
	new.VAD.Provider = config.ProviderEntry{Name: "silero", Model: "/models/silero.onnx"}
	new.VAD.Fallbacks = []config.ProviderEntry{{Name: "energy"}}
	new.Telemetry.MetricsPath = "/prom"

	d := config.Diff(old, new)
	want := []string{"server", "audio", "vad.provider", "vad.fallbacks", "telemetry"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired: got %v, want %v", d.RestartRequired, want)
	}
	if d.VADChanged || d.LogLevelChanged {
		t.Errorf("unexpected hot-reload flags: %+v", d)
	}
}

func TestDiff_ProviderOptions(t *testing.T) {
	t.Parallel()
	old := config.Default()
	old.VAD.Provider.Options = map[string]any{"floor_db": -60}
	new := config.Default()
	new.VAD.Provider.Options = map[string]any{"floor_db": -60}

	if d := config.Diff(old, new); d.Changed() {
		t.Errorf("identical options should not differ, got %+v", d)
	}

	new.VAD.Provider.Options["floor_db"] = -50
	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "vad.provider") {
		t.Errorf("changed option should require restart, got %v", d.RestartRequired)
	}
}

func TestDiff_BreakerTuningRequiresRestart(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.VAD.Breaker.MaxFailures = 2

	d := config.Diff(old, new)
	if !slices.Equal(d.RestartRequired, []string{"vad.fallbacks"}) {
		t.Errorf("RestartRequired: got %v, want [vad.fallbacks]", d.RestartRequired)
	}
}
