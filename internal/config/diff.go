package config

// ConfigDiff describes what changed between two configs.
// Hot-reloadable fields are reported individually; anything else is collected
// in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is true if a decision parameter (threshold, min silence,
	// speech pad, return seconds, time resolution) changed. New values apply
	// to sessions opened after the reload.
	VADChanged bool

	// RestartRequired lists the config sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Changed reports whether d contains any difference.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VADChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// VAD decision parameters.
	ov, nv := old.VAD, new.VAD
	if ov.Threshold != nv.Threshold ||
		ov.MinSilence() != nv.MinSilence() ||
		ov.SpeechPad() != nv.SpeechPad() ||
		ov.ReturnsSeconds() != nv.ReturnsSeconds() ||
		ov.Resolution() != nv.Resolution() {
		d.VADChanged = true
	}

	// Everything else is fixed for the process lifetime.
	os, ns := old.Server, new.Server
	os.LogLevel, ns.LogLevel = "", ""
	if os != ns {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !sameProvider(ov.Provider, nv.Provider) {
		d.RestartRequired = append(d.RestartRequired, "vad.provider")
	}
	if !sameFallbacks(ov.Fallbacks, nv.Fallbacks) || ov.Breaker != nv.Breaker {
		d.RestartRequired = append(d.RestartRequired, "vad.fallbacks")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

// sameProvider compares name and model. Options are compared shallowly by
// key and formatted value.
func sameProvider(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.Model != b.Model || len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || !equalScalar(av, bv) {
			return false
		}
	}
	return true
}

func sameFallbacks(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameProvider(a[i], b[i]) {
			return false
		}
	}
	return true
}

func equalScalar(a, b any) bool {
	switch a.(type) {
	case string, int, int64, float64, bool, nil:
		return a == b
	}
	// Nested maps and lists are treated as changed.
	return false
}
