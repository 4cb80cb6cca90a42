package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vad": {"energy", "silero"},
}

// Load reads the YAML configuration file at path and returns a defaulted,
// validated [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Call it after
// [ApplyDefaults]. It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	s := cfg.Server
	if s.LogLevel != "" && !s.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", s.LogLevel))
	}
	if !strings.HasPrefix(s.WSPath, "/") {
		errs = append(errs, fmt.Errorf("server.ws_path %q must start with /", s.WSPath))
	}
	if s.MaxConnections < 1 && s.MaxConnections != Unlimited {
		errs = append(errs, fmt.Errorf("server.max_connections must be at least 1 or -1 for unlimited, got %d", s.MaxConnections))
	}
	if s.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_message_bytes must be positive, got %d", s.MaxMessageBytes))
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must not be negative, got %s", s.WriteTimeout))
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative, got %s", s.ShutdownTimeout))
	}

	// Audio
	if err := cfg.Audio.Layout().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("audio: %w", err))
	}

	// VAD
	v := cfg.VAD
	if v.Threshold <= 0 || v.Threshold > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold %g is out of range (0, 1]", v.Threshold))
	}
	if v.MinSilence() < 0 {
		errs = append(errs, fmt.Errorf("vad.min_silence_duration_ms must not be negative, got %d", *v.MinSilenceDurationMs))
	}
	if v.SpeechPad() < 0 {
		errs = append(errs, fmt.Errorf("vad.speech_pad_ms must not be negative, got %d", *v.SpeechPadMs))
	}
	if r := v.Resolution(); r < 0 || r > 6 {
		errs = append(errs, fmt.Errorf("vad.time_resolution %d is out of range [0, 6]", r))
	}
	if v.Provider.Name == "silero" && v.Provider.Model == "" {
		errs = append(errs, errors.New("vad.provider.model is required for the silero provider"))
	}
	validateProviderName("vad", v.Provider.Name)
	for i, fb := range v.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("vad.fallbacks[%d].name is required", i))
			continue
		}
		if fb.Name == "silero" && fb.Model == "" {
			errs = append(errs, fmt.Errorf("vad.fallbacks[%d].model is required for the silero provider", i))
		}
		validateProviderName("vad", fb.Name)
	}
	if v.Breaker.MaxFailures < 1 {
		errs = append(errs, fmt.Errorf("vad.breaker.max_failures must be at least 1, got %d", v.Breaker.MaxFailures))
	}
	if v.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("vad.breaker.reset_timeout must not be negative, got %s", v.Breaker.ResetTimeout))
	}

	// Telemetry
	if cfg.Telemetry.MetricsPath != "" && !strings.HasPrefix(cfg.Telemetry.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", cfg.Telemetry.MetricsPath))
	}
	if cfg.Telemetry.MetricsPath == s.WSPath {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path and server.ws_path must differ, both are %q", s.WSPath))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
