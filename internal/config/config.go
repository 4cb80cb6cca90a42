// Package config provides the configuration schema, loader, and provider registry
// for the livevad streaming voice-activity detection service.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/livevad/pkg/audio"
	"github.com/MrWong99/livevad/pkg/provider/vad"
)

// LogLevel controls log verbosity for the livevad server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the matching [slog.Level]. Unknown values map to Info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultWSPath           = "/ws"
	DefaultMaxConnections   = 256
	DefaultMaxMessageBytes  = 1 << 20
	DefaultWriteTimeout     = 5 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultInputSampleRate  = 44100
	DefaultOutputSampleRate = 16000
	DefaultWindowSize       = 1536
	DefaultVADProvider      = "energy"
	DefaultThreshold        = 0.5
	DefaultMinSilenceMs     = 100
	DefaultSpeechPadMs      = 30
	DefaultTimeResolution   = 1
	DefaultServiceName      = "livevad"
	DefaultMetricsPath      = "/metrics"

	DefaultBreakerMaxFailures  = 5
	DefaultBreakerResetTimeout = 30 * time.Second
)

// Config is the root configuration structure for livevad.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the livevad server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// WSPath is the HTTP path of the streaming WebSocket endpoint.
	WSPath string `yaml:"ws_path"`

	// MaxConnections caps concurrently served streams. Further clients are
	// closed with status 1013 (try again later). Zero or unset selects the
	// default; -1 removes the cap.
	MaxConnections int `yaml:"max_connections"`

	// MaxMessageBytes is the largest inbound WebSocket message accepted.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`

	// WriteTimeout bounds each outbound event send.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Unlimited is the max_connections value that removes the connection cap.
const Unlimited = -1

// ConnectionLimit returns the stream cap in the form the server expects,
// where zero means unlimited.
func (s ServerConfig) ConnectionLimit() int {
	if s.MaxConnections == Unlimited {
		return 0
	}
	return s.MaxConnections
}

// AudioConfig describes the inbound PCM stream and the analysis window.
type AudioConfig struct {
	// InputSampleRate is the rate of the client's 16-bit mono PCM in Hz.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the nominal analysis rate in Hz. Decimation uses
	// floor(input/output), so the achieved rate may be higher.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// WindowSize is the number of decimated samples per analysis window.
	WindowSize int `yaml:"window_size"`
}

// Layout converts the audio block into an [audio.Layout].
func (a AudioConfig) Layout() audio.Layout {
	return audio.Layout{
		InputSampleRate:  a.InputSampleRate,
		OutputSampleRate: a.OutputSampleRate,
		WindowSize:       a.WindowSize,
	}
}

// VADConfig selects the scorer backend and its decision parameters.
type VADConfig struct {
	// Provider selects the registered scorer backend.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the primary provider cannot open a
	// scorer session. Each backend sits behind its own circuit breaker.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Breaker tunes the per-backend circuit breakers. Only used when
	// Fallbacks is non-empty.
	Breaker BreakerConfig `yaml:"breaker"`

	// Threshold is the speech probability threshold. Hot-reloadable.
	Threshold float64 `yaml:"threshold"`

	// MinSilenceDurationMs is how long silence must last before END. Nil
	// selects the default; zero is a valid explicit value. Hot-reloadable.
	MinSilenceDurationMs *int `yaml:"min_silence_duration_ms"`

	// SpeechPadMs widens each reported segment on both sides. Nil selects the
	// default. Hot-reloadable.
	SpeechPadMs *int `yaml:"speech_pad_ms"`

	// ReturnSeconds selects seconds (true) or sample offsets (false) for
	// event timestamps. Nil means true.
	ReturnSeconds *bool `yaml:"return_seconds"`

	// TimeResolution is the number of decimals second timestamps keep.
	TimeResolution *int `yaml:"time_resolution"`
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// MinSilence reports the effective minimum silence duration.
func (v VADConfig) MinSilence() time.Duration {
	return time.Duration(intOr(v.MinSilenceDurationMs, DefaultMinSilenceMs)) * time.Millisecond
}

// SpeechPad reports the effective speech padding.
func (v VADConfig) SpeechPad() time.Duration {
	return time.Duration(intOr(v.SpeechPadMs, DefaultSpeechPadMs)) * time.Millisecond
}

// ReturnsSeconds reports the effective return-seconds mode.
func (v VADConfig) ReturnsSeconds() bool {
	return v.ReturnSeconds == nil || *v.ReturnSeconds
}

// Resolution reports the effective time resolution.
func (v VADConfig) Resolution() int {
	return intOr(v.TimeResolution, DefaultTimeResolution)
}

// SessionConfig builds the per-session scorer configuration for layout. The
// scorer clock runs at the effective decimated rate so that timestamps are
// seconds of real audio.
func (v VADConfig) SessionConfig(layout audio.Layout) vad.Config {
	return vad.Config{
		SampleRate:         layout.EffectiveOutputRate(),
		NominalSampleRate:  layout.OutputSampleRate,
		FrameSize:          layout.WindowSize,
		SpeechThreshold:    v.Threshold,
		MinSilenceDuration: v.MinSilence(),
		SpeechPad:          v.SpeechPad(),
		ReturnSeconds:      v.ReturnsSeconds(),
		TimeResolution:     v.Resolution(),
	}
}

// ProviderEntry is the configuration block of a scorer backend.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "energy", "silero").
	Name string `yaml:"name"`

	// Model is a model file path for backends that need one (e.g., the
	// Silero ONNX model).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// Float returns Options[key] as a float64 if present and numeric.
func (p ProviderEntry) Float(key string) (float64, bool) {
	switch v := p.Options[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// BreakerConfig tunes the circuit breaker guarding each scorer backend.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive session-open failures that
	// trip the breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long a tripped breaker rejects sessions before
	// letting a probe through.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	// ServiceName is reported as the OTel service.name.
	ServiceName string `yaml:"service_name"`

	// MetricsPath is the HTTP path of the Prometheus endpoint.
	MetricsPath string `yaml:"metrics_path"`
}

// ApplyDefaults fills every unset field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.WSPath == "" {
		s.WSPath = DefaultWSPath
	}
	if s.MaxConnections == 0 {
		s.MaxConnections = DefaultMaxConnections
	}
	if s.MaxMessageBytes == 0 {
		s.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	a := &cfg.Audio
	if a.InputSampleRate == 0 {
		a.InputSampleRate = DefaultInputSampleRate
	}
	if a.OutputSampleRate == 0 {
		a.OutputSampleRate = DefaultOutputSampleRate
	}
	if a.WindowSize == 0 {
		a.WindowSize = DefaultWindowSize
	}

	v := &cfg.VAD
	if v.Provider.Name == "" {
		v.Provider.Name = DefaultVADProvider
	}
	if v.Threshold == 0 {
		v.Threshold = DefaultThreshold
	}
	if v.Breaker.MaxFailures == 0 {
		v.Breaker.MaxFailures = DefaultBreakerMaxFailures
	}
	if v.Breaker.ResetTimeout == 0 {
		v.Breaker.ResetTimeout = DefaultBreakerResetTimeout
	}

	t := &cfg.Telemetry
	if t.ServiceName == "" {
		t.ServiceName = DefaultServiceName
	}
	if t.MetricsPath == "" {
		t.MetricsPath = DefaultMetricsPath
	}
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
