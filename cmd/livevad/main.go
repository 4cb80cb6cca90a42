// Command livevad is the main entry point for the livevad streaming
// voice-activity detection server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/MrWong99/livevad/internal/app"
	"github.com/MrWong99/livevad/internal/config"
	"github.com/MrWong99/livevad/internal/observe"
	"github.com/MrWong99/livevad/pkg/provider/vad"
	"github.com/MrWong99/livevad/pkg/provider/vad/energy"
	"github.com/MrWong99/livevad/pkg/provider/vad/silero"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (defaults apply when empty)")
	watch := flag.Bool("watch", true, "reload log level and VAD parameters when the config file changes")
	watchInterval := flag.Duration("watch-interval", config.DefaultWatchInterval, "config file polling interval")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "livevad: config file %q not found\n", *configPath)
			} else {
				fmt.Fprintf(os.Stderr, "livevad: %v\n", err)
			}
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("livevad starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := observe.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Registry:    promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinEngines(reg)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)
	warnEffectiveRate(cfg)

	opts := []app.Option{
		app.WithMetrics(metrics),
		app.WithMetricsRegistry(promReg),
		app.WithLevelVar(&level),
	}
	if *configPath != "" && *watch {
		opts = append(opts, app.WithConfigWatch(*configPath, config.WithInterval(*watchInterval)))
	}

	application, err := app.New(ctx, cfg, reg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down", "addr", application.Addr().String())

	// Run shuts the application down before returning.
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinEngines wires the scorer backends that ship with livevad
// into reg.
func registerBuiltinEngines(reg *config.Registry) {
	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if v, ok := entry.Float("floor_db"); ok {
			opts = append(opts, energy.WithFloorDB(v))
		}
		if v, ok := entry.Float("ceil_db"); ok {
			opts = append(opts, energy.WithCeilDB(v))
		}
		e, err := energy.New(opts...)
		if err != nil {
			return nil, err
		}
		return e, nil
	})

	reg.RegisterVAD("silero", func(entry config.ProviderEntry) (vad.Engine, error) {
		e, err := silero.New(entry.Model)
		if err != nil {
			return nil, err
		}
		return e, nil
	})

	for _, name := range reg.VADNames() {
		slog.Debug("registered provider", "kind", "vad", "name", name)
	}
	if !silero.Available {
		slog.Debug("silero backend not compiled in", "hint", "build with -tags silero")
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	layout := cfg.Audio.Layout()
	bar := strings.Repeat("═", summaryWidth)
	fmt.Println("╔" + bar + "╗")
	fmt.Printf("║ %-*s ║\n", summaryWidth-2, "livevad startup summary")
	fmt.Println("╠" + bar + "╣")
	printRow("Listen addr", cfg.Server.ListenAddr)
	printRow("Stream path", cfg.Server.WSPath)
	maxStreams := "unlimited"
	if n := cfg.Server.ConnectionLimit(); n > 0 {
		maxStreams = fmt.Sprint(n)
	}
	printRow("Max streams", maxStreams)
	printRow("Input rate", fmt.Sprintf("%d Hz", layout.InputSampleRate))
	printRow("Output rate", fmt.Sprintf("%d Hz (k=%d)", layout.OutputSampleRate, layout.Factor()))
	printRow("Effective", fmt.Sprintf("%.0f Hz", layout.EffectiveOutputRate()))
	printRow("Window", fmt.Sprintf("%d smp / %d B", layout.WindowSize, layout.RawWindowBytes()))
	scorer := cfg.VAD.Provider.Name
	if cfg.VAD.Provider.Model != "" {
		scorer += " / " + cfg.VAD.Provider.Model
	}
	printRow("Scorer", scorer)
	printRow("Threshold", fmt.Sprintf("%.2f", cfg.VAD.Threshold))
	printRow("Metrics path", cfg.Telemetry.MetricsPath)
	fmt.Println("╚" + bar + "╝")
}

// summaryWidth is the inner width of the startup box in runes.
const summaryWidth = 40

func printRow(label, value string) {
	const valueWidth = summaryWidth - 19
	if r := []rune(value); len(r) > valueWidth {
		value = string(r[:valueWidth-1]) + "…"
	}
	fmt.Printf("║ %-14s : %-*s ║\n", label, valueWidth, value)
}

// warnEffectiveRate flags layouts whose integer decimation does not reach the
// configured output rate.
func warnEffectiveRate(cfg *config.Config) {
	layout := cfg.Audio.Layout()
	eff := layout.EffectiveOutputRate()
	if eff == float64(layout.OutputSampleRate) {
		return
	}
	slog.Warn("input rate is not an integer multiple of the output rate; windows are analysed at the effective rate",
		"input_rate", layout.InputSampleRate,
		"output_rate", layout.OutputSampleRate,
		"factor", layout.Factor(),
		"effective_rate", eff,
	)
}
