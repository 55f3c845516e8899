// Command subvoice turns a subtitle file into a single timed voice-over track.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/blackandcode/convert-subtitles-to-audio/internal/cache"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/config"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/events"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/pipeline"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/subtitle"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/synth"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/telemetry"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/tts"
)

var version = "0.1.0-dev"

func main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "subvoice [subtitles.srt]",
		Short:        "Synthesize a timed voice-over track from subtitle cues",
		Args:         cobra.MaximumNArgs(1),
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			return runBuild(cmd.Context(), cfg)
		},
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to YAML configuration file")
	flags.String("job", "", "Job name, namespaces cache entries and output files")
	flags.String("provider", "", "Synthesis provider (mock|exec|openai|elevenlabs)")

	build := root.Flags()
	build.StringP("out", "o", "", "Output WAV path (default output/<job>-<provider>-voiceover.wav)")
	build.String("model", "", "Provider model override")
	build.String("voice", "", "Provider voice override")
	build.Bool("no-fill", false, "Do not pad short cues with silence up to the cue end")
	build.Bool("hard-cut", false, "Truncate overflowing cues instead of speeding them up")
	build.Int("pad-start", 0, "Leading silence in milliseconds")
	build.Int("pad-end", 0, "Trailing silence in milliseconds")
	build.Int("max-chars", 0, "Per-request character budget for long cues")
	build.Float64("max-speedup", 0, "Upper bound for overflow playback speedup")
	build.Int("workers", 0, "Concurrent synthesis workers")
	build.String("cache-path", "", "SQLite cache file location")
	build.Bool("no-cache", false, "Skip the synthesis cache for this run")

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Remove cached synthesis results for the configured provider and job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			return runPurge(cmd.Context(), cfg)
		},
	}
	root.AddCommand(purge)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig merges, in increasing precedence: defaults, the YAML file,
// environment overrides, then command-line flags.
func loadConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if len(args) == 1 {
		cfg.Input = args[0]
	}
	overrideFromFlag(cmd, "job", &cfg.Job)
	overrideFromFlag(cmd, "provider", &cfg.TTS.Provider)
	overrideFromFlag(cmd, "out", &cfg.Output)
	overrideFromFlag(cmd, "model", &cfg.TTS.OpenAI.Model)
	overrideFromFlag(cmd, "voice", &cfg.TTS.OpenAI.Voice)
	if flagChanged(cmd, "no-fill") {
		v, _ := cmd.Flags().GetBool("no-fill")
		cfg.Pipeline.FillToEnd = !v
	}
	if flagChanged(cmd, "hard-cut") {
		cfg.Pipeline.HardCut, _ = cmd.Flags().GetBool("hard-cut")
	}
	if flagChanged(cmd, "pad-start") {
		cfg.Pipeline.PadLeadingMS, _ = cmd.Flags().GetInt("pad-start")
	}
	if flagChanged(cmd, "pad-end") {
		cfg.Pipeline.PadTrailingMS, _ = cmd.Flags().GetInt("pad-end")
	}
	if flagChanged(cmd, "max-chars") {
		cfg.Pipeline.MaxCharsPerCall, _ = cmd.Flags().GetInt("max-chars")
	}
	if flagChanged(cmd, "max-speedup") {
		cfg.Pipeline.MaxSpeedup, _ = cmd.Flags().GetFloat64("max-speedup")
	}
	if flagChanged(cmd, "workers") {
		cfg.Pipeline.SynthWorkers, _ = cmd.Flags().GetInt("workers")
	}
	overrideFromFlag(cmd, "cache-path", &cfg.Cache.Path)
	if flagChanged(cmd, "no-cache") {
		if v, _ := cmd.Flags().GetBool("no-cache"); v {
			cfg.Cache.Mode = "ephemeral"
		}
	}

	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func overrideFromFlag(cmd *cobra.Command, name string, target *string) {
	if flagChanged(cmd, name) {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			*target = v
		}
	}
}

func runBuild(ctx context.Context, cfg config.Config) error {
	logger := telemetry.NewLogger(cfg.Telemetry.LogLevel)
	runID := uuid.NewString()
	logger = logger.With(slog.String("job", cfg.Job), slog.String("run_id", runID))

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Job, runID, logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	backend, err := tts.NewBackend(cfg.TTS, cfg.Audio)
	if err != nil {
		return err
	}

	store, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	publisher, err := events.Connect(cfg.Events, cfg.Job, runID, logger)
	if err != nil {
		return fmt.Errorf("connect events: %w", err)
	}
	defer publisher.Close()

	cues, err := subtitle.ParseFile(cfg.Input)
	if err != nil {
		return fmt.Errorf("parse subtitles: %w", err)
	}
	logger.Info("subtitles loaded",
		slog.String("input", cfg.Input),
		slog.Int("cues", len(cues)),
		slog.String("provider", backend.Name()))

	synthesizer := synth.New(backend, store, cfg.Job, cfg.Audio, logger)
	started := time.Now()
	track, err := pipeline.New(synthesizer, cfg.Pipeline, cfg.Audio, logger, publisher).Build(ctx, cues)
	if err != nil {
		return fmt.Errorf("build track: %w", err)
	}

	out := outputPath(cfg, backend.Name())
	if dir := filepath.Dir(out); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := track.WriteWAVFile(out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	logger.Info("voice-over written",
		slog.String("path", out),
		slog.Duration("track", track.Duration()),
		slog.Duration("elapsed", time.Since(started)))
	return nil
}

func outputPath(cfg config.Config, provider string) string {
	if cfg.Output != "" {
		return cfg.Output
	}
	return filepath.Join("output", fmt.Sprintf("%s-%s-voiceover.wav", cfg.Job, provider))
}

func runPurge(ctx context.Context, cfg config.Config) error {
	logger := telemetry.NewLogger(cfg.Telemetry.LogLevel)
	store, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	n, err := store.Purge(ctx, cfg.TTS.Provider, cfg.Job)
	if err != nil {
		return err
	}
	logger.Info("cache purged",
		slog.String("provider", cfg.TTS.Provider),
		slog.String("job", cfg.Job),
		slog.Int64("entries", n))
	return nil
}
