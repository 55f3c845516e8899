package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Pipeline.FillToEnd {
		t.Fatal("expected fill_to_end default true")
	}
	if cfg.Pipeline.MaxSpeedup != 1.15 {
		t.Fatalf("expected default max_speedup 1.15, got %v", cfg.Pipeline.MaxSpeedup)
	}
	if cfg.Pipeline.MaxCharsPerCall != 4000 {
		t.Fatalf("expected default max chars 4000, got %d", cfg.Pipeline.MaxCharsPerCall)
	}
	if cfg.TTS.Provider != "openai" {
		t.Fatalf("expected default provider openai, got %q", cfg.TTS.Provider)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subvoice.yaml")
	data := `job: episode-12
pipeline:
  hard_cut: true
  max_speedup: 1.5
  synth_workers: 8
tts:
  provider: mock
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Job != "episode-12" {
		t.Fatalf("expected job override, got %q", cfg.Job)
	}
	if !cfg.Pipeline.HardCut || cfg.Pipeline.MaxSpeedup != 1.5 || cfg.Pipeline.SynthWorkers != 8 {
		t.Fatalf("pipeline overrides not applied: %+v", cfg.Pipeline)
	}
	if !cfg.Pipeline.FillToEnd {
		t.Fatal("unset keys should keep defaults")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SUBVOICE_JOB", "night-run")
	t.Setenv("SUBVOICE_TTS_PROVIDER", "mock")
	t.Setenv("SUBVOICE_MAX_SPEEDUP", "1.3")
	t.Setenv("SUBVOICE_FILL_TO_END", "false")
	t.Setenv("SUBVOICE_EVENTS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("SUBVOICE_CACHE_MODE", "ephemeral")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Job != "night-run" {
		t.Fatalf("expected job override, got %q", cfg.Job)
	}
	if cfg.TTS.Provider != "mock" {
		t.Fatalf("expected provider override, got %q", cfg.TTS.Provider)
	}
	if cfg.Pipeline.MaxSpeedup != 1.3 {
		t.Fatalf("expected max_speedup override, got %v", cfg.Pipeline.MaxSpeedup)
	}
	if cfg.Pipeline.FillToEnd {
		t.Fatal("expected fill_to_end override false")
	}
	if len(cfg.Events.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Events.Servers)
	}
	if cfg.Cache.Mode != "ephemeral" {
		t.Fatalf("expected cache mode override, got %q", cfg.Cache.Mode)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"speedup below one", func(c *Config) { c.Pipeline.MaxSpeedup = 0.9 }},
		{"negative leading pad", func(c *Config) { c.Pipeline.PadLeadingMS = -1 }},
		{"negative trailing pad", func(c *Config) { c.Pipeline.PadTrailingMS = -5 }},
		{"zero max chars", func(c *Config) { c.Pipeline.MaxCharsPerCall = 0 }},
		{"zero workers", func(c *Config) { c.Pipeline.SynthWorkers = 0 }},
		{"bad cache mode", func(c *Config) { c.Cache.Mode = "memory" }},
		{"persistent cache without path", func(c *Config) { c.Cache.Path = "" }},
		{"unknown provider", func(c *Config) { c.TTS.Provider = "espeak" }},
		{"exec without command", func(c *Config) { c.TTS.Provider = "exec" }},
		{"elevenlabs without voice", func(c *Config) { c.TTS.Provider = "elevenlabs" }},
		{"bad openai format", func(c *Config) { c.TTS.OpenAI.ResponseFormat = "mp3" }},
		{"events without servers", func(c *Config) { c.Events.Enabled = true; c.Events.Servers = nil }},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
