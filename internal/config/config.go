package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// PipelineConfig holds the timing-assembly knobs. Immutable for the duration
// of one build.
type PipelineConfig struct {
	FillToEnd       bool    `yaml:"fill_to_end"`
	HardCut         bool    `yaml:"hard_cut"`
	PadLeadingMS    int     `yaml:"pad_leading_ms"`
	PadTrailingMS   int     `yaml:"pad_trailing_ms"`
	MaxCharsPerCall int     `yaml:"max_chars_per_call"`
	MaxSpeedup      float64 `yaml:"max_speedup"`
	SynthWorkers    int     `yaml:"synth_workers"`
}

// AudioConfig is the PCM layout used for generated silence and raw-PCM
// backends.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

// CacheConfig controls the synthesis cache store.
type CacheConfig struct {
	Path string `yaml:"path"`
	Mode string `yaml:"mode"` // persistent | ephemeral
}

type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Voice          string `yaml:"voice"`
	ResponseFormat string `yaml:"response_format"` // wav | pcm
	Instructions   string `yaml:"instructions"`
	ForceLanguage  string `yaml:"force_language"`
}

type ElevenLabsConfig struct {
	BaseURL         string  `yaml:"base_url"`
	APIKey          string  `yaml:"api_key"`
	VoiceID         string  `yaml:"voice_id"`
	ModelID         string  `yaml:"model_id"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
	Style           float64 `yaml:"style"`
	UseSpeakerBoost bool    `yaml:"use_speaker_boost"`
}

type ExecConfig struct {
	Command string `yaml:"command"`
}

// TTSConfig selects and configures the synthesis backend.
type TTSConfig struct {
	Provider   string           `yaml:"provider"` // mock | exec | openai | elevenlabs
	OpenAI     OpenAIConfig     `yaml:"openai"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Exec       ExecConfig       `yaml:"exec"`
}

// EventsConfig controls the optional NATS progress publisher.
type EventsConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"` // empty disables the metrics listener
}

type Config struct {
	Job       string          `yaml:"job"`
	Input     string          `yaml:"input"`
	Output    string          `yaml:"output"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Audio     AudioConfig     `yaml:"audio"`
	Cache     CacheConfig     `yaml:"cache"`
	TTS       TTSConfig       `yaml:"tts"`
	Events    EventsConfig    `yaml:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

func Default() Config {
	return Config{
		Job:   "default",
		Input: "input.srt",
		Pipeline: PipelineConfig{
			FillToEnd:       true,
			HardCut:         false,
			PadLeadingMS:    0,
			PadTrailingMS:   0,
			MaxCharsPerCall: 4000,
			MaxSpeedup:      1.15,
			SynthWorkers:    4,
		},
		Audio: AudioConfig{
			SampleRate: 24000,
			Channels:   1,
		},
		Cache: CacheConfig{
			Path: ".cache/subvoice.db",
			Mode: "persistent",
		},
		TTS: TTSConfig{
			Provider: "openai",
			OpenAI: OpenAIConfig{
				BaseURL:        "https://api.openai.com/v1",
				Model:          "gpt-4o-mini-tts",
				Voice:          "alloy",
				ResponseFormat: "wav",
			},
			ElevenLabs: ElevenLabsConfig{
				BaseURL:         "https://api.elevenlabs.io",
				ModelID:         "eleven_multilingual_v2",
				Stability:       0.5,
				SimilarityBoost: 0.75,
			},
		},
		Events: EventsConfig{
			Enabled:        false,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "subvoice",
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPInsecure: true,
		},
	}
}

// Load reads the optional YAML config at path, applies environment overrides,
// and validates the result. Configuration errors are rejected here, before
// any build starts.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Job, "SUBVOICE_JOB")
	overrideString(&cfg.Input, "SUBVOICE_INPUT")
	overrideString(&cfg.Output, "SUBVOICE_OUTPUT")
	overrideBool(&cfg.Pipeline.FillToEnd, "SUBVOICE_FILL_TO_END")
	overrideBool(&cfg.Pipeline.HardCut, "SUBVOICE_HARD_CUT")
	overrideInt(&cfg.Pipeline.PadLeadingMS, "SUBVOICE_PAD_LEADING_MS")
	overrideInt(&cfg.Pipeline.PadTrailingMS, "SUBVOICE_PAD_TRAILING_MS")
	overrideInt(&cfg.Pipeline.MaxCharsPerCall, "SUBVOICE_MAX_CHARS")
	overrideFloat(&cfg.Pipeline.MaxSpeedup, "SUBVOICE_MAX_SPEEDUP")
	overrideInt(&cfg.Pipeline.SynthWorkers, "SUBVOICE_SYNTH_WORKERS")
	overrideInt(&cfg.Audio.SampleRate, "SUBVOICE_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "SUBVOICE_AUDIO_CHANNELS")
	overrideString(&cfg.Cache.Path, "SUBVOICE_CACHE_PATH")
	overrideString(&cfg.Cache.Mode, "SUBVOICE_CACHE_MODE")
	overrideString(&cfg.TTS.Provider, "SUBVOICE_TTS_PROVIDER")
	overrideString(&cfg.TTS.OpenAI.BaseURL, "SUBVOICE_OPENAI_BASE_URL")
	overrideString(&cfg.TTS.OpenAI.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.TTS.OpenAI.Model, "SUBVOICE_OPENAI_MODEL")
	overrideString(&cfg.TTS.OpenAI.Voice, "SUBVOICE_OPENAI_VOICE")
	overrideString(&cfg.TTS.OpenAI.ResponseFormat, "SUBVOICE_OPENAI_FORMAT")
	overrideString(&cfg.TTS.OpenAI.Instructions, "SUBVOICE_OPENAI_INSTRUCTIONS")
	overrideString(&cfg.TTS.OpenAI.ForceLanguage, "SUBVOICE_OPENAI_FORCE_LANGUAGE")
	overrideString(&cfg.TTS.ElevenLabs.BaseURL, "SUBVOICE_ELEVENLABS_BASE_URL")
	overrideString(&cfg.TTS.ElevenLabs.APIKey, "ELEVENLABS_API_KEY")
	overrideString(&cfg.TTS.ElevenLabs.VoiceID, "SUBVOICE_ELEVENLABS_VOICE_ID")
	overrideString(&cfg.TTS.ElevenLabs.ModelID, "SUBVOICE_ELEVENLABS_MODEL_ID")
	overrideFloat(&cfg.TTS.ElevenLabs.Stability, "SUBVOICE_ELEVENLABS_STABILITY")
	overrideFloat(&cfg.TTS.ElevenLabs.SimilarityBoost, "SUBVOICE_ELEVENLABS_SIMILARITY_BOOST")
	overrideFloat(&cfg.TTS.ElevenLabs.Style, "SUBVOICE_ELEVENLABS_STYLE")
	overrideBool(&cfg.TTS.ElevenLabs.UseSpeakerBoost, "SUBVOICE_ELEVENLABS_SPEAKER_BOOST")
	overrideString(&cfg.TTS.Exec.Command, "SUBVOICE_EXEC_COMMAND")
	overrideBool(&cfg.Events.Enabled, "SUBVOICE_EVENTS_ENABLED")
	overrideStringSlice(&cfg.Events.Servers, "SUBVOICE_EVENTS_SERVERS")
	overrideString(&cfg.Events.Username, "SUBVOICE_EVENTS_USERNAME")
	overrideString(&cfg.Events.Password, "SUBVOICE_EVENTS_PASSWORD")
	overrideString(&cfg.Events.Token, "SUBVOICE_EVENTS_TOKEN")
	overrideBool(&cfg.Events.TLSInsecure, "SUBVOICE_EVENTS_TLS_INSECURE")
	overrideInt(&cfg.Events.ConnectTimeout, "SUBVOICE_EVENTS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Events.SubjectPrefix, "SUBVOICE_EVENTS_SUBJECT_PREFIX")
	overrideString(&cfg.Telemetry.LogLevel, "SUBVOICE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SUBVOICE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SUBVOICE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "SUBVOICE_TELEMETRY_PROMETHEUS_BIND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func Validate(cfg Config) error {
	if cfg.Job == "" {
		return errors.New("job must not be empty")
	}
	if cfg.Pipeline.MaxSpeedup < 1.0 {
		return errors.New("pipeline.max_speedup must be >= 1.0")
	}
	if cfg.Pipeline.PadLeadingMS < 0 || cfg.Pipeline.PadTrailingMS < 0 {
		return errors.New("pipeline padding must not be negative")
	}
	if cfg.Pipeline.MaxCharsPerCall <= 0 {
		return errors.New("pipeline.max_chars_per_call must be positive")
	}
	if cfg.Pipeline.SynthWorkers < 1 {
		return errors.New("pipeline.synth_workers must be >= 1")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	switch cfg.Cache.Mode {
	case "persistent", "ephemeral":
	default:
		return errors.New("cache.mode must be one of persistent|ephemeral")
	}
	if cfg.Cache.Mode == "persistent" && cfg.Cache.Path == "" {
		return errors.New("cache.path must not be empty when cache is persistent")
	}
	switch cfg.TTS.Provider {
	case "mock":
	case "exec":
		if cfg.TTS.Exec.Command == "" {
			return errors.New("tts.exec.command must be set when provider=exec")
		}
	case "openai":
		if cfg.TTS.OpenAI.Model == "" || cfg.TTS.OpenAI.Voice == "" {
			return errors.New("tts.openai.model and tts.openai.voice must be set")
		}
		switch cfg.TTS.OpenAI.ResponseFormat {
		case "wav", "pcm":
		default:
			return errors.New("tts.openai.response_format must be one of wav|pcm")
		}
	case "elevenlabs":
		if cfg.TTS.ElevenLabs.VoiceID == "" {
			return errors.New("tts.elevenlabs.voice_id must be set when provider=elevenlabs")
		}
	default:
		return errors.New("tts.provider must be one of mock|exec|openai|elevenlabs")
	}
	if cfg.Events.Enabled && len(cfg.Events.Servers) == 0 {
		return errors.New("events.servers must not be empty when events are enabled")
	}
	return nil
}
