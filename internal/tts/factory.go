package tts

import (
	"fmt"

	"github.com/blackandcode/convert-subtitles-to-audio/internal/audio"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/config"
)

// NewBackend builds the configured synthesis backend.
func NewBackend(cfg config.TTSConfig, audioCfg config.AudioConfig) (Backend, error) {
	switch cfg.Provider {
	case "mock":
		return NewMockBackend(audio.Format{
			SampleRate: audioCfg.SampleRate,
			Channels:   audioCfg.Channels,
		}), nil
	case "exec":
		return NewExecBackend(cfg.Exec, audioCfg)
	case "openai":
		return NewOpenAIBackend(cfg.OpenAI), nil
	case "elevenlabs":
		return NewElevenLabsBackend(cfg.ElevenLabs, audioCfg), nil
	default:
		return nil, fmt.Errorf("unsupported tts provider %q", cfg.Provider)
	}
}
