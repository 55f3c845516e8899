package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blackandcode/convert-subtitles-to-audio/internal/config"
)

// ElevenLabsBackend calls the ElevenLabs text-to-speech endpoint, requesting
// raw PCM at the pipeline sample rate.
type ElevenLabsBackend struct {
	cfg        config.ElevenLabsConfig
	sampleRate int
	client     *http.Client
}

type elevenLabsRequest struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id,omitempty"`
	VoiceSettings elevenLabsSettings `json:"voice_settings"`
}

type elevenLabsSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

func NewElevenLabsBackend(cfg config.ElevenLabsConfig, audioCfg config.AudioConfig) *ElevenLabsBackend {
	return &ElevenLabsBackend{
		cfg:        cfg,
		sampleRate: audioCfg.SampleRate,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *ElevenLabsBackend) Name() string         { return "elevenlabs" }
func (e *ElevenLabsBackend) OutputFormat() string { return "pcm" }

func (e *ElevenLabsBackend) Fingerprint() string {
	return strings.Join([]string{
		"elevenlabs",
		e.cfg.VoiceID,
		e.cfg.ModelID,
		fmt.Sprintf("pcm_%d", e.sampleRate),
		fmt.Sprintf("%.3f|%.3f|%.3f|%t",
			e.cfg.Stability, e.cfg.SimilarityBoost, e.cfg.Style, e.cfg.UseSpeakerBoost),
	}, "|")
}

func (e *ElevenLabsBackend) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if e.cfg.APIKey == "" {
		return nil, Fatal(fmt.Errorf("elevenlabs api key not configured"))
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: e.cfg.ModelID,
		VoiceSettings: elevenLabsSettings{
			Stability:       e.cfg.Stability,
			SimilarityBoost: e.cfg.SimilarityBoost,
			Style:           e.cfg.Style,
			UseSpeakerBoost: e.cfg.UseSpeakerBoost,
		},
	})
	if err != nil {
		return nil, Fatal(fmt.Errorf("marshal speech request: %w", err))
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=pcm_%d",
		strings.TrimRight(e.cfg.BaseURL, "/"), e.cfg.VoiceID, e.sampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, Fatal(fmt.Errorf("build speech request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, Transient(fmt.Errorf("elevenlabs request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("elevenlabs API status %d: %s", resp.StatusCode, string(detail))
		return nil, classifyStatus(resp.StatusCode, err)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(fmt.Errorf("read elevenlabs response: %w", err))
	}
	return audio, nil
}
