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

// OpenAIBackend calls the OpenAI speech endpoint. Output format is restricted
// to wav/pcm so the pipeline can decode without a codec dependency.
type OpenAIBackend struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

type openAIRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
	Instructions   string `json:"instructions,omitempty"`
}

func NewOpenAIBackend(cfg config.OpenAIConfig) *OpenAIBackend {
	return &OpenAIBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OpenAIBackend) Name() string         { return "openai" }
func (o *OpenAIBackend) OutputFormat() string { return o.cfg.ResponseFormat }

func (o *OpenAIBackend) Fingerprint() string {
	return strings.Join([]string{
		"openai",
		o.cfg.Model,
		o.cfg.Voice,
		o.cfg.ResponseFormat,
		o.cfg.Instructions,
		o.cfg.ForceLanguage,
	}, "|")
}

func (o *OpenAIBackend) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if o.cfg.APIKey == "" {
		return nil, Fatal(fmt.Errorf("openai api key not configured"))
	}

	input := text
	if o.cfg.ForceLanguage != "" {
		input = fmt.Sprintf("[lang:%s] %s", o.cfg.ForceLanguage, text)
	}

	body, err := json.Marshal(openAIRequest{
		Model:          o.cfg.Model,
		Input:          input,
		Voice:          o.cfg.Voice,
		ResponseFormat: o.cfg.ResponseFormat,
		Instructions:   o.cfg.Instructions,
	})
	if err != nil {
		return nil, Fatal(fmt.Errorf("marshal speech request: %w", err))
	}

	url := strings.TrimRight(o.cfg.BaseURL, "/") + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, Fatal(fmt.Errorf("build speech request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, Transient(fmt.Errorf("openai request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("openai speech API status %d: %s", resp.StatusCode, string(detail))
		return nil, classifyStatus(resp.StatusCode, err)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(fmt.Errorf("read openai response: %w", err))
	}
	return audio, nil
}

// classifyStatus maps an HTTP status to the retry taxonomy: client errors are
// fatal except for timeouts and rate limits.
func classifyStatus(status int, err error) error {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return Transient(err)
	case status >= 500:
		return Transient(err)
	default:
		return Fatal(err)
	}
}
