package tts

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/blackandcode/convert-subtitles-to-audio/internal/config"
	"github.com/mattn/go-shellwords"
)

// ExecBackend shells out to a local synthesis command. The command receives a
// JSON request on stdin and must write a complete WAV clip to stdout. Useful
// for piper-style local engines.
type ExecBackend struct {
	cmd        []string
	raw        string
	sampleRate int
	channels   int
}

type execRequest struct {
	Text       string `json:"text"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

func NewExecBackend(cfg config.ExecConfig, audioCfg config.AudioConfig) (*ExecBackend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &ExecBackend{
		cmd:        args,
		raw:        cfg.Command,
		sampleRate: audioCfg.SampleRate,
		channels:   audioCfg.Channels,
	}, nil
}

func (e *ExecBackend) Name() string         { return "exec" }
func (e *ExecBackend) OutputFormat() string { return "wav" }

func (e *ExecBackend) Fingerprint() string {
	// the command line determines the engine, model and voice
	sum := sha1.Sum([]byte(e.raw))
	return fmt.Sprintf("exec|%s|%d|%d", hex.EncodeToString(sum[:]), e.sampleRate, e.channels)
}

func (e *ExecBackend) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(execRequest{
		Text:       text,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		return nil, Fatal(fmt.Errorf("marshal tts request: %w", err))
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// the engine ran and failed; could be load or input pressure
			return nil, Transient(fmt.Errorf("tts command failed: %w: %s", err, stderr.String()))
		}
		return nil, Fatal(fmt.Errorf("tts command could not start: %w", err))
	}
	if stdout.Len() == 0 {
		return nil, Transient(fmt.Errorf("tts command produced no audio"))
	}
	return stdout.Bytes(), nil
}
