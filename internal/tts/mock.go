package tts

import (
	"context"
	"sync"
	"time"

	"github.com/blackandcode/convert-subtitles-to-audio/internal/audio"
)

// MockBackend produces deterministic silent WAV clips whose length is
// proportional to the input text. It backs dry runs and tests.
type MockBackend struct {
	format    audio.Format
	msPerChar int

	mu        sync.Mutex
	calls     map[string]int
	durations map[string]time.Duration
}

func NewMockBackend(format audio.Format) *MockBackend {
	return &MockBackend{
		format:    format,
		msPerChar: 60,
		calls:     make(map[string]int),
		durations: make(map[string]time.Duration),
	}
}

func (m *MockBackend) Name() string         { return "mock" }
func (m *MockBackend) OutputFormat() string { return "wav" }

func (m *MockBackend) Fingerprint() string {
	return "mock|silence|60ms-per-char"
}

// SetDuration pins the clip length returned for an exact text, overriding the
// proportional default.
func (m *MockBackend) SetDuration(text string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[text] = d
}

// Calls returns how many times text was synthesized.
func (m *MockBackend) Calls(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[text]
}

// TotalCalls returns the number of Synthesize invocations across all texts.
func (m *MockBackend) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *MockBackend) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls[text]++
	d, pinned := m.durations[text]
	m.mu.Unlock()

	if !pinned {
		d = time.Duration(len([]rune(text))*m.msPerChar) * time.Millisecond
	}
	return audio.Silence(d, m.format).EncodeWAVBytes()
}
