package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blackandcode/convert-subtitles-to-audio/internal/audio"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/config"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/subtitle"
)

var testFormat = audio.Format{SampleRate: 16000, Channels: 1}

// stubSynth returns silence of a configured duration per text, or a default
// proportional to length. Thread safe because the pool calls it concurrently.
type stubSynth struct {
	mu        sync.Mutex
	durations map[string]time.Duration
	calls     []string
	failOn    string
	err       error
}

func (s *stubSynth) Synthesize(_ context.Context, content string, _ float64) (audio.Segment, error) {
	s.mu.Lock()
	s.calls = append(s.calls, content)
	s.mu.Unlock()

	if s.failOn != "" && strings.Contains(content, s.failOn) {
		return audio.Segment{}, s.err
	}
	d, ok := s.durations[content]
	if !ok {
		d = time.Duration(len(content)) * 10 * time.Millisecond
	}
	return audio.Silence(d, testFormat), nil
}

func (s *stubSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newStub() *stubSynth {
	return &stubSynth{durations: map[string]time.Duration{}}
}

func testCfg() config.PipelineConfig {
	return config.PipelineConfig{
		FillToEnd:       true,
		MaxCharsPerCall: 4000,
		MaxSpeedup:      1.15,
		SynthWorkers:    2,
	}
}

func newPipeline(t *testing.T, synth Synthesizer, cfg config.PipelineConfig) *Pipeline {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(synth, cfg, config.AudioConfig{SampleRate: testFormat.SampleRate, Channels: testFormat.Channels}, log, nil)
}

func cue(index int, startMS, endMS int64, content string) subtitle.Cue {
	return subtitle.Cue{
		Index: index,
		Start: time.Duration(startMS) * time.Millisecond,
		End:   time.Duration(endMS) * time.Millisecond,
		Text:  content,
	}
}

// within asserts d is within one sample frame of want.
func within(t *testing.T, got, want time.Duration) {
	t.Helper()
	frame := time.Second / time.Duration(testFormat.SampleRate)
	if diff := got - want; diff > frame || diff < -frame {
		t.Fatalf("duration %v, want %v ±1 frame", got, want)
	}
}

func TestGapBetweenCuesIsFilledWithSilence(t *testing.T) {
	synth := newStub()
	synth.durations["one"] = time.Second
	synth.durations["two"] = time.Second

	track, err := newPipeline(t, synth, testCfg()).Build(context.Background(), []subtitle.Cue{
		cue(1, 0, 1000, "one"),
		cue(2, 2000, 3000, "two"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	within(t, track.Duration(), 3*time.Second)
}

func TestFillToEndPadsShortCueToSlot(t *testing.T) {
	synth := newStub()
	synth.durations["short"] = 600 * time.Millisecond

	track, err := newPipeline(t, synth, testCfg()).Build(context.Background(), []subtitle.Cue{
		cue(1, 0, 1000, "short"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	within(t, track.Duration(), time.Second)
}

func TestNoFillToEndKeepsLaterCuesAligned(t *testing.T) {
	synth := newStub()
	synth.durations["short"] = 600 * time.Millisecond
	synth.durations["next"] = 500 * time.Millisecond
	cfg := testCfg()
	cfg.FillToEnd = false

	track, err := newPipeline(t, synth, cfg).Build(context.Background(), []subtitle.Cue{
		cue(1, 0, 1000, "short"),
		cue(2, 1000, 2000, "next"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// 600ms audio + 400ms gap back to the second cue's start + 500ms audio
	within(t, track.Duration(), 1500*time.Millisecond)
}

func TestHardCutTruncatesToSlot(t *testing.T) {
	synth := newStub()
	synth.durations["long"] = 1500 * time.Millisecond
	cfg := testCfg()
	cfg.HardCut = true

	track, err := newPipeline(t, synth, cfg).Build(context.Background(), []subtitle.Cue{
		cue(1, 0, 1000, "long"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	within(t, track.Duration(), time.Second)
}

func TestOverflowSpeedsUpWithinCap(t *testing.T) {
	synth := newStub()
	synth.durations["long"] = 3 * time.Second
	cfg := testCfg()
	cfg.MaxSpeedup = 1.5

	track, err := newPipeline(t, synth, cfg).Build(context.Background(), []subtitle.Cue{
		cue(1, 0, 2000, "long"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	within(t, track.Duration(), 2*time.Second)
}

func TestCappedSpeedupLeavesResidualOverflow(t *testing.T) {
	synth := newStub()
	synth.durations["very long"] = 4 * time.Second
	cfg := testCfg()
	cfg.MaxSpeedup = 1.5

	track, err := newPipeline(t, synth, cfg).Build(context.Background(), []subtitle.Cue{
		cue(1, 0, 2000, "very long"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// 4000ms at the 1.5 cap is ~2667ms: past the slot, and accepted as-is.
	got := track.Duration()
	if got <= 2600*time.Millisecond || got >= 2700*time.Millisecond {
		t.Fatalf("expected ~2667ms residual overflow, got %v", got)
	}
}

func TestEmptyCueListYieldsOnlyPadding(t *testing.T) {
	cfg := testCfg()
	cfg.PadLeadingMS = 500
	cfg.PadTrailingMS = 500

	track, err := newPipeline(t, newStub(), cfg).Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	within(t, track.Duration(), time.Second)
}

func TestPaddingShiftsEveryCue(t *testing.T) {
	synth := newStub()
	synth.durations["hello"] = time.Second
	cfg := testCfg()
	cfg.PadLeadingMS = 250
	cfg.PadTrailingMS = 250

	track, err := newPipeline(t, synth, cfg).Build(context.Background(), []subtitle.Cue{
		cue(1, 0, 1000, "hello"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	within(t, track.Duration(), 1500*time.Millisecond)
}

func TestWhitespaceCueSkipsBackendAndFillsSlot(t *testing.T) {
	synth := newStub()

	track, err := newPipeline(t, synth, testCfg()).Build(context.Background(), []subtitle.Cue{
		cue(1, 0, 1000, "   "),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if synth.callCount() != 0 {
		t.Fatalf("whitespace cue must not reach the backend, got %d calls", synth.callCount())
	}
	within(t, track.Duration(), time.Second)
}

func TestZeroLengthSlotEmitsAudioUnmodified(t *testing.T) {
	synth := newStub()
	synth.durations["point"] = 800 * time.Millisecond

	track, err := newPipeline(t, synth, testCfg()).Build(context.Background(), []subtitle.Cue{
		cue(1, 1000, 1000, "point"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// 1000ms gap-fill + the full 800ms clip, no speedup, no cut
	within(t, track.Duration(), 1800*time.Millisecond)
}

func TestLongCueIsChunkedBeforeSynthesis(t *testing.T) {
	synth := newStub()
	cfg := testCfg()
	cfg.MaxCharsPerCall = 10

	_, err := newPipeline(t, synth, cfg).Build(context.Background(), []subtitle.Cue{
		cue(1, 0, 10000, "alpha beta gamma delta"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if synth.callCount() < 2 {
		t.Fatalf("expected chunked synthesis, got %d call(s)", synth.callCount())
	}
	for _, call := range synth.calls {
		if len([]rune(call)) > 10 {
			t.Fatalf("chunk %q exceeds the per-call budget", call)
		}
	}
}

func TestSynthesisFailureAbortsWithCueIndex(t *testing.T) {
	synth := newStub()
	synth.failOn = "broken"
	synth.err = errors.New("backend unavailable")

	_, err := newPipeline(t, synth, testCfg()).Build(context.Background(), []subtitle.Cue{
		cue(1, 0, 1000, "fine"),
		cue(2, 1000, 2000, "broken line"),
		cue(3, 2000, 3000, "never reached on the track"),
	})
	if err == nil {
		t.Fatal("expected build failure")
	}
	if !strings.Contains(err.Error(), "cue 2") {
		t.Fatalf("error must name the failing cue: %v", err)
	}
	if !errors.Is(err, synth.err) {
		t.Fatalf("backend cause lost from chain: %v", err)
	}
}

func TestManyCuesAssembleDeterministically(t *testing.T) {
	synth := newStub()
	cfg := testCfg()
	cfg.SynthWorkers = 4

	var cues []subtitle.Cue
	for i := 0; i < 20; i++ {
		start := int64(i * 500)
		cues = append(cues, cue(i+1, start, start+500, "tick"))
	}
	synth.durations["tick"] = 500 * time.Millisecond

	track, err := newPipeline(t, synth, cfg).Build(context.Background(), cues)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	within(t, track.Duration(), 10*time.Second)

	again, err := newPipeline(t, synth, cfg).Build(context.Background(), cues)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if track.Frames() != again.Frames() {
		t.Fatalf("non-deterministic assembly: %d vs %d frames", track.Frames(), again.Frames())
	}
}
