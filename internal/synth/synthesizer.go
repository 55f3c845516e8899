// Package synth wraps a tts.Backend with caching, bounded retry and post-hoc
// playback-speed adjustment.
package synth

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/blackandcode/convert-subtitles-to-audio/internal/audio"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/cache"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/config"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/tts"
)

const (
	maxAttempts  = 4
	firstBackoff = 500 * time.Millisecond
)

// Error is the terminal synthesis failure surfaced to the pipeline. It ends
// the whole build; cache entries committed before the failure survive, so a
// re-run resumes cheaply.
type Error struct {
	Text     string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("synthesis failed after %d attempt(s) for %q: %v", e.Attempts, snippet(e.Text), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= 40 {
		return text
	}
	return string(runes[:40]) + "…"
}

// Synthesizer turns text into decoded audio, consulting the cache before the
// backend. Safe for concurrent use.
type Synthesizer struct {
	backend tts.Backend
	store   *cache.Store
	job     string
	pcm     audio.Format
	log     *slog.Logger

	// injectable for tests
	sleep func(context.Context, time.Duration) error

	backendCalls metric.Int64Counter
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
	retries      metric.Int64Counter
}

func New(backend tts.Backend, store *cache.Store, job string, audioCfg config.AudioConfig, log *slog.Logger) *Synthesizer {
	meter := otel.Meter("subvoice/synth")
	backendCalls, _ := meter.Int64Counter("synth.backend.calls")
	cacheHits, _ := meter.Int64Counter("synth.cache.hits")
	cacheMisses, _ := meter.Int64Counter("synth.cache.misses")
	retries, _ := meter.Int64Counter("synth.retries")

	return &Synthesizer{
		backend:      backend,
		store:        store,
		job:          job,
		pcm:          audio.Format{SampleRate: audioCfg.SampleRate, Channels: audioCfg.Channels},
		log:          log.With(slog.String("component", "synthesizer"), slog.String("provider", backend.Name())),
		sleep:        sleepCtx,
		backendCalls: backendCalls,
		cacheHits:    cacheHits,
		cacheMisses:  cacheMisses,
		retries:      retries,
	}
}

// CacheKey derives the content-addressed cache key for a fingerprint and
// request text. Speed is deliberately absent: it is a transform on cached
// output, not a property of the synthesis request.
func CacheKey(fingerprint, text string) string {
	h := sha1.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Synthesize produces the decoded audio for text, sped up by speed (1.0 means
// unchanged). The cache is keyed on the speed-1.0 request, so only the first
// call per unique text reaches the backend.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, speed float64) (audio.Segment, error) {
	if speed <= 0 {
		return audio.Segment{}, fmt.Errorf("playback speed must be greater than zero, got %v", speed)
	}

	seg, err := s.loadOrGenerate(ctx, text)
	if err != nil {
		return audio.Segment{}, err
	}

	if math.Abs(speed-1.0) > audio.SpeedEpsilon {
		seg, err = seg.ChangeSpeed(speed)
		if err != nil {
			return audio.Segment{}, err
		}
	}
	return seg, nil
}

func (s *Synthesizer) loadOrGenerate(ctx context.Context, text string) (audio.Segment, error) {
	attrs := metric.WithAttributes(attribute.String("provider", s.backend.Name()))
	key := CacheKey(s.backend.Fingerprint(), text)

	if data, ok := s.store.Get(ctx, s.backend.Name(), s.job, key); ok {
		seg, err := s.decode(data)
		if err == nil {
			s.cacheHits.Add(ctx, 1, attrs)
			return seg, nil
		}
		// corrupted entry: fail open and re-synthesize
		s.log.Warn("cached audio undecodable, re-synthesizing",
			slog.String("key", key), slog.String("error", err.Error()))
	}
	s.cacheMisses.Add(ctx, 1, attrs)

	data, attempts, err := s.request(ctx, text)
	if err != nil {
		return audio.Segment{}, &Error{Text: text, Attempts: attempts, Err: err}
	}

	if err := s.store.Put(ctx, s.backend.Name(), s.job, key, data); err != nil {
		s.log.Warn("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	seg, err := s.decode(data)
	if err != nil {
		return audio.Segment{}, &Error{Text: text, Attempts: attempts, Err: err}
	}
	return seg, nil
}

// request invokes the backend with bounded retry. Only transient failures are
// retried; fatal classifications and context cancellation end the loop early.
func (s *Synthesizer) request(ctx context.Context, text string) ([]byte, int, error) {
	attrs := metric.WithAttributes(attribute.String("provider", s.backend.Name()))
	backoff := firstBackoff

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		s.backendCalls.Add(ctx, 1, attrs)
		data, err := s.backend.Synthesize(ctx, text)
		if err == nil {
			return data, attempt, nil
		}
		lastErr = err

		if tts.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, attempt, err
		}
		if attempt == maxAttempts {
			break
		}

		s.retries.Add(ctx, 1, attrs)
		s.log.Warn("synthesis attempt failed, retrying",
			slog.Int("attempt", attempt), slog.String("error", err.Error()))
		if err := s.sleep(ctx, backoff); err != nil {
			return nil, attempt, lastErr
		}
		backoff *= 2
	}
	return nil, maxAttempts, lastErr
}

func (s *Synthesizer) decode(data []byte) (audio.Segment, error) {
	switch format := s.backend.OutputFormat(); format {
	case "wav":
		return audio.DecodeWAV(data)
	case "pcm":
		return audio.FromPCM16(data, s.pcm)
	default:
		return audio.Segment{}, fmt.Errorf("unsupported backend output format %q", format)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
