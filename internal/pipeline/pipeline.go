// Package pipeline assembles a single timed audio track from subtitle cues.
// Cue audio is synthesized concurrently by a bounded worker pool, then folded
// onto the track strictly in cue order so timing stays deterministic.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/blackandcode/convert-subtitles-to-audio/internal/audio"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/config"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/events"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/subtitle"
	"github.com/blackandcode/convert-subtitles-to-audio/internal/text"
)

// Synthesizer is the one capability the pipeline needs from the synthesis
// layer.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, speed float64) (audio.Segment, error)
}

// Pipeline builds the output track for one subtitle file.
type Pipeline struct {
	synth  Synthesizer
	cfg    config.PipelineConfig
	format audio.Format
	log    *slog.Logger
	pub    *events.Publisher
	tracer trace.Tracer

	cuesAssembled metric.Int64Counter
	overflows     metric.Int64Counter
}

// New wires a pipeline. pub may be nil when progress events are disabled.
func New(synth Synthesizer, cfg config.PipelineConfig, audioCfg config.AudioConfig, log *slog.Logger, pub *events.Publisher) *Pipeline {
	meter := otel.Meter("subvoice/pipeline")
	cuesAssembled, _ := meter.Int64Counter("pipeline.cues.assembled")
	overflows, _ := meter.Int64Counter("pipeline.cues.overflowed")

	return &Pipeline{
		synth:         synth,
		cfg:           cfg,
		format:        audio.Format{SampleRate: audioCfg.SampleRate, Channels: audioCfg.Channels},
		log:           log.With(slog.String("component", "pipeline")),
		pub:           pub,
		tracer:        otel.Tracer("subvoice/pipeline"),
		cuesAssembled: cuesAssembled,
		overflows:     overflows,
	}
}

type cueResult struct {
	seg audio.Segment
	err error
}

// Build synthesizes every cue and folds the clips onto a single track.
// The first synthesis failure cancels the remaining work and aborts the
// build with the failing cue's index in the error.
func (p *Pipeline) Build(ctx context.Context, cues []subtitle.Cue) (audio.Segment, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.build",
		trace.WithAttributes(attribute.Int("cues", len(cues))))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := p.prefetch(ctx, cues)

	// zero-length seed so even an all-silence track carries the output format
	track := audio.Silence(0, p.format)
	cursor := time.Duration(0)
	if p.cfg.PadLeadingMS > 0 {
		pad := time.Duration(p.cfg.PadLeadingMS) * time.Millisecond
		track = track.Append(audio.Silence(pad, p.format))
		cursor = pad
	}

	for i, cue := range cues {
		res := <-results[i]
		if res.err != nil {
			cancel()
			return audio.Segment{}, fmt.Errorf("cue %d: %w", cue.Index, res.err)
		}

		var err error
		track, cursor, err = p.place(ctx, track, cursor, cue, res.seg)
		if err != nil {
			cancel()
			return audio.Segment{}, fmt.Errorf("cue %d: %w", cue.Index, err)
		}
	}

	if p.cfg.PadTrailingMS > 0 {
		track = track.Append(audio.Silence(time.Duration(p.cfg.PadTrailingMS)*time.Millisecond, p.format))
	}

	p.pub.PublishBuildCompleted(len(cues), track.Duration())
	p.log.Info("track assembled",
		slog.Int("cues", len(cues)),
		slog.Duration("duration", track.Duration()))
	return track, nil
}

// place appends one cue's audio at its slot on the track: fill the gap up to
// the cue start, fit or shrink the clip into the slot, then optionally pad to
// the cue end.
func (p *Pipeline) place(ctx context.Context, track audio.Segment, cursor time.Duration, cue subtitle.Cue, seg audio.Segment) (audio.Segment, time.Duration, error) {
	if cue.Start > cursor {
		track = track.Append(audio.Silence(cue.Start-cursor, p.format))
		cursor = cue.Start
	}

	slot := cue.Slot()
	speed := 1.0
	if !seg.Empty() && slot > 0 && seg.Duration() > slot {
		if p.cfg.HardCut {
			seg = seg.Truncate(slot)
		} else {
			speed = text.Clamp(seg.Duration().Seconds()/slot.Seconds(), 1.0, p.cfg.MaxSpeedup)
			if speed > 1.0+audio.SpeedEpsilon {
				var err error
				seg, err = seg.ChangeSpeed(speed)
				if err != nil {
					return track, cursor, err
				}
			} else {
				speed = 1.0
			}
		}
		p.overflows.Add(ctx, 1)
	}

	emitted := seg.Duration()
	track = track.Append(seg)
	cursor += emitted

	if p.cfg.FillToEnd && cursor < cue.End {
		track = track.Append(audio.Silence(cue.End-cursor, p.format))
		cursor = cue.End
	}

	p.cuesAssembled.Add(ctx, 1)
	p.pub.PublishCueAssembled(cue.Index, slot, emitted, speed)
	p.log.Debug("cue placed",
		slog.Int("cue", cue.Index),
		slog.Duration("slot", slot),
		slog.Duration("emitted", emitted),
		slog.Float64("speed", speed))
	return track, cursor, nil
}

// prefetch synthesizes cue audio ahead of the fold. Each cue gets a buffered
// result channel so workers never block on the consumer; the fold reads them
// in order.
func (p *Pipeline) prefetch(ctx context.Context, cues []subtitle.Cue) []chan cueResult {
	results := make([]chan cueResult, len(cues))
	for i := range results {
		results[i] = make(chan cueResult, 1)
	}

	workers := p.cfg.SynthWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(cues) {
		workers = len(cues)
	}

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := range cues {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	for w := 0; w < workers; w++ {
		go func() {
			for i := range jobs {
				seg, err := p.synthesizeCue(ctx, cues[i])
				results[i] <- cueResult{seg: seg, err: err}
			}
		}()
	}
	return results
}

// synthesizeCue chunks the cue text to the per-call budget and concatenates
// the chunk clips. Whitespace-only cues produce an empty segment without
// touching the backend.
func (p *Pipeline) synthesizeCue(ctx context.Context, cue subtitle.Cue) (audio.Segment, error) {
	content := strings.TrimSpace(cue.Text)
	if content == "" {
		return audio.Segment{}, nil
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.synthesize_cue",
		trace.WithAttributes(attribute.Int("cue", cue.Index)))
	defer span.End()

	var clip audio.Segment
	for _, chunk := range text.Chunk(content, p.cfg.MaxCharsPerCall) {
		seg, err := p.synth.Synthesize(ctx, chunk, 1.0)
		if err != nil {
			return audio.Segment{}, err
		}
		clip = clip.Append(seg)
	}
	return clip, nil
}
