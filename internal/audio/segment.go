// Package audio provides the PCM segment value type the assembly pipeline
// works with: decode, concatenation, silence, truncation and playback-speed
// changes over 16-bit interleaved samples.
package audio

import (
	"fmt"
	"math"
	"time"
)

// SpeedEpsilon is the tolerance within which a playback speed counts as 1.0
// and no resample is performed.
const SpeedEpsilon = 0.01

// Format describes the PCM layout of a segment.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// Segment is an immutable decoded audio clip. The zero value is an empty
// segment with no format; appending to it adopts the other side's format.
type Segment struct {
	samples []int // interleaved 16-bit values
	format  Format
}

// Silence returns a segment of d worth of silence in the given format.
// Negative durations yield an empty segment.
func Silence(d time.Duration, f Format) Segment {
	if d <= 0 || !f.valid() {
		return Segment{format: f}
	}
	frames := int(math.Round(d.Seconds() * float64(f.SampleRate)))
	return Segment{samples: make([]int, frames*f.Channels), format: f}
}

// FromPCM16 wraps raw little-endian 16-bit interleaved PCM bytes.
func FromPCM16(raw []byte, f Format) (Segment, error) {
	if !f.valid() {
		return Segment{}, fmt.Errorf("invalid pcm format %+v", f)
	}
	if len(raw)%2 != 0 {
		return Segment{}, fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(raw)/2)
	for i := range samples {
		samples[i] = int(int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8))
	}
	// drop a trailing partial frame rather than failing the whole clip
	samples = samples[:len(samples)/f.Channels*f.Channels]
	return Segment{samples: samples, format: f}, nil
}

// Frames returns the number of sample frames in the segment.
func (s Segment) Frames() int {
	if s.format.Channels == 0 {
		return 0
	}
	return len(s.samples) / s.format.Channels
}

// Duration returns the playback length of the segment.
func (s Segment) Duration() time.Duration {
	if !s.format.valid() || len(s.samples) == 0 {
		return 0
	}
	return time.Duration(s.Frames()) * time.Second / time.Duration(s.format.SampleRate)
}

// PCMFormat returns the PCM layout. Empty segments report the zero Format.
func (s Segment) PCMFormat() Format { return s.format }

// Empty reports whether the segment carries no audio.
func (s Segment) Empty() bool { return len(s.samples) == 0 }

// Append concatenates other after s. Mismatched formats are converted to the
// receiver's format first; an empty receiver adopts other's format.
func (s Segment) Append(other Segment) Segment {
	if other.Empty() {
		return s
	}
	if s.Empty() && !s.format.valid() {
		return other
	}
	other = other.Convert(s.format)
	out := make([]int, 0, len(s.samples)+len(other.samples))
	out = append(out, s.samples...)
	out = append(out, other.samples...)
	return Segment{samples: out, format: s.format}
}

// Truncate returns the first d of the segment. Longer-than-segment requests
// return the segment unchanged.
func (s Segment) Truncate(d time.Duration) Segment {
	if d <= 0 {
		return Segment{format: s.format}
	}
	if d >= s.Duration() {
		return s
	}
	frames := int(math.Round(d.Seconds() * float64(s.format.SampleRate)))
	if frames > s.Frames() {
		frames = s.Frames()
	}
	return Segment{samples: s.samples[:frames*s.format.Channels], format: s.format}
}

// ChangeSpeed reinterprets the frame rate by factor and resamples back to the
// original rate, so playback duration scales by 1/factor. Pitch shifts along
// with it; that matches the frame-rate reinterpretation the pipeline wants.
func (s Segment) ChangeSpeed(factor float64) (Segment, error) {
	if factor <= 0 {
		return Segment{}, fmt.Errorf("playback speed must be greater than zero, got %v", factor)
	}
	if s.Empty() || math.Abs(factor-1.0) < 1e-9 {
		return s, nil
	}
	srcFrames := s.Frames()
	dstFrames := int(math.Round(float64(srcFrames) / factor))
	if dstFrames <= 0 {
		return Segment{format: s.format}, nil
	}
	ch := s.format.Channels
	out := make([]int, dstFrames*ch)
	for i := 0; i < dstFrames; i++ {
		src := int(float64(i) * factor)
		if src >= srcFrames {
			src = srcFrames - 1
		}
		copy(out[i*ch:(i+1)*ch], s.samples[src*ch:(src+1)*ch])
	}
	return Segment{samples: out, format: s.format}, nil
}

// Convert resamples and remaps channels into the target format.
// Nearest-neighbor resampling; stereo folds to mono by averaging, mono fans
// out by duplication, anything else keeps the first channel.
func (s Segment) Convert(f Format) Segment {
	if !f.valid() || s.Empty() || s.format == f {
		return s
	}
	cur := s
	if cur.format.Channels != f.Channels {
		cur = cur.remapChannels(f.Channels)
	}
	if cur.format.SampleRate != f.SampleRate {
		cur = cur.resample(f.SampleRate)
	}
	return cur
}

func (s Segment) remapChannels(channels int) Segment {
	srcCh := s.format.Channels
	frames := s.Frames()
	out := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		var v int
		switch {
		case srcCh == 1:
			v = s.samples[i]
		case srcCh == 2 && channels == 1:
			v = (s.samples[i*2] + s.samples[i*2+1]) / 2
		default:
			v = s.samples[i*srcCh]
		}
		for c := 0; c < channels; c++ {
			out[i*channels+c] = v
		}
	}
	return Segment{samples: out, format: Format{SampleRate: s.format.SampleRate, Channels: channels}}
}

func (s Segment) resample(rate int) Segment {
	srcFrames := s.Frames()
	ch := s.format.Channels
	dstFrames := int(math.Round(float64(srcFrames) * float64(rate) / float64(s.format.SampleRate)))
	out := make([]int, dstFrames*ch)
	ratio := float64(s.format.SampleRate) / float64(rate)
	for i := 0; i < dstFrames; i++ {
		src := int(float64(i) * ratio)
		if src >= srcFrames {
			src = srcFrames - 1
		}
		copy(out[i*ch:(i+1)*ch], s.samples[src*ch:(src+1)*ch])
	}
	return Segment{samples: out, format: Format{SampleRate: rate, Channels: ch}}
}
