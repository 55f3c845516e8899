package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV parses an in-memory WAV clip into a Segment, rescaling other bit
// depths down to the 16-bit range the pipeline works in.
func DecodeWAV(data []byte) (Segment, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Segment{}, fmt.Errorf("not a valid wav payload")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Segment{}, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return Segment{}, fmt.Errorf("wav payload missing format header")
	}

	samples := buf.Data
	switch depth := int(dec.BitDepth); {
	case depth == 16 || depth == 0:
	case depth == 8:
		for i, v := range samples {
			samples[i] = (v - 128) << 8
		}
	case depth > 16:
		shift := uint(depth - 16)
		for i, v := range samples {
			samples[i] = v >> shift
		}
	default:
		shift := uint(16 - depth)
		for i, v := range samples {
			samples[i] = v << shift
		}
	}

	return Segment{
		samples: samples,
		format:  Format{SampleRate: buf.Format.SampleRate, Channels: buf.Format.NumChannels},
	}, nil
}

// EncodeWAV writes the segment as 16-bit PCM WAV.
func (s Segment) EncodeWAV(w io.WriteSeeker) error {
	f := s.format
	if !f.valid() {
		return fmt.Errorf("cannot encode segment without a format")
	}
	enc := wav.NewEncoder(w, f.SampleRate, 16, f.Channels, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           s.samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// EncodeWAVBytes renders the segment to an in-memory WAV payload.
func (s Segment) EncodeWAVBytes() ([]byte, error) {
	var buf seekableBuffer
	if err := s.EncodeWAV(&buf); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// WriteWAVFile encodes the segment into a WAV file at path.
func (s Segment) WriteWAVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := s.EncodeWAV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// seekableBuffer adapts a byte slice to the io.WriteSeeker the wav encoder
// needs for header back-patching.
type seekableBuffer struct {
	data []byte
	pos  int
}

func (b *seekableBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("unsupported whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek before start")
	}
	b.pos = int(next)
	return next, nil
}
