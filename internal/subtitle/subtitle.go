// Package subtitle loads timed cues from SRT files.
package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cue is one subtitle entry: the text that should be spoken during
// [Start, End). Cues are immutable once loaded.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Slot returns the time interval the cue's audio should occupy. Never
// negative, even for malformed end-before-start cues.
func (c Cue) Slot() time.Duration {
	if c.End <= c.Start {
		return 0
	}
	return c.End - c.Start
}

// ParseFile reads an SRT file into an ordered cue list.
func ParseFile(path string) ([]Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open subtitle file: %w", err)
	}
	defer f.Close()
	cues, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cues, nil
}

// Parse reads SRT-formatted cues from r. Multi-line cue text is collapsed to
// a single space-separated line. The result is sorted by start time
// (stable, so equal starts keep file order).
func Parse(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	var block []string
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		cue, err := parseBlock(block)
		if err != nil {
			return err
		}
		cues = append(cues, cue)
		block = nil
		return nil
	}

	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read subtitles: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	sort.SliceStable(cues, func(i, j int) bool { return cues[i].Start < cues[j].Start })
	return cues, nil
}

func parseBlock(lines []string) (Cue, error) {
	idx := 0
	index := 0
	if n, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
		index = n
		idx = 1
	}
	if idx >= len(lines) {
		return Cue{}, fmt.Errorf("cue %d: missing timing line", index)
	}

	start, end, err := parseTiming(lines[idx])
	if err != nil {
		return Cue{}, fmt.Errorf("cue %d: %w", index, err)
	}
	if end < start {
		return Cue{}, fmt.Errorf("cue %d: end %s before start %s", index, end, start)
	}

	text := strings.TrimSpace(strings.Join(lines[idx+1:], " "))
	return Cue{Index: index, Start: start, End: end, Text: text}, nil
}

func parseTiming(line string) (time.Duration, time.Duration, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed timing line %q", line)
	}
	start, err := parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimestamp(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseTimestamp handles HH:MM:SS,mmm with either a comma or dot separator.
func parseTimestamp(s string) (time.Duration, error) {
	s = strings.ReplaceAll(s, ".", ",")
	var h, m, sec, ms int
	if _, err := fmt.Sscanf(s, "%d:%d:%d,%d", &h, &m, &sec, &ms); err != nil {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}
	if m > 59 || sec > 59 || ms > 999 || h < 0 || m < 0 || sec < 0 || ms < 0 {
		return 0, fmt.Errorf("timestamp %q out of range", s)
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}
