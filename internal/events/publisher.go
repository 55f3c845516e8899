// Package events publishes build progress to NATS so other tooling can watch
// long synthesis jobs. Entirely optional: a nil Publisher is a no-op.
package events

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/blackandcode/convert-subtitles-to-audio/internal/config"
)

// CueAssembled reports one cue placed on the output track.
type CueAssembled struct {
	RunID     string    `json:"run_id"`
	Job       string    `json:"job"`
	CueIndex  int       `json:"cue_index"`
	SlotMS    int64     `json:"slot_ms"`
	EmittedMS int64     `json:"emitted_ms"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// BuildCompleted reports a finished track.
type BuildCompleted struct {
	RunID     string    `json:"run_id"`
	Job       string    `json:"job"`
	Cues      int       `json:"cues"`
	TrackMS   int64     `json:"track_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher wraps a NATS connection with fire-and-forget publish helpers.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	job    string
	runID  string
	log    *slog.Logger
}

// Connect dials NATS when events are enabled; returns (nil, nil) otherwise.
func Connect(cfg config.EventsConfig, job, runID string, log *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("subvoice"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))
	return &Publisher{
		conn:   conn,
		prefix: cfg.SubjectPrefix,
		job:    job,
		runID:  runID,
		log:    log,
	}, nil
}

// Close drains the connection. Safe on nil.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	_ = p.conn.Drain()
	p.conn.Close()
}

// PublishCueAssembled emits a per-cue progress event. Publish failures are
// logged and swallowed; progress events never fail a build.
func (p *Publisher) PublishCueAssembled(index int, slot, emitted time.Duration, speed float64) {
	if p == nil {
		return
	}
	p.publish(p.prefix+".cue.assembled", CueAssembled{
		RunID:     p.runID,
		Job:       p.job,
		CueIndex:  index,
		SlotMS:    slot.Milliseconds(),
		EmittedMS: emitted.Milliseconds(),
		Speed:     speed,
		Timestamp: time.Now().UTC(),
	})
}

// PublishBuildCompleted emits the end-of-build event.
func (p *Publisher) PublishBuildCompleted(cues int, track time.Duration) {
	if p == nil {
		return
	}
	p.publish(p.prefix+".build.completed", BuildCompleted{
		RunID:     p.runID,
		Job:       p.job,
		Cues:      cues,
		TrackMS:   track.Milliseconds(),
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("failed to marshal event", slog.String("subject", subject), slog.String("error", err.Error()))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("failed to publish event", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
