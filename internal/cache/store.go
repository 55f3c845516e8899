// Package cache is the durable synthesis cache: a SQLite-backed blob store
// keyed by (provider, job, content hash). Entries are written once on first
// synthesis and survive process restarts, so a re-run only re-synthesizes
// what failed.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/blackandcode/convert-subtitles-to-audio/internal/config"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite blob table. In ephemeral mode every lookup misses
// and every write is dropped; callers never need to branch on the mode.
type Store struct {
	db    *sql.DB
	cfg   config.CacheConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the cache according to config.
func Open(ctx context.Context, cfg config.CacheConfig, log *slog.Logger) (*Store, error) {
	if cfg.Mode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS blobs (
    provider TEXT NOT NULL,
    job TEXT NOT NULL,
    key TEXT NOT NULL,
    data BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY(provider, job, key)
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get looks up cached audio bytes. Storage trouble is reported as a miss —
// the caller re-synthesizes rather than failing the build.
func (s *Store) Get(ctx context.Context, provider, job, key string) ([]byte, bool) {
	if s == nil || s.db == nil {
		return nil, false
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM blobs WHERE provider = ? AND job = ? AND key = ?`,
		provider, job, key).Scan(&data)
	switch {
	case err == nil:
		return data, true
	case errors.Is(err, sql.ErrNoRows):
		return nil, false
	default:
		s.log.Warn("cache lookup failed, treating as miss",
			slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}
}

// Put stores audio bytes under the key. Last writer wins: racing writers of
// the same key carry identical content, and replacing an existing blob is
// what repairs an entry that failed to decode. Write failures are returned
// for logging but are never fatal to the caller.
func (s *Store) Put(ctx context.Context, provider, job, key string, data []byte) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs(provider, job, key, data, created_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(provider, job, key)
		 DO UPDATE SET data = excluded.data, created_at = excluded.created_at`,
		provider, job, key, data, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Purge removes every entry for a (provider, job) namespace.
func (s *Store) Purge(ctx context.Context, provider, job string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM blobs WHERE provider = ? AND job = ?`, provider, job)
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return res.RowsAffected()
}
