package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	_ "modernc.org/sqlite"

	"nookipedia-gateway/internal/config"
)

const schema = `CREATE TABLE IF NOT EXISTS relays (
	id          TEXT PRIMARY KEY,
	request_id  TEXT NOT NULL DEFAULT '',
	method      TEXT NOT NULL,
	suffix      TEXT NOT NULL,
	status      INTEGER NOT NULL,
	outcome     TEXT NOT NULL,
	fail_kind   TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	bytes       INTEGER NOT NULL,
	ts          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS relays_ts ON relays (ts DESC);`

// SQLite is a Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the journal at path. ":memory:" keeps it
// in process memory.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// One connection: an in-memory database is per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Record inserts e, assigning an ID and timestamp when missing.
func (s *SQLite) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relays (id, request_id, method, suffix, status, outcome, fail_kind, duration_ms, bytes, ts)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.RequestID, e.Method, e.Suffix, e.Status, e.Outcome, e.FailKind, e.DurationMS, e.Bytes, e.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, method, suffix, status, outcome, fail_kind, duration_ms, bytes, ts
		 FROM relays ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Method, &e.Suffix, &e.Status, &e.Outcome, &e.FailKind, &e.DurationMS, &e.Bytes, &ts); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Enabled reports true.
func (s *SQLite) Enabled() bool { return true }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// New returns the Store selected by cfg and closes it when the app stops.
func New(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if !cfg.Journal.Enabled {
		return Nop{}, nil
	}
	s, err := OpenSQLite(cfg.Journal.Path)
	if err != nil {
		return nil, err
	}
	logger.Info("relay journal enabled", "path", cfg.Journal.Path)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return s.Close() },
	})
	return s, nil
}
