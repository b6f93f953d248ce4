package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sandkasten/broker/internal/session"
)

// SQLiteStore is the fallback tier: an in-memory or file-backed SQLite
// database used
// when no durable PostgreSQL DSN is configured, or as the system of
// record for sessions that never made it past a degraded durable tier.
type SQLiteStore struct {
	db *sql.DB
}

const createSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// OpenSQLiteFallback opens an in-memory (":memory:") or file-backed
// SQLite database and ensures its schema, with WAL/busy-timeout pragma
// tuning for concurrent readers.
func OpenSQLiteFallback(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	full := dsn + "?_pragma=busy_timeout(15000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	if dsn == ":memory:" {
		// In-memory databases don't support WAL; keep pragmas minimal.
		full = dsn + "?_pragma=busy_timeout(15000)"
	}

	db, err := sql.Open("sqlite", full)
	if err != nil {
		return nil, fmt.Errorf("opening fallback store: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if _, err := db.Exec(createSessionsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating fallback store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

func (s *SQLiteStore) Put(ctx context.Context, sess *session.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return retryOnBusy(func() error {
		_, e := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, payload, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			sess.ID, string(payload), time.Now().UTC(),
		)
		return e
	})
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*session.Session, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying fallback store: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	return retryOnBusy(func() error {
		_, e := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		return e
	})
}

func (s *SQLiteStore) List(ctx context.Context) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing fallback store: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning fallback row: %w", err)
		}
		var sess session.Session
		if err := json.Unmarshal([]byte(payload), &sess); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
