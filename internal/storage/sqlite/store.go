// Package sqlite provides the SQLite-backed implementation of the
// storage contracts. Sessions are persisted as JSON snapshots with an
// indexed version column so commits can enforce optimistic concurrency
// inside a single transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fableguard/fableguard/internal/action"
	"github.com/fableguard/fableguard/internal/platform/storage/sqlitemigrate"
	"github.com/fableguard/fableguard/internal/session"
	"github.com/fableguard/fableguard/internal/storage"
	"github.com/fableguard/fableguard/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides a SQLite-backed store implementing all storage
// interfaces.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at the provided path and applies embedded
// migrations before handing the store to higher layers.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
//
// Close is intentionally nil-safe so callers can defer it in all startup
// paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutSession creates a new session record.
func (s *Store) PutSession(ctx context.Context, sess session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sess.ID) == "" {
		return fmt.Errorf("session id is required")
	}

	snapshot, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO sessions (id, version, snapshot, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		sess.ID,
		int64(sess.Version),
		string(snapshot),
		toMillis(sess.CreatedAt),
		toMillis(sess.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession loads the latest committed snapshot of a session.
func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return session.Session{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return session.Session{}, fmt.Errorf("session id is required")
	}

	var snapshot string
	row := s.sqlDB.QueryRowContext(ctx, "SELECT snapshot FROM sessions WHERE id = ?", id)
	if err := row.Scan(&snapshot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, storage.ErrNotFound
		}
		return session.Session{}, fmt.Errorf("load session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(snapshot), &sess); err != nil {
		return session.Session{}, fmt.Errorf("decode session snapshot: %w", err)
	}
	return sess, nil
}

// CommitSession replaces the stored snapshot only when the stored
// version still equals expectedVersion.
func (s *Store) CommitSession(ctx context.Context, sess session.Session, expectedVersion uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sess.ID) == "" {
		return fmt.Errorf("session id is required")
	}

	snapshot, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
UPDATE sessions SET version = ?, snapshot = ?, updated_at = ?
WHERE id = ? AND version = ?`,
		int64(sess.Version),
		string(snapshot),
		toMillis(sess.UpdatedAt),
		sess.ID,
		int64(expectedVersion),
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inspect commit result: %w", err)
	}
	if affected == 0 {
		// Distinguish a lost race from a missing session.
		var found int
		row := tx.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", sess.ID)
		if scanErr := row.Scan(&found); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("inspect session row: %w", scanErr)
		}
		return storage.ErrVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// ListSessions returns the IDs of all stored sessions.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, "SELECT id FROM sessions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read session ids: %w", err)
	}
	return ids, nil
}

// PutResult records the result of a processed action. The first write
// for an idempotency key wins; replays are silently ignored.
func (s *Store) PutResult(ctx context.Context, r action.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return fmt.Errorf("idempotency key is required")
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode action result: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO action_results (session_id, idempotency_key, result, processed_at)
VALUES (?, ?, ?, ?)`,
		r.SessionID,
		r.IdempotencyKey,
		string(payload),
		toMillis(r.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("insert action result: %w", err)
	}
	return nil
}

// GetResult returns the stored result for an idempotency key.
func (s *Store) GetResult(ctx context.Context, sessionID, idempotencyKey string) (action.Result, error) {
	if err := ctx.Err(); err != nil {
		return action.Result{}, err
	}
	if s == nil || s.sqlDB == nil {
		return action.Result{}, fmt.Errorf("storage is not configured")
	}

	var payload string
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT result FROM action_results WHERE session_id = ? AND idempotency_key = ?",
		sessionID, idempotencyKey)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return action.Result{}, storage.ErrNotFound
		}
		return action.Result{}, fmt.Errorf("load action result: %w", err)
	}

	var result action.Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return action.Result{}, fmt.Errorf("decode action result: %w", err)
	}
	return result, nil
}

// AppendTelemetryEvent persists one telemetry record.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(evt.EventName) == "" {
		return fmt.Errorf("event name is required")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	attributes := "{}"
	if len(evt.Attributes) > 0 {
		encoded, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("encode telemetry attributes: %w", err)
		}
		attributes = string(encoded)
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (timestamp, event_name, severity, session_id, actor_id, request_id, trace_id, span_id, attributes_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		toMillis(evt.Timestamp),
		evt.EventName,
		evt.Severity,
		evt.SessionID,
		evt.ActorID,
		evt.RequestID,
		evt.TraceID,
		evt.SpanID,
		attributes,
	)
	if err != nil {
		return fmt.Errorf("insert telemetry event: %w", err)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
