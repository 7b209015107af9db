// Package storage defines the persistence contracts for sessions, action
// results, and telemetry. Implementations live in subpackages.
package storage

import (
	"context"
	"time"

	"github.com/fableguard/fableguard/internal/action"
	apperrors "github.com/fableguard/fableguard/internal/errors"
	"github.com/fableguard/fableguard/internal/session"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity"
// states and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrVersionConflict indicates a commit lost the optimistic concurrency
// race: the stored session version no longer matches the version the
// delta was computed against. The caller reloads and retries.
var ErrVersionConflict = apperrors.New(apperrors.CodeVersionConflict, "session version conflict")

// SessionStore persists session snapshots with optimistic concurrency.
type SessionStore interface {
	// PutSession creates a new session record. The session's version is
	// stored as-is.
	PutSession(ctx context.Context, s session.Session) error
	// GetSession loads the latest committed snapshot of a session.
	// Returns ErrNotFound when the session does not exist.
	GetSession(ctx context.Context, id string) (session.Session, error)
	// CommitSession replaces the stored snapshot only when the stored
	// version still equals expectedVersion. Returns ErrVersionConflict
	// when another commit won the race and ErrNotFound for unknown
	// sessions.
	CommitSession(ctx context.Context, s session.Session, expectedVersion uint64) error
	// ListSessions returns the IDs of all stored sessions.
	ListSessions(ctx context.Context) ([]string, error)
}

// ResultStore persists processed action results keyed by session and
// idempotency key, backing exactly-once result semantics across retries.
type ResultStore interface {
	// PutResult records the result of a processed action. Writing the
	// same (session, idempotency key) pair twice is a no-op so replayed
	// deliveries never overwrite the original outcome.
	PutResult(ctx context.Context, r action.Result) error
	// GetResult returns the stored result for an idempotency key.
	// Returns ErrNotFound when the key has not been processed.
	GetResult(ctx context.Context, sessionID, idempotencyKey string) (action.Result, error)
}

// TelemetryEvent captures operational observations emitted during action
// processing.
type TelemetryEvent struct {
	Timestamp  time.Time
	EventName  string
	Severity   string
	SessionID  string
	ActorID    string
	RequestID  string
	TraceID    string
	SpanID     string
	Attributes map[string]any
}

// TelemetryStore persists operational telemetry records for audits and
// incident analysis.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
}

// Store aggregates every persistence concern a runtime needs.
type Store interface {
	SessionStore
	ResultStore
	TelemetryStore
	Close() error
}
