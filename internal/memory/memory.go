// Package memory stores narrative events as vectors and retrieves the
// ones relevant to the action being narrated. Retrieval output goes to
// the renderer only; it never influences rules or scheduling.
package memory

import "context"

// Record is one remembered narrative event.
type Record struct {
	ID        string
	SessionID string
	// Kind tags what produced the record, e.g. "action" or "narration".
	Kind    string
	Content string
	// Turn orders records within a session.
	Turn uint64
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store persists and retrieves narrative memories.
type Store interface {
	// Append stores one record.
	Append(ctx context.Context, record Record) error
	// Retrieve returns up to limit records relevant to the query,
	// scoped to one session, most relevant first.
	Retrieve(ctx context.Context, sessionID, query string, limit int) ([]Record, error)
}

// NoopStore satisfies Store without remembering anything, for runs
// where no vector database is configured.
type NoopStore struct{}

// Append discards the record.
func (NoopStore) Append(context.Context, Record) error {
	return nil
}

// Retrieve returns nothing.
func (NoopStore) Retrieve(context.Context, string, string, int) ([]Record, error) {
	return nil, nil
}

var _ Store = NoopStore{}
