// Package qdrant implements the memory store on a Qdrant vector
// database.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	apperrors "github.com/fableguard/fableguard/internal/errors"
	"github.com/fableguard/fableguard/internal/memory"
)

const defaultCollection = "fableguard_memories"

// Store implements memory.Store backed by a Qdrant collection.
type Store struct {
	client     *qdrant.Client
	embedder   memory.Embedder
	collection string
}

// Option configures the store.
type Option func(*Store)

// WithCollection overrides the collection name.
func WithCollection(collection string) Option {
	return func(s *Store) {
		s.collection = collection
	}
}

// New connects to Qdrant and ensures the collection exists. vectorSize
// must match the embedder's output dimension.
func New(ctx context.Context, host string, port int, embedder memory.Embedder, vectorSize uint64, opts ...Option) (*Store, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}

	store := &Store{
		client:     client,
		embedder:   embedder,
		collection: defaultCollection,
	}
	for _, opt := range opts {
		opt(store)
	}

	exists, err := client.CollectionExists(ctx, store.collection)
	if err != nil {
		return nil, fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: store.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     vectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}
	}

	return store, nil
}

// Append stores one record with its embedding.
func (s *Store) Append(ctx context.Context, record memory.Record) error {
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("record id is required")
	}
	if strings.TrimSpace(record.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	vector, err := s.embedder.Embed(ctx, record.Content)
	if err != nil {
		return apperrors.New(apperrors.CodeUpstreamUnavailable, "embed memory content").Wrap(err)
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(record.ID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"session_id": record.SessionID,
				"kind":       record.Kind,
				"content":    record.Content,
				"turn":       int64(record.Turn),
			}),
		}},
	})
	if err != nil {
		return apperrors.New(apperrors.CodeUpstreamUnavailable, "upsert memory point").Wrap(err)
	}
	return nil
}

// Retrieve returns up to limit records relevant to the query, scoped to
// one session.
func (s *Store) Retrieve(ctx context.Context, sessionID, query string, limit int) ([]memory.Record, error) {
	if limit < 1 {
		limit = 5
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeUpstreamUnavailable, "embed retrieval query").Wrap(err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("session_id", sessionID),
			},
		},
	})
	if err != nil {
		return nil, apperrors.New(apperrors.CodeUpstreamUnavailable, "query memory points").Wrap(err)
	}

	records := make([]memory.Record, 0, len(points))
	for _, point := range points {
		payload := point.GetPayload()
		records = append(records, memory.Record{
			ID:        point.GetId().GetUuid(),
			SessionID: payload["session_id"].GetStringValue(),
			Kind:      payload["kind"].GetStringValue(),
			Content:   payload["content"].GetStringValue(),
			Turn:      uint64(payload["turn"].GetIntegerValue()),
		})
	}
	return records, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ memory.Store = (*Store)(nil)
