// Package session owns the authoritative per-session game state and the
// state machine that mutates it.
//
// A Session moves through an explicit phase table and changes only via
// Apply, which takes a rules-computed Delta and either commits it in full
// with a version bump or leaves the session untouched.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fableguard/fableguard/internal/id"
)

var (
	// ErrEmptyWorldID indicates a missing world ID.
	ErrEmptyWorldID = errors.New("world id is required")
	// ErrNoCharacters indicates a session created without characters.
	ErrNoCharacters = errors.New("at least one character is required")
)

// PendingCheck stores the hidden, pre-rolled context of a skill check
// awaiting the actor's confirmation. The raw roll stays secret until the
// confirm action reveals it.
type PendingCheck struct {
	ActorID      string    `json:"actor_id"`
	Description  string    `json:"description"`
	Attribute    Attribute `json:"attribute"`
	Tier         string    `json:"tier"`
	Threshold    int       `json:"threshold"`
	Modifier     int       `json:"modifier"`
	BaseRoll     int       `json:"base_roll"`
	TiebreakRoll int       `json:"tiebreak_roll,omitempty"`
	Outcome      string    `json:"outcome"`
}

// Session is the sole authoritative copy of one game session's state.
type Session struct {
	ID         string        `json:"id"`
	WorldID    string        `json:"world_id"`
	Phase      Phase         `json:"phase"`
	Seed       int64         `json:"seed"`
	Version    uint64        `json:"version"`
	Characters []Character   `json:"characters"`
	Encounter  *Encounter    `json:"encounter,omitempty"`
	Quest      QuestState    `json:"quest"`
	Pending    *PendingCheck `json:"pending,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"` // nil while the session is live
}

// CreateInput describes the data needed to create a session.
type CreateInput struct {
	WorldID    string
	Seed       int64
	Characters []Character
}

// Create builds a new session with a generated ID and timestamps. The
// session starts in the exploring phase at version 1.
func Create(input CreateInput, now func() time.Time, idGenerator func() (string, error)) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	if strings.TrimSpace(input.WorldID) == "" {
		return Session{}, ErrEmptyWorldID
	}
	if len(input.Characters) == 0 {
		return Session{}, ErrNoCharacters
	}

	sessionID, err := idGenerator()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}

	characters := make([]Character, len(input.Characters))
	for i, c := range input.Characters {
		characters[i] = c.clone()
	}

	createdAt := now().UTC()
	return Session{
		ID:         sessionID,
		WorldID:    strings.TrimSpace(input.WorldID),
		Phase:      PhaseExploring,
		Seed:       input.Seed,
		Version:    1,
		Characters: characters,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}, nil
}

// Character returns the character with the given ID and whether it exists.
func (s Session) Character(actorID string) (Character, bool) {
	for _, c := range s.Characters {
		if c.ID == actorID {
			return c, true
		}
	}
	return Character{}, false
}

// Ended reports whether the session has reached its terminal phase.
func (s Session) Ended() bool {
	return s.Phase == PhaseEnded
}

// clone deep-copies the session so Apply can work on scratch state.
func (s Session) clone() Session {
	out := s
	out.Characters = make([]Character, len(s.Characters))
	for i, c := range s.Characters {
		out.Characters[i] = c.clone()
	}
	out.Encounter = s.Encounter.clone()
	out.Quest = s.Quest.clone()
	if s.Pending != nil {
		pending := *s.Pending
		out.Pending = &pending
	}
	if s.EndedAt != nil {
		endedAt := *s.EndedAt
		out.EndedAt = &endedAt
	}
	return out
}
