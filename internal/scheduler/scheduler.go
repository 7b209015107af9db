// Package scheduler orders acting participants within a combat encounter
// and tracks whose action is currently admissible.
//
// Initiative is deterministic and seed-independent: participants sort by
// agility descending, with actor ID ascending as the tiebreak. Two
// encounters with identical participants always produce identical order,
// which keeps encounters reproducible for a fixed session seed.
package scheduler

import (
	"sort"

	apperrors "github.com/fableguard/fableguard/internal/errors"
	"github.com/fableguard/fableguard/internal/session"
)

var (
	// ErrNotYourTurn indicates the actor is not the one eligible to act.
	ErrNotYourTurn = apperrors.New(apperrors.CodeNotYourTurn, "it is not this actor's turn")
	// ErrEncounterResolved indicates the encounter already reached a
	// terminal condition; all further actions for it are rejected.
	ErrEncounterResolved = apperrors.New(apperrors.CodeEncounterResolved, "encounter is resolved")
	// ErrEncounterNotActive indicates no round is in progress.
	ErrEncounterNotActive = apperrors.New(apperrors.CodeEncounterNotActive, "no encounter round is in progress")
)

// RollInitiative computes the turn order for an encounter start.
//
// The sort is stable over (agility desc, id asc); no dice are involved.
func RollInitiative(participants []session.Character) []string {
	ordered := make([]session.Character, len(participants))
	copy(ordered, participants)

	sort.SliceStable(ordered, func(i, j int) bool {
		ai, aj := ordered[i].Attr(session.AttrAgility), ordered[j].Attr(session.AttrAgility)
		if ai != aj {
			return ai > aj
		}
		return ordered[i].ID < ordered[j].ID
	})

	ids := make([]string, len(ordered))
	for i, c := range ordered {
		ids[i] = c.ID
	}
	return ids
}

// Start builds a fresh encounter in its first round with initiative
// computed from the given participants.
func Start(encounterID string, participants []session.Character) *session.Encounter {
	return &session.Encounter{
		ID:           encounterID,
		State:        session.EncounterRoundInProgress,
		Participants: RollInitiative(participants),
		TurnIndex:    0,
		Round:        1,
	}
}

// CheckEligible rejects an action submitted by anyone other than the
// single actor whose turn it is. Ineligible submissions are rejected,
// never reordered.
func CheckEligible(enc *session.Encounter, actorID string) error {
	if enc == nil {
		return ErrEncounterNotActive
	}
	switch enc.State {
	case session.EncounterResolved:
		return ErrEncounterResolved
	case session.EncounterRoundInProgress:
	default:
		return ErrEncounterNotActive
	}

	current, ok := enc.CurrentActor()
	if !ok {
		return ErrEncounterNotActive
	}
	if current != actorID {
		return ErrNotYourTurn.
			WithMetadata("actor_id", actorID).
			WithMetadata("current_actor_id", current)
	}
	return nil
}

// Advance moves the turn pointer past the current actor, skipping
// participants that are no longer alive. After the last actor in
// initiative order acts, the round advances and a new round begins.
//
// Advance returns a modified copy; the input encounter is not mutated.
func Advance(enc *session.Encounter, alive func(actorID string) bool) *session.Encounter {
	if enc == nil || enc.State != session.EncounterRoundInProgress {
		return enc
	}

	next := *enc
	next.Participants = append([]string(nil), enc.Participants...)

	for i := 0; i < len(next.Participants); i++ {
		next.TurnIndex++
		if next.TurnIndex >= len(next.Participants) {
			next.TurnIndex = 0
			next.Round++
		}
		if alive == nil || alive(next.Participants[next.TurnIndex]) {
			return &next
		}
	}

	// No living participant remains; callers resolve on terminal
	// conditions before this can normally happen.
	return &next
}

// Resolve terminates the encounter with the given end condition.
func Resolve(enc *session.Encounter, end session.EncounterEnd) *session.Encounter {
	if enc == nil {
		return nil
	}
	next := *enc
	next.Participants = append([]string(nil), enc.Participants...)
	next.State = session.EncounterResolved
	next.End = end
	return &next
}
