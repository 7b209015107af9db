package session

// EncounterState describes where a combat encounter is in its lifecycle.
type EncounterState int

const (
	// EncounterStateUnspecified represents an invalid encounter state.
	EncounterStateUnspecified EncounterState = iota
	// EncounterAwaitingInitiative indicates initiative has not been computed.
	EncounterAwaitingInitiative
	// EncounterRoundInProgress indicates exactly one actor is eligible to act.
	EncounterRoundInProgress
	// EncounterRoundComplete indicates the last actor in order has acted.
	EncounterRoundComplete
	// EncounterResolved indicates a terminal condition ended the encounter.
	EncounterResolved
)

// EncounterEnd names the terminal condition of a resolved encounter.
type EncounterEnd int

const (
	// EndUnspecified means the encounter has not resolved.
	EndUnspecified EncounterEnd = iota
	// EndVictory means the hostile side was reduced to zero effective combatants.
	EndVictory
	// EndDefeat means the party side was reduced to zero effective combatants.
	EndDefeat
	// EndFled means the party withdrew from the encounter.
	EndFled
)

// Encounter is the combat state attached to a session while its phase is
// combat. Participants are always a subset of the session's live
// characters; initiative order is fixed at encounter start.
type Encounter struct {
	ID           string                 `json:"id"`
	State        EncounterState         `json:"state"`
	Participants []string               `json:"participants"`
	TurnIndex    int                    `json:"turn_index"`
	Round        int                    `json:"round"`
	Statuses     map[string][]Condition `json:"statuses,omitempty"`
	End          EncounterEnd           `json:"end"`
}

// CurrentActor returns the ID of the single actor eligible to act, or
// false when no round is in progress.
func (e *Encounter) CurrentActor() (string, bool) {
	if e == nil || e.State != EncounterRoundInProgress {
		return "", false
	}
	if e.TurnIndex < 0 || e.TurnIndex >= len(e.Participants) {
		return "", false
	}
	return e.Participants[e.TurnIndex], true
}

func (e *Encounter) clone() *Encounter {
	if e == nil {
		return nil
	}
	out := *e
	out.Participants = make([]string, len(e.Participants))
	copy(out.Participants, e.Participants)
	if e.Statuses != nil {
		out.Statuses = make(map[string][]Condition, len(e.Statuses))
		for k, v := range e.Statuses {
			conds := make([]Condition, len(v))
			copy(conds, v)
			out.Statuses[k] = conds
		}
	}
	return &out
}
