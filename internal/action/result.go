package action

import "time"

// OutcomeTag classifies a resolved action for the narration collaborator.
type OutcomeTag string

const (
	OutcomeSuccess         OutcomeTag = "success"
	OutcomeCriticalSuccess OutcomeTag = "critical_success"
	OutcomeFailure         OutcomeTag = "failure"
	OutcomeCriticalFailure OutcomeTag = "critical_failure"
	OutcomeRejected        OutcomeTag = "rejected"
)

// Fact is a single structured fact about what happened, opaque to humans
// but stable for the renderer. Facts never feed back into rules.
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Rejection carries the typed reason an action was refused.
type Rejection struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Result is the structured outcome of a processed action.
type Result struct {
	SessionID      string     `json:"session_id"`
	ActorID        string     `json:"actor_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Kind           Kind       `json:"kind"`
	Outcome        OutcomeTag `json:"outcome"`
	Rejection      *Rejection `json:"rejection,omitempty"`

	// Version is the session version after the commit, or the unchanged
	// version for rejected actions.
	Version uint64 `json:"version"`

	// Rolls holds every raw die value drawn while resolving, in draw
	// order, together with the seed that produced them.
	Seed  int64 `json:"seed"`
	Rolls []int `json:"rolls,omitempty"`

	Facts []Fact `json:"facts,omitempty"`

	ProcessedAt time.Time `json:"processed_at"`
}

// Rejected reports whether the action was refused.
func (r Result) Rejected() bool {
	return r.Outcome == OutcomeRejected
}

// Fact returns the value of the named fact and whether it was present.
func (r Result) Fact(name string) (string, bool) {
	for _, f := range r.Facts {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}
