package session

import (
	"github.com/fableguard/fableguard/internal/action"
	apperrors "github.com/fableguard/fableguard/internal/errors"
)

// Phase describes the lifecycle state of a session.
type Phase int

const (
	// PhaseUnspecified represents an invalid phase value.
	PhaseUnspecified Phase = iota
	// PhaseCreating indicates the session is still assembling its party.
	PhaseCreating
	// PhaseExploring indicates free-form play outside combat.
	PhaseExploring
	// PhaseSkillCheckPending indicates a hidden pre-rolled skill check is
	// awaiting the actor's confirmation.
	PhaseSkillCheckPending
	// PhaseCombat indicates a turn-ordered encounter is in progress.
	PhaseCombat
	// PhaseQuestResolution indicates quest objectives are being settled.
	PhaseQuestResolution
	// PhaseEnded indicates the session is over; all actions are rejected.
	PhaseEnded
)

// String returns the wire name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseCreating:
		return "creating"
	case PhaseExploring:
		return "exploring"
	case PhaseSkillCheckPending:
		return "skill_check_pending"
	case PhaseCombat:
		return "combat"
	case PhaseQuestResolution:
		return "quest_resolution"
	case PhaseEnded:
		return "ended"
	default:
		return "unspecified"
	}
}

// ParsePhase converts a wire name back into a Phase.
func ParsePhase(s string) Phase {
	switch s {
	case "creating":
		return PhaseCreating
	case "exploring":
		return PhaseExploring
	case "skill_check_pending":
		return PhaseSkillCheckPending
	case "combat":
		return PhaseCombat
	case "quest_resolution":
		return PhaseQuestResolution
	case "ended":
		return PhaseEnded
	default:
		return PhaseUnspecified
	}
}

// phaseTransitions is the explicit table of legal phase changes. A delta
// requesting any other transition is rejected as a whole.
var phaseTransitions = map[Phase][]Phase{
	PhaseCreating:          {PhaseExploring, PhaseEnded},
	PhaseExploring:         {PhaseSkillCheckPending, PhaseCombat, PhaseQuestResolution, PhaseEnded},
	PhaseSkillCheckPending: {PhaseExploring, PhaseCombat, PhaseEnded},
	PhaseCombat:            {PhaseExploring, PhaseQuestResolution, PhaseEnded},
	PhaseQuestResolution:   {PhaseExploring, PhaseEnded},
	PhaseEnded:             {},
}

// CanTransition reports whether moving from one phase to another is legal.
func CanTransition(from, to Phase) bool {
	for _, allowed := range phaseTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// phaseKinds lists the action kinds admissible in each phase. A kind
// absent from the current phase's list is a PhaseMismatch, never a
// silent coercion.
var phaseKinds = map[Phase][]action.Kind{
	PhaseCreating: {
		action.KindConverse, action.KindEndSession,
	},
	// Attacking is not admissible while exploring: combat entry goes
	// through an explicit engage trigger so an attack can never slip in
	// outside turn order.
	PhaseExploring: {
		action.KindMove, action.KindEngage, action.KindUseItem,
		action.KindEquipItem, action.KindDropItem, action.KindPickUpItem,
		action.KindSkillCheck, action.KindConverse, action.KindObserve,
		action.KindEndTurn, action.KindEndSession,
	},
	PhaseSkillCheckPending: {
		action.KindConfirmCheck, action.KindEndSession,
	},
	PhaseCombat: {
		action.KindAttack, action.KindUseItem, action.KindMove,
		action.KindEndTurn, action.KindEndSession,
	},
	PhaseQuestResolution: {
		action.KindConverse, action.KindObserve, action.KindEndSession,
	},
	PhaseEnded: {},
}

// CheckKind rejects an action kind that is inapplicable to the phase.
func (p Phase) CheckKind(kind action.Kind) error {
	if p == PhaseEnded {
		return apperrors.New(apperrors.CodeSessionEnded, "session has ended")
	}
	for _, allowed := range phaseKinds[p] {
		if allowed == kind {
			return nil
		}
	}
	return apperrors.Newf(apperrors.CodePhaseMismatch, "action %q is not allowed during %s", kind, p).
		WithMetadata("kind", string(kind)).
		WithMetadata("phase", p.String())
}
