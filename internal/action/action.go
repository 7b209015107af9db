// Package action defines the wire types shared by the intake queue, the
// processing pipeline, and the narration collaborator.
package action

import (
	"strings"

	apperrors "github.com/fableguard/fableguard/internal/errors"
)

// Kind identifies what a player (or an AI-controlled actor) is trying to do.
// Free text is classified into exactly one Kind by the narration
// collaborator before it reaches the core.
type Kind string

const (
	KindUnspecified  Kind = ""
	KindMove         Kind = "move"
	KindEngage       Kind = "engage"
	KindAttack       Kind = "attack"
	KindUseItem      Kind = "use_item"
	KindEquipItem    Kind = "equip_item"
	KindDropItem     Kind = "drop_item"
	KindPickUpItem   Kind = "pick_up_item"
	KindSkillCheck   Kind = "skill_check"
	KindConfirmCheck Kind = "confirm_check"
	KindConverse     Kind = "converse"
	KindObserve      Kind = "observe"
	KindEndTurn      Kind = "end_turn"
	KindEndSession   Kind = "end_session"
)

// Valid reports whether the kind is one the core understands.
func (k Kind) Valid() bool {
	switch k {
	case KindMove, KindEngage, KindAttack, KindUseItem, KindEquipItem, KindDropItem,
		KindPickUpItem, KindSkillCheck, KindConfirmCheck, KindConverse,
		KindObserve, KindEndTurn, KindEndSession:
		return true
	}
	return false
}

// Request is a typed player action admitted to the pipeline.
type Request struct {
	SessionID      string `json:"session_id"`
	ActorID        string `json:"actor_id"`
	Kind           Kind   `json:"kind"`
	IdempotencyKey string `json:"idempotency_key"`

	// Kind-specific payload fields. Only the fields relevant to Kind are
	// populated; the rest stay zero.
	TargetID    string `json:"target_id,omitempty"`
	ItemTypeID  string `json:"item_type_id,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
	Attribute   string `json:"attribute,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
	Description string `json:"description,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// Validate rejects malformed requests before any state is touched.
func (r Request) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return apperrors.New(apperrors.CodeValidationSessionIDEmpty, "session id is required")
	}
	if strings.TrimSpace(r.ActorID) == "" {
		return apperrors.New(apperrors.CodeValidationActorIDEmpty, "actor id is required")
	}
	if !r.Kind.Valid() {
		return apperrors.New(apperrors.CodeValidationKindInvalid, "action kind is not recognized").
			WithMetadata("kind", string(r.Kind))
	}
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return apperrors.New(apperrors.CodeValidationIdempotencyKey, "idempotency key is required")
	}

	switch r.Kind {
	case KindAttack, KindEngage:
		if strings.TrimSpace(r.TargetID) == "" {
			return apperrors.Newf(apperrors.CodeValidationTargetMissing, "%s requires a target", r.Kind).
				WithMetadata("field", "target_id")
		}
	case KindUseItem, KindEquipItem, KindDropItem, KindPickUpItem:
		if strings.TrimSpace(r.ItemTypeID) == "" {
			return apperrors.New(apperrors.CodeValidationItemTypeMissing, "inventory action requires an item type").
				WithMetadata("field", "item_type_id")
		}
	}
	return nil
}
