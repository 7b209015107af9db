// Package narration defines the contracts between the deterministic
// core and the language-model collaborator. The collaborator proposes
// and narrates; it never decides outcomes. Classification turns free
// text into exactly one typed action, and rendering turns a structured
// result into prose without feeding anything back into rules.
package narration

import (
	"context"
	"fmt"
	"strings"

	"github.com/fableguard/fableguard/internal/action"
)

// Classification is the typed action proposed for a free-text utterance.
type Classification struct {
	Kind        action.Kind `json:"kind"`
	TargetID    string      `json:"target_id,omitempty"`
	ItemTypeID  string      `json:"item_type_id,omitempty"`
	Quantity    int         `json:"quantity,omitempty"`
	Attribute   string      `json:"attribute,omitempty"`
	Difficulty  string      `json:"difficulty,omitempty"`
	Destination string      `json:"destination,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Classifier maps a player's free text onto exactly one action kind.
type Classifier interface {
	Classify(ctx context.Context, sessionID, actorID, utterance string) (Classification, error)
}

// Renderer turns a processed result into player-facing prose. The facts
// in the result are the only ground truth the renderer may embellish.
type Renderer interface {
	Render(ctx context.Context, result action.Result, memories []string) (string, error)
}

// TemplateRenderer is a deterministic fallback renderer used when no
// language model is configured. It states the facts plainly.
type TemplateRenderer struct{}

// Render produces a terse factual account of the result.
func (TemplateRenderer) Render(_ context.Context, result action.Result, _ []string) (string, error) {
	if result.Rejected() {
		msg := "the action was not allowed"
		if result.Rejection != nil && result.Rejection.Message != "" {
			msg = result.Rejection.Message
		}
		return fmt.Sprintf("%s: %s.", result.ActorID, msg), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s attempts to %s", result.ActorID, kindVerb(result.Kind))
	switch result.Outcome {
	case action.OutcomeCriticalSuccess:
		sb.WriteString(" and succeeds spectacularly")
	case action.OutcomeSuccess:
		sb.WriteString(" and succeeds")
	case action.OutcomeCriticalFailure:
		sb.WriteString(" and fails badly")
	case action.OutcomeFailure:
		sb.WriteString(" and fails")
	}
	sb.WriteString(".")

	for _, fact := range result.Facts {
		fmt.Fprintf(&sb, " (%s: %s)", fact.Name, fact.Value)
	}
	return sb.String(), nil
}

func kindVerb(kind action.Kind) string {
	switch kind {
	case action.KindMove:
		return "move"
	case action.KindEngage:
		return "engage an enemy"
	case action.KindAttack:
		return "attack"
	case action.KindUseItem:
		return "use an item"
	case action.KindEquipItem:
		return "equip an item"
	case action.KindDropItem:
		return "drop an item"
	case action.KindPickUpItem:
		return "pick up an item"
	case action.KindSkillCheck, action.KindConfirmCheck:
		return "test their skill"
	case action.KindConverse:
		return "speak"
	case action.KindObserve:
		return "look around"
	case action.KindEndTurn:
		return "end their turn"
	case action.KindEndSession:
		return "end the session"
	}
	return "act"
}

var _ Renderer = TemplateRenderer{}
