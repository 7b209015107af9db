package rules

import (
	"strings"

	"github.com/fableguard/fableguard/internal/core/dice"
	apperrors "github.com/fableguard/fableguard/internal/errors"
	"github.com/fableguard/fableguard/internal/random"
	"github.com/fableguard/fableguard/internal/session"
)

// DifficultyTier names a declared skill-check difficulty.
type DifficultyTier string

const (
	TierTrivial DifficultyTier = "trivial"
	TierEasy    DifficultyTier = "easy"
	TierMedium  DifficultyTier = "medium"
	TierHard    DifficultyTier = "hard"
	TierHeroic  DifficultyTier = "heroic"
)

// tierSpec fixes the threshold and boundary margin of one tier.
type tierSpec struct {
	threshold int
	margin    int
}

// tiers holds the fixed numbers behind each difficulty tier. The source
// material described these only qualitatively; the values here are the
// documented implementation choice.
var tiers = map[DifficultyTier]tierSpec{
	TierTrivial: {threshold: 5, margin: 2},
	TierEasy:    {threshold: 10, margin: 2},
	TierMedium:  {threshold: 12, margin: 2},
	TierHard:    {threshold: 15, margin: 2},
	TierHeroic:  {threshold: 20, margin: 1},
}

// tiebreakSuccess is the minimum tiebreak die value that rescues a
// near-miss.
const tiebreakSuccess = 4

// ParseTier maps a wire name onto a known tier.
func ParseTier(s string) (DifficultyTier, bool) {
	tier := DifficultyTier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tiers[tier]; !ok {
		return "", false
	}
	return tier, true
}

// Modifier is a signed adjustment with a source tag, e.g. a condition
// or a piece of equipment.
type Modifier struct {
	Source string `json:"source"`
	Value  int    `json:"value"`
}

// SkillCheckRequest asks for a check of one attribute against a tier.
type SkillCheckRequest struct {
	ActorID     string
	Attribute   session.Attribute
	Tier        DifficultyTier
	Modifiers   []Modifier
	Description string
}

// SkillCheckResult is the structured outcome of a resolved check.
type SkillCheckResult struct {
	Outcome   Outcome
	Tier      DifficultyTier
	Threshold int
	BaseRoll  int
	Modifier  int
	Total     int
	// TiebreakRoll is the second-phase die, zero when the first phase
	// was decisive.
	TiebreakRoll int
}

// ResolveSkillCheck implements the two-phase roll.
//
// Phase 1 draws a d20 and adds the actor's attribute modifier plus the
// request's tagged modifiers. A natural 20 is a critical success and a
// natural 1 a critical failure, regardless of modifiers. Otherwise the
// total compares against the tier threshold; a total exactly at the
// threshold is a success, never a failure.
//
// Phase 2 fires only when the total lands below the threshold but
// within the tier's margin of it: a d6 tiebreak is drawn, and 4 or
// higher turns the near-miss into a success. A decisive first roll is
// never re-rolled, and a success is never downgraded, so the second
// phase can only soften boundary failures.
func ResolveSkillCheck(req SkillCheckRequest, actor session.Character, src *random.Source) (SkillCheckResult, error) {
	spec, ok := tiers[req.Tier]
	if !ok {
		return SkillCheckResult{}, apperrors.New(apperrors.CodeInvalidDifficultyTier, "unknown difficulty tier").
			WithMetadata("tier", string(req.Tier))
	}
	attribute, ok := session.ParseAttribute(string(req.Attribute))
	if !ok {
		return SkillCheckResult{}, apperrors.New(apperrors.CodeInvalidAttribute, "unknown attribute").
			WithMetadata("attribute", string(req.Attribute))
	}

	modifier := actor.AttrModifier(attribute)
	for _, m := range req.Modifiers {
		modifier += m.Value
	}

	base := dice.D20(src)
	total := base + modifier

	result := SkillCheckResult{
		Tier:      req.Tier,
		Threshold: spec.threshold,
		BaseRoll:  base,
		Modifier:  modifier,
		Total:     total,
	}

	switch {
	case base == 20:
		result.Outcome = OutcomeCriticalSuccess
	case base == 1:
		result.Outcome = OutcomeCriticalFailure
	case total >= spec.threshold:
		result.Outcome = OutcomeSuccess
	case total >= spec.threshold-spec.margin:
		// Boundary miss: draw the tiebreak die.
		result.TiebreakRoll = dice.D6(src)
		if result.TiebreakRoll >= tiebreakSuccess {
			result.Outcome = OutcomeSuccess
		} else {
			result.Outcome = OutcomeFailure
		}
	default:
		result.Outcome = OutcomeFailure
	}

	return result, nil
}

// FailureConsequence draws the damage a confirmed failed check inflicts
// on the acting character.
func FailureConsequence(src *random.Source) int {
	return dice.D4(src)
}
