package rules

import (
	"github.com/fableguard/fableguard/internal/catalog"
	"github.com/fableguard/fableguard/internal/core/dice"
	apperrors "github.com/fableguard/fableguard/internal/errors"
	"github.com/fableguard/fableguard/internal/random"
	"github.com/fableguard/fableguard/internal/session"
)

// unarmedDamageDie is the damage die used when no weapon is equipped.
const unarmedDamageDie = 4

// evasionBase anchors the accuracy target number.
const evasionBase = 10

// CombatAction describes one attack within an encounter.
type CombatAction struct {
	ActorID  string
	TargetID string
}

// CombatResult is the structured outcome of a resolved combat action.
type CombatResult struct {
	Outcome     Outcome
	AttackRoll  int
	AttackTotal int
	Evasion     int
	Hit         bool
	// Damage is the amount to subtract from the target's health; it is
	// never negative.
	Damage            int
	TargetHealthAfter int
	TargetDefeated    bool
}

// ResolveCombatAction computes hit/miss and damage for an attack.
//
// Accuracy is a d20 plus the actor's strength modifier against the
// target's evasion (10 plus agility modifier); a tie hits. A natural 20
// is a critical hit that doubles the damage dice; a natural 1 always
// misses. Damage is the equipped weapon's die (unarmed d4) plus the
// strength modifier, floored at zero, and the target's health clamps at
// zero.
func ResolveCombatAction(act CombatAction, actor, target session.Character, cat *catalog.Catalog, src *random.Source) (CombatResult, error) {
	if !actor.Alive() {
		return CombatResult{}, apperrors.New(apperrors.CodeRuleActorDefeated, "a defeated character cannot act").
			WithMetadata("character_id", actor.ID)
	}
	if !target.Alive() {
		return CombatResult{}, apperrors.New(apperrors.CodeRuleTargetDefeated, "target is already defeated").
			WithMetadata("character_id", target.ID)
	}
	if actor.Hostile == target.Hostile {
		return CombatResult{}, apperrors.New(apperrors.CodeRuleTargetNotHostile, "target is not an enemy").
			WithMetadata("character_id", target.ID)
	}

	strMod := actor.AttrModifier(session.AttrStrength)
	evasion := evasionBase + target.AttrModifier(session.AttrAgility)

	attackRoll := dice.D20(src)
	attackTotal := attackRoll + strMod

	result := CombatResult{
		AttackRoll:  attackRoll,
		AttackTotal: attackTotal,
		Evasion:     evasion,
	}

	switch {
	case attackRoll == 1:
		result.Outcome = OutcomeCriticalFailure
	case attackRoll == 20:
		result.Outcome = OutcomeCriticalSuccess
		result.Hit = true
	case attackTotal >= evasion:
		result.Outcome = OutcomeSuccess
		result.Hit = true
	default:
		result.Outcome = OutcomeFailure
	}

	if !result.Hit {
		result.TargetHealthAfter = target.Health
		return result, nil
	}

	die := weaponDamageDie(actor, cat)
	damage := src.IntN(die)
	if result.Outcome == OutcomeCriticalSuccess {
		damage += src.IntN(die)
	}
	damage += strMod
	if damage < 0 {
		damage = 0
	}

	healthAfter := target.Health - damage
	if healthAfter < 0 {
		healthAfter = 0
	}

	result.Damage = damage
	result.TargetHealthAfter = healthAfter
	result.TargetDefeated = healthAfter == 0
	return result, nil
}

// weaponDamageDie picks the damage die of the actor's equipped weapon,
// falling back to unarmed.
func weaponDamageDie(actor session.Character, cat *catalog.Catalog) int {
	if cat == nil {
		return unarmedDamageDie
	}
	for _, item := range actor.Inventory.Items {
		if !item.Equipped {
			continue
		}
		itemType, ok := cat.Lookup(item.TypeID)
		if !ok || itemType.DamageDie <= 0 {
			continue
		}
		return itemType.DamageDie
	}
	return unarmedDamageDie
}

// EncounterOutcome inspects participants after a combat delta and
// reports the terminal condition, if any: victory when no hostile
// remains effective, defeat when no party member does.
func EncounterOutcome(participants []session.Character) session.EncounterEnd {
	hostilesAlive := false
	partyAlive := false
	for _, c := range participants {
		if !c.Alive() {
			continue
		}
		if c.Hostile {
			hostilesAlive = true
		} else {
			partyAlive = true
		}
	}

	switch {
	case !hostilesAlive:
		return session.EndVictory
	case !partyAlive:
		return session.EndDefeat
	default:
		return session.EndUnspecified
	}
}
