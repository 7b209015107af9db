package session

import (
	"time"

	apperrors "github.com/fableguard/fableguard/internal/errors"
)

// levelXPFactor is the XP needed per level: a character levels up when
// XP reaches level * levelXPFactor.
const levelXPFactor = 1000

// levelHealthGain is the max-health increase granted per level.
const levelHealthGain = 10

// Apply commits a delta to the session.
//
// Application is all-or-nothing: the delta is validated and applied
// against scratch state, and only a fully valid result is returned, with
// the version bumped by exactly one. On any error the original session
// value is unchanged and its version does not move.
func Apply(s Session, d Delta, now func() time.Time) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if s.Ended() {
		return s, apperrors.New(apperrors.CodeSessionEnded, "session has ended")
	}

	next := s.clone()

	for _, change := range d.Resources {
		if err := applyResource(&next, change); err != nil {
			return s, err
		}
	}
	for _, change := range d.Inventory {
		if err := applyInventory(&next, change); err != nil {
			return s, err
		}
	}
	for _, award := range d.Progress {
		if err := applyProgress(&next, award); err != nil {
			return s, err
		}
	}

	for flag, value := range d.QuestFlags {
		if next.Quest.Flags == nil {
			next.Quest.Flags = make(map[string]bool)
		}
		next.Quest.Flags[flag] = value
	}
	for _, index := range d.ObjectivesMet {
		if index < 0 || index >= len(next.Quest.Objectives) {
			return s, apperrors.Newf(apperrors.CodeUnknown, "objective index %d out of range", index)
		}
		next.Quest.Objectives[index].Met = true
	}

	if d.SetPending != nil {
		if next.Pending != nil {
			return s, apperrors.New(apperrors.CodeCheckAlreadyPending, "a skill check is already pending")
		}
		pending := *d.SetPending
		next.Pending = &pending
	}
	if d.ClearPending {
		next.Pending = nil
	}

	if d.SetEncounter != nil {
		enc := d.SetEncounter.clone()
		if err := validateParticipants(next, enc); err != nil {
			return s, err
		}
		next.Encounter = enc
	}
	if d.ClearEncounter {
		next.Encounter = nil
	}

	if d.EndSession {
		ended := PhaseEnded
		d.Phase = &ended
	}
	if d.Phase != nil && *d.Phase != next.Phase {
		if !CanTransition(next.Phase, *d.Phase) {
			return s, apperrors.Newf(apperrors.CodeInvalidPhaseTransition,
				"cannot transition from %s to %s", next.Phase, *d.Phase).
				WithMetadata("from", next.Phase.String()).
				WithMetadata("to", d.Phase.String())
		}
		next.Phase = *d.Phase
	}
	if next.Phase == PhaseEnded && next.EndedAt == nil {
		endedAt := now().UTC()
		next.EndedAt = &endedAt
	}

	next.Version = s.Version + 1
	next.UpdatedAt = now().UTC()
	return next, nil
}

func applyResource(s *Session, change ResourceChange) error {
	idx := characterIndex(s, change.CharacterID)
	if idx < 0 {
		return apperrors.New(apperrors.CodeCharacterNotFound, "character not found").
			WithMetadata("character_id", change.CharacterID)
	}

	c := &s.Characters[idx]
	switch change.Resource {
	case ResourceHealth:
		c.Health = clamp(c.Health+change.Delta, 0, c.MaxHealth)
	case ResourceStamina:
		c.Stamina = clamp(c.Stamina+change.Delta, 0, c.MaxStamina)
	default:
		return apperrors.Newf(apperrors.CodeUnknown, "unknown resource %q", change.Resource)
	}
	return nil
}

func applyInventory(s *Session, change InventoryChange) error {
	idx := characterIndex(s, change.CharacterID)
	if idx < 0 {
		return apperrors.New(apperrors.CodeCharacterNotFound, "character not found").
			WithMetadata("character_id", change.CharacterID)
	}

	inv := &s.Characters[idx].Inventory
	for i := range inv.Items {
		if inv.Items[i].TypeID != change.ItemTypeID {
			continue
		}
		quantity := inv.Items[i].Quantity + change.QuantityDelta
		if quantity < 0 {
			return apperrors.New(apperrors.CodeRuleQuantityUnderflow, "item quantity cannot go below zero").
				WithMetadata("item_type", change.ItemTypeID)
		}
		if quantity == 0 {
			inv.Items = append(inv.Items[:i], inv.Items[i+1:]...)
			return nil
		}
		inv.Items[i].Quantity = quantity
		if change.SetEquipped != nil {
			inv.Items[i].Equipped = *change.SetEquipped
		}
		return nil
	}

	if change.QuantityDelta < 0 {
		return apperrors.New(apperrors.CodeRuleItemNotHeld, "character does not hold this item").
			WithMetadata("item_type", change.ItemTypeID)
	}
	if change.QuantityDelta == 0 {
		return nil
	}
	item := Item{
		ID:       change.CharacterID + ":" + change.ItemTypeID,
		TypeID:   change.ItemTypeID,
		Quantity: change.QuantityDelta,
	}
	if change.SetEquipped != nil {
		item.Equipped = *change.SetEquipped
	}
	inv.Items = append(inv.Items, item)
	return nil
}

func applyProgress(s *Session, award ProgressAward) error {
	idx := characterIndex(s, award.CharacterID)
	if idx < 0 {
		return apperrors.New(apperrors.CodeCharacterNotFound, "character not found").
			WithMetadata("character_id", award.CharacterID)
	}

	c := &s.Characters[idx]
	c.XP += award.XP
	c.Currency += award.Currency
	for c.XP >= c.Level*levelXPFactor {
		c.XP -= c.Level * levelXPFactor
		c.Level++
		c.MaxHealth += levelHealthGain
		c.Health = c.MaxHealth
	}
	return nil
}

// validateParticipants enforces the invariant that encounter
// participants are a subset of the session's characters.
func validateParticipants(s Session, enc *Encounter) error {
	for _, participant := range enc.Participants {
		if _, ok := s.Character(participant); !ok {
			return apperrors.New(apperrors.CodeCharacterNotFound, "encounter participant is not a session character").
				WithMetadata("character_id", participant)
		}
	}
	return nil
}

func characterIndex(s *Session, characterID string) int {
	for i := range s.Characters {
		if s.Characters[i].ID == characterID {
			return i
		}
	}
	return -1
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if high >= low && value > high {
		return high
	}
	return value
}
