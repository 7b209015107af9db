package session

// Resource names a bounded character resource.
type Resource string

const (
	ResourceHealth  Resource = "health"
	ResourceStamina Resource = "stamina"
)

// ResourceChange adjusts one character resource. The result clamps at
// zero below and at the resource's maximum above.
type ResourceChange struct {
	CharacterID string   `json:"character_id"`
	Resource    Resource `json:"resource"`
	Delta       int      `json:"delta"`
}

// InventoryChange adjusts one character's holdings of an item type.
type InventoryChange struct {
	CharacterID   string `json:"character_id"`
	ItemTypeID    string `json:"item_type_id"`
	QuantityDelta int    `json:"quantity_delta"`
	SetEquipped   *bool  `json:"set_equipped,omitempty"`
}

// ProgressAward grants experience and currency, applying level-ups.
type ProgressAward struct {
	CharacterID string `json:"character_id"`
	XP          int    `json:"xp"`
	Currency    int    `json:"currency"`
}

// Delta is the full state change computed for one action. Apply commits
// it atomically: either every field lands together with a version bump,
// or the session is left untouched.
type Delta struct {
	Phase *Phase `json:"phase,omitempty"`

	Resources []ResourceChange  `json:"resources,omitempty"`
	Inventory []InventoryChange `json:"inventory,omitempty"`
	Progress  []ProgressAward   `json:"progress,omitempty"`

	QuestFlags    map[string]bool `json:"quest_flags,omitempty"`
	ObjectivesMet []int           `json:"objectives_met,omitempty"`

	SetPending   *PendingCheck `json:"set_pending,omitempty"`
	ClearPending bool          `json:"clear_pending,omitempty"`

	SetEncounter   *Encounter `json:"set_encounter,omitempty"`
	ClearEncounter bool       `json:"clear_encounter,omitempty"`

	EndSession bool `json:"end_session,omitempty"`
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return d.Phase == nil &&
		len(d.Resources) == 0 &&
		len(d.Inventory) == 0 &&
		len(d.Progress) == 0 &&
		len(d.QuestFlags) == 0 &&
		len(d.ObjectivesMet) == 0 &&
		d.SetPending == nil &&
		!d.ClearPending &&
		d.SetEncounter == nil &&
		!d.ClearEncounter &&
		!d.EndSession
}
