package session

import "strings"

// Controller distinguishes player characters from AI-controlled ones.
// Both share the same eligibility and initiative contract.
type Controller int

const (
	// ControllerUnspecified represents an invalid controller value.
	ControllerUnspecified Controller = iota
	// ControllerPlayer indicates a human-driven character.
	ControllerPlayer
	// ControllerNPC indicates an AI-driven character.
	ControllerNPC
)

// Attribute names a numeric character stat.
type Attribute string

const (
	AttrStrength     Attribute = "strength"
	AttrAgility      Attribute = "agility"
	AttrConstitution Attribute = "constitution"
	AttrIntellect    Attribute = "intellect"
	AttrWisdom       Attribute = "wisdom"
	AttrPresence     Attribute = "presence"
)

// ParseAttribute maps a wire name onto a known attribute.
func ParseAttribute(s string) (Attribute, bool) {
	switch Attribute(strings.ToLower(strings.TrimSpace(s))) {
	case AttrStrength:
		return AttrStrength, true
	case AttrAgility:
		return AttrAgility, true
	case AttrConstitution:
		return AttrConstitution, true
	case AttrIntellect:
		return AttrIntellect, true
	case AttrWisdom:
		return AttrWisdom, true
	case AttrPresence:
		return AttrPresence, true
	}
	return "", false
}

// Condition is a temporary status effect on a character.
// DurationTurns of -1 means permanent.
type Condition struct {
	Name          string            `json:"name"`
	DurationTurns int               `json:"duration_turns"`
	Modifiers     map[Attribute]int `json:"modifiers,omitempty"`
	ModifiesAll   int               `json:"modifies_all,omitempty"`
}

// Character is a participant in a session: a player character or an
// AI-controlled NPC. It is mutated only through rules-approved deltas.
type Character struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Controller Controller        `json:"controller"`
	Hostile    bool              `json:"hostile"`
	Attributes map[Attribute]int `json:"attributes"`
	Conditions []Condition       `json:"conditions,omitempty"`

	Level    int `json:"level"`
	XP       int `json:"xp"`
	Currency int `json:"currency"`

	// Resources are bounded below by zero and above by their Max pair.
	Health     int `json:"health"`
	MaxHealth  int `json:"max_health"`
	Stamina    int `json:"stamina"`
	MaxStamina int `json:"max_stamina"`

	Inventory Inventory `json:"inventory"`
}

// Attr returns the named attribute, defaulting to the baseline of 10.
func (c Character) Attr(name Attribute) int {
	if v, ok := c.Attributes[name]; ok {
		return v
	}
	return 10
}

// AttrModifier derives the roll modifier for an attribute, with
// conditions applied. The mapping floors, so a 9 yields -1.
func (c Character) AttrModifier(name Attribute) int {
	modifier := floorDiv(c.Attr(name)-10, 2)
	for _, cond := range c.Conditions {
		modifier += cond.Modifiers[name]
		modifier += cond.ModifiesAll
	}
	return modifier
}

// Alive reports whether the character still has health.
func (c Character) Alive() bool {
	return c.Health > 0
}

// clone deep-copies the character so delta application never aliases
// committed state.
func (c Character) clone() Character {
	out := c
	if c.Attributes != nil {
		out.Attributes = make(map[Attribute]int, len(c.Attributes))
		for k, v := range c.Attributes {
			out.Attributes[k] = v
		}
	}
	if c.Conditions != nil {
		out.Conditions = make([]Condition, len(c.Conditions))
		copy(out.Conditions, c.Conditions)
	}
	out.Inventory = c.Inventory.clone()
	return out
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
