// Package catalog holds the world's item-type table.
//
// The catalog is the guardrail for inventory legality: an item type that
// does not resolve here does not exist in the world, no matter how a
// player phrases the request. It is read-mostly and safe for concurrent
// readers once built.
package catalog

import (
	"fmt"
	"strings"

	apperrors "github.com/fableguard/fableguard/internal/errors"
)

// ItemType describes one legal item type in the world.
type ItemType struct {
	ID         string
	Name       string
	Category   string
	Equippable bool
	Usable     bool
	// DamageDie is the weapon damage die's side count, zero for
	// non-weapons.
	DamageDie int
	// HealAmount is restored health when the item is used, zero
	// otherwise.
	HealAmount int
	// StackLimit caps held quantity; zero means unlimited.
	StackLimit int
}

// Catalog is a versioned item-type table.
type Catalog struct {
	version string
	types   map[string]ItemType
}

// New builds a catalog from a version tag and item types.
func New(version string, types []ItemType) (*Catalog, error) {
	byID := make(map[string]ItemType, len(types))
	for _, t := range types {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return nil, fmt.Errorf("item type with empty id")
		}
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("duplicate item type %q", id)
		}
		t.ID = id
		byID[id] = t
	}
	return &Catalog{version: version, types: byID}, nil
}

// Version returns the catalog's version tag.
func (c *Catalog) Version() string {
	return c.version
}

// Len returns the number of item types in the catalog.
func (c *Catalog) Len() int {
	return len(c.types)
}

// Lookup returns the item type for an ID and whether it exists.
func (c *Catalog) Lookup(typeID string) (ItemType, bool) {
	t, ok := c.types[typeID]
	return t, ok
}

// Resolve returns the item type or a rule violation naming the missing
// type. This is the "no out-of-world items" guardrail.
func (c *Catalog) Resolve(typeID string) (ItemType, error) {
	t, ok := c.types[typeID]
	if !ok {
		return ItemType{}, apperrors.New(apperrors.CodeRuleItemNotInCatalog, "item type is not part of this world").
			WithMetadata("item_type", typeID)
	}
	return t, nil
}
