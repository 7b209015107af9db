package rules

import (
	"github.com/fableguard/fableguard/internal/catalog"
	apperrors "github.com/fableguard/fableguard/internal/errors"
	"github.com/fableguard/fableguard/internal/session"
)

// boolPtr is a small helper for InventoryChange.SetEquipped.
func boolPtr(b bool) *bool { return &b }

// UseItem validates consuming one unit of an item type and returns the
// changes to apply: the quantity decrement and, for healing items, the
// resource delta.
//
// Every inventory operation resolves its type against the world catalog
// first, so an item type the world never declared is rejected before it
// can touch state.
func UseItem(actor session.Character, typeID string, cat *catalog.Catalog) ([]session.InventoryChange, []session.ResourceChange, error) {
	itemType, err := cat.Resolve(typeID)
	if err != nil {
		return nil, nil, err
	}
	if !itemType.Usable {
		return nil, nil, apperrors.New(apperrors.CodeRuleItemNotUsable, "item type cannot be used").
			WithMetadata("item_type", typeID)
	}
	if actor.Inventory.Quantity(typeID) < 1 {
		return nil, nil, apperrors.New(apperrors.CodeRuleItemNotHeld, "item type not held").
			WithMetadata("item_type", typeID)
	}

	inv := []session.InventoryChange{{
		CharacterID:   actor.ID,
		ItemTypeID:    typeID,
		QuantityDelta: -1,
	}}

	var res []session.ResourceChange
	if itemType.HealAmount > 0 {
		res = append(res, session.ResourceChange{
			CharacterID: actor.ID,
			Resource:    session.ResourceHealth,
			Delta:       itemType.HealAmount,
		})
	}
	return inv, res, nil
}

// EquipItem validates equipping a held item type and returns the change
// that flips its equipped flag. Equip requires the catalog entry to be
// equippable.
func EquipItem(actor session.Character, typeID string, cat *catalog.Catalog) ([]session.InventoryChange, error) {
	itemType, err := cat.Resolve(typeID)
	if err != nil {
		return nil, err
	}
	if !itemType.Equippable {
		return nil, apperrors.New(apperrors.CodeRuleItemNotEquippable, "item type cannot be equipped").
			WithMetadata("item_type", typeID)
	}
	if actor.Inventory.Quantity(typeID) < 1 {
		return nil, apperrors.New(apperrors.CodeRuleItemNotHeld, "item type not held").
			WithMetadata("item_type", typeID)
	}

	changes := []session.InventoryChange{{
		CharacterID: actor.ID,
		ItemTypeID:  typeID,
		SetEquipped: boolPtr(true),
	}}
	// Only one item per category can be equipped at a time.
	for _, held := range actor.Inventory.Items {
		if !held.Equipped || held.TypeID == typeID {
			continue
		}
		heldType, ok := cat.Lookup(held.TypeID)
		if !ok || heldType.Category != itemType.Category {
			continue
		}
		changes = append(changes, session.InventoryChange{
			CharacterID: actor.ID,
			ItemTypeID:  held.TypeID,
			SetEquipped: boolPtr(false),
		})
	}
	return changes, nil
}

// DropItem validates removing a quantity of a held item type. Dropping
// more than is held is a quantity underflow and rejected whole; partial
// drops never happen.
func DropItem(actor session.Character, typeID string, quantity int, cat *catalog.Catalog) ([]session.InventoryChange, error) {
	if _, err := cat.Resolve(typeID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		quantity = 1
	}
	if held := actor.Inventory.Quantity(typeID); held < quantity {
		return nil, apperrors.New(apperrors.CodeRuleQuantityUnderflow, "cannot drop more than held").
			WithMetadata("item_type", typeID)
	}

	return []session.InventoryChange{{
		CharacterID:   actor.ID,
		ItemTypeID:    typeID,
		QuantityDelta: -quantity,
	}}, nil
}

// PickUpItem validates adding a quantity of an item type, honoring the
// catalog's stack limit when one is declared.
func PickUpItem(actor session.Character, typeID string, quantity int, cat *catalog.Catalog) ([]session.InventoryChange, error) {
	itemType, err := cat.Resolve(typeID)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		quantity = 1
	}
	if itemType.StackLimit > 0 && actor.Inventory.Quantity(typeID)+quantity > itemType.StackLimit {
		return nil, apperrors.New(apperrors.CodeRuleInsufficientResource, "stack limit exceeded").
			WithMetadata("item_type", typeID)
	}

	return []session.InventoryChange{{
		CharacterID:   actor.ID,
		ItemTypeID:    typeID,
		QuantityDelta: quantity,
	}}, nil
}
