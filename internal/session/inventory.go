package session

// Item is an inventory entry. TypeID must resolve against the world item
// catalog; inventory validation enforces that guardrail before any item
// reaches a delta.
type Item struct {
	ID       string `json:"id"`
	TypeID   string `json:"type_id"`
	Quantity int    `json:"quantity"`
	Equipped bool   `json:"equipped"`
}

// Inventory is an ordered collection of items held by one character.
type Inventory struct {
	Items []Item `json:"items,omitempty"`
}

// Find returns the item holding the given type and whether it exists.
func (inv Inventory) Find(typeID string) (Item, bool) {
	for _, item := range inv.Items {
		if item.TypeID == typeID {
			return item, true
		}
	}
	return Item{}, false
}

// Quantity returns the held quantity of an item type, zero when absent.
func (inv Inventory) Quantity(typeID string) int {
	item, ok := inv.Find(typeID)
	if !ok {
		return 0
	}
	return item.Quantity
}

func (inv Inventory) clone() Inventory {
	if inv.Items == nil {
		return Inventory{}
	}
	out := Inventory{Items: make([]Item, len(inv.Items))}
	copy(out.Items, inv.Items)
	return out
}
