package catalog

import (
	"fmt"
	"os"

	"github.com/Shopify/go-lua"
)

// LoadScript builds a catalog from a Lua world-content script.
//
// The script declares items through the registered constructors:
//
//	version "1.2.0"
//	item{ id = "iron_sword", name = "Iron Sword", category = "weapon",
//	      equippable = true, damage_die = 6 }
//	item{ id = "healing_draught", name = "Healing Draught",
//	      category = "consumable", usable = true, heal = 8, stack = 5 }
func LoadScript(src string) (*Catalog, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	var version string
	var types []ItemType
	var itemErr error

	state.Register("version", func(state *lua.State) int {
		version = lua.CheckString(state, 1)
		return 0
	})
	state.Register("item", func(state *lua.State) int {
		lua.CheckType(state, 1, lua.TypeTable)

		t := ItemType{
			ID:         tableString(state, "id"),
			Name:       tableString(state, "name"),
			Category:   tableString(state, "category"),
			Equippable: tableBool(state, "equippable"),
			Usable:     tableBool(state, "usable"),
			DamageDie:  tableInt(state, "damage_die"),
			HealAmount: tableInt(state, "heal"),
			StackLimit: tableInt(state, "stack"),
		}
		if t.ID == "" && itemErr == nil {
			itemErr = fmt.Errorf("item declared without an id")
		}
		types = append(types, t)
		return 0
	})

	if err := lua.DoString(state, src); err != nil {
		return nil, fmt.Errorf("run catalog script: %w", err)
	}
	if itemErr != nil {
		return nil, itemErr
	}

	cat, err := New(version, types)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	return cat, nil
}

// LoadFile builds a catalog from a Lua script on disk.
func LoadFile(path string) (*Catalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog script: %w", err)
	}
	return LoadScript(string(src))
}

func tableString(state *lua.State, field string) string {
	state.Field(1, field)
	defer state.Pop(1)
	if state.IsNil(-1) {
		return ""
	}
	value, ok := state.ToString(-1)
	if !ok {
		return ""
	}
	return value
}

func tableBool(state *lua.State, field string) bool {
	state.Field(1, field)
	defer state.Pop(1)
	return state.ToBoolean(-1)
}

func tableInt(state *lua.State, field string) int {
	state.Field(1, field)
	defer state.Pop(1)
	if state.IsNil(-1) {
		return 0
	}
	value, ok := state.ToInteger(-1)
	if !ok {
		return 0
	}
	return value
}
