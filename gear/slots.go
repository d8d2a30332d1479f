package gear

import "fmt"

// Slot identifies one of the fixed cosmetic equipment slots.
type Slot string

const (
	SlotHair     Slot = "hair"
	SlotHat      Slot = "hat"
	SlotGlasses  Slot = "glasses"
	SlotMask     Slot = "mask"
	SlotShirt    Slot = "shirt"
	SlotJacket   Slot = "jacket"
	SlotBackpack Slot = "backpack"
	SlotCape     Slot = "cape"
	SlotWings    Slot = "wings"
)

// AllSlots lists every slot in legacy render order.
var AllSlots = []Slot{
	SlotHair,
	SlotHat,
	SlotGlasses,
	SlotMask,
	SlotShirt,
	SlotJacket,
	SlotBackpack,
	SlotCape,
	SlotWings,
}

// legacyIndex maps each slot to the flat slot number the legacy
// renderer consumes. The numbering is historical and must not change.
var legacyIndex = map[Slot]int{
	SlotHair:     0,
	SlotHat:      1,
	SlotGlasses:  2,
	SlotMask:     3,
	SlotShirt:    4,
	SlotJacket:   5,
	SlotBackpack: 6,
	SlotCape:     7,
	SlotWings:    8,
}

// ParseSlot validates a slot name received from a client or the database.
func ParseSlot(s string) (Slot, error) {
	slot := Slot(s)
	if _, ok := legacyIndex[slot]; !ok {
		return "", fmt.Errorf("gear: unknown slot %q", s)
	}
	return slot, nil
}

// Valid reports whether s is a member of the closed slot set.
func (s Slot) Valid() bool {
	_, ok := legacyIndex[s]
	return ok
}

// LegacyIndex returns the flat numeric slot used by the legacy renderer.
func (s Slot) LegacyIndex() (int, error) {
	idx, ok := legacyIndex[s]
	if !ok {
		return -1, fmt.Errorf("gear: unknown slot %q", string(s))
	}
	return idx, nil
}

// SlotFromLegacyIndex is the inverse translation, used when decoding
// legacy payloads.
func SlotFromLegacyIndex(idx int) (Slot, error) {
	if idx < 0 || idx >= len(AllSlots) {
		return "", fmt.Errorf("gear: legacy slot index %d out of range", idx)
	}
	return AllSlots[idx], nil
}

// Equipped maps slots to item IDs. A missing key or zero value means
// the slot is empty.
type Equipped map[Slot]int64

// Clone returns a copy with empty slots removed.
func (e Equipped) Clone() Equipped {
	out := make(Equipped, len(e))
	for slot, itemID := range e {
		if itemID != 0 {
			out[slot] = itemID
		}
	}
	return out
}

// Count returns the number of non-empty slots.
func (e Equipped) Count() int {
	n := 0
	for _, itemID := range e {
		if itemID != 0 {
			n++
		}
	}
	return n
}

// ItemIn returns the item occupying slot, or 0 when empty.
func (e Equipped) ItemIn(slot Slot) int64 {
	return e[slot]
}

// Equal reports whether two equipped maps assign the same items,
// treating empty and absent slots as identical.
func (e Equipped) Equal(other Equipped) bool {
	for _, slot := range AllSlots {
		if e[slot] != other[slot] {
			return false
		}
	}
	return true
}
