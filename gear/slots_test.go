package gear_test

import (
	"testing"

	"github.com/cygirat-cmd/kiki-server/gear"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotTranslation_RoundTrip(t *testing.T) {
	for i, slot := range gear.AllSlots {
		idx, err := slot.LegacyIndex()
		require.NoError(t, err)
		assert.Equal(t, i, idx, "render order must match legacy numbering")

		back, err := gear.SlotFromLegacyIndex(idx)
		require.NoError(t, err)
		assert.Equal(t, slot, back)
	}
}

func TestSlotTranslation_Bounds(t *testing.T) {
	_, err := gear.SlotFromLegacyIndex(-1)
	assert.Error(t, err)
	_, err = gear.SlotFromLegacyIndex(len(gear.AllSlots))
	assert.Error(t, err)
}

func TestParseSlot(t *testing.T) {
	slot, err := gear.ParseSlot("hat")
	require.NoError(t, err)
	assert.Equal(t, gear.SlotHat, slot)

	_, err = gear.ParseSlot("helmet")
	assert.Error(t, err)
	_, err = gear.ParseSlot("")
	assert.Error(t, err)

	assert.False(t, gear.Slot("Hat").Valid(), "slot names are case sensitive")
}

func TestEquipped_Equal(t *testing.T) {
	a := gear.Equipped{gear.SlotHat: 3}
	b := gear.Equipped{gear.SlotHat: 3, gear.SlotCape: 0}
	assert.True(t, a.Equal(b), "zero value and absent slot are both empty")

	b[gear.SlotCape] = 9
	assert.False(t, a.Equal(b))
}

func TestEquipped_CloneDropsEmpty(t *testing.T) {
	e := gear.Equipped{gear.SlotHat: 3, gear.SlotMask: 0}
	clone := e.Clone()
	assert.Equal(t, 1, clone.Count())
	_, present := clone[gear.SlotMask]
	assert.False(t, present)

	clone[gear.SlotHat] = 99
	assert.Equal(t, int64(3), e.ItemIn(gear.SlotHat), "clone must not alias the original")
}
