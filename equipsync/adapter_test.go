package equipsync_test

import (
	"context"
	"testing"

	"github.com/cygirat-cmd/kiki-server/catalog"
	"github.com/cygirat-cmd/kiki-server/equipsync"
	"github.com/cygirat-cmd/kiki-server/gear"
	"github.com/cygirat-cmd/kiki-server/model"
	"github.com/cygirat-cmd/kiki-server/session"
	"github.com/cygirat-cmd/kiki-server/store"
	"github.com/cygirat-cmd/kiki-server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupAdapter(t *testing.T) (*equipsync.Adapter, *session.GuestStore, *session.AccountStore, int64) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	svc := store.New(db, zap.NewNop())

	cat := catalog.NewCatalog("")
	cat.Put(&catalog.Item{ID: 3, Name: "Beanie", Slot: "hat"})
	cat.Put(&catalog.Item{ID: 9, Name: "Feather Cape", Slot: "cape"})

	guests := session.NewGuestStore(c, zap.NewNop())
	account := session.NewAccountStore(svc, cat, zap.NewNop())

	acc := &model.Account{Email: "sync@example.com", PasswordHash: "hash", Status: 1}
	require.NoError(t, db.Create(acc).Error)

	return equipsync.New(guests, account), guests, account, acc.ID
}

func TestFrameTranslation_RoundTrip(t *testing.T) {
	eq := gear.Equipped{gear.SlotHair: 1, gear.SlotWings: 5}
	frame := equipsync.FromEquipped(eq)
	require.Len(t, frame, len(gear.AllSlots))
	assert.Equal(t, int64(1), frame[0])
	assert.Equal(t, int64(5), frame[8])

	back := equipsync.ToEquipped(frame)
	assert.True(t, eq.Equal(back))
}

func TestProject_MemoizesUnchangedFrames(t *testing.T) {
	adapter, guests, _, _ := setupAdapter(t)
	ctx := context.Background()
	const dev = "device-memo"

	require.NoError(t, guests.Equip(ctx, dev, gear.SlotHat, 3))

	frame, changed, err := adapter.Project(ctx, dev, 0)
	require.NoError(t, err)
	assert.True(t, changed, "first projection always reports a change")
	assert.Equal(t, int64(3), frame[1])

	_, changed, err = adapter.Project(ctx, dev, 0)
	require.NoError(t, err)
	assert.False(t, changed, "identical frame is suppressed")

	require.NoError(t, guests.Equip(ctx, dev, gear.SlotHat, 0))
	_, changed, err = adapter.Project(ctx, dev, 0)
	require.NoError(t, err)
	assert.True(t, changed)

	adapter.Reset(dev)
	_, changed, err = adapter.Project(ctx, dev, 0)
	require.NoError(t, err)
	assert.True(t, changed, "reset forces re-emission")
}

func TestProject_SwitchesToAccountOnSignIn(t *testing.T) {
	adapter, guests, account, accID := setupAdapter(t)
	ctx := context.Background()
	const dev = "device-switch"

	require.NoError(t, guests.Equip(ctx, dev, gear.SlotHat, 3))
	frame, _, err := adapter.Project(ctx, dev, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), frame[1], "guest equipment drives the frame pre-auth")

	// Sign in with different equipment on the account.
	mirror, err := account.Mirror(ctx, accID)
	require.NoError(t, err)
	require.NoError(t, mirror.PurchaseItem(ctx, 9, model.SourceShop))
	require.NoError(t, mirror.EquipItem(ctx, gear.SlotCape, 9))

	frame, changed, err := adapter.Project(ctx, dev, accID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(0), frame[1], "guest hat no longer projected")
	assert.Equal(t, int64(9), frame[7], "account cape wins immediately after sign-in")
}

func TestProject_AccountsDoNotShareFrames(t *testing.T) {
	adapter, _, account, accID := setupAdapter(t)
	ctx := context.Background()

	mirror, err := account.Mirror(ctx, accID)
	require.NoError(t, err)
	require.NoError(t, mirror.PurchaseItem(ctx, 3, model.SourceShop))
	require.NoError(t, mirror.EquipItem(ctx, gear.SlotHat, 3))

	frame, _, err := adapter.Project(ctx, "device-a", accID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), frame[1])

	// A different signed-in account on another device projects its own
	// (empty) equipment, not the first account's.
	frame, _, err = adapter.Project(ctx, "device-b", accID+1000)
	require.NoError(t, err)
	assert.Equal(t, equipsync.FromEquipped(gear.Equipped{}), frame)
}
