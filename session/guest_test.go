package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cygirat-cmd/kiki-server/cache"
	"github.com/cygirat-cmd/kiki-server/gear"
	"github.com/cygirat-cmd/kiki-server/session"
	"github.com/cygirat-cmd/kiki-server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupGuestStore(t *testing.T) *session.GuestStore {
	t.Helper()
	c, _ := testutil.SetupTestCache(t)
	return session.NewGuestStore(c, zap.NewNop())
}

func TestInitSession_StableGuestID(t *testing.T) {
	gs := setupGuestStore(t)
	ctx := context.Background()

	first, err := gs.InitSession(ctx, "device-1")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := gs.InitSession(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-init must not rotate the guest id")

	other, err := gs.InitSession(ctx, "device-2")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestGuestState_RoundTrip(t *testing.T) {
	gs := setupGuestStore(t)
	ctx := context.Background()
	const dev = "device-rt"

	_, err := gs.InitSession(ctx, dev)
	require.NoError(t, err)

	require.NoError(t, gs.AddProvisionalItem(ctx, dev, 3))
	require.NoError(t, gs.AddProvisionalItem(ctx, dev, 7))
	fav, err := gs.ToggleFavorite(ctx, dev, 7)
	require.NoError(t, err)
	assert.True(t, fav)
	require.NoError(t, gs.Equip(ctx, dev, gear.SlotHat, 3))
	require.NoError(t, gs.AddToCart(ctx, dev, 12))
	require.NoError(t, gs.AddReceipt(ctx, dev, "reward", "tok-1"))

	st, err := gs.State(ctx, dev)
	require.NoError(t, err)
	assert.Len(t, st.Owned, 2)
	assert.Contains(t, st.Owned, int64(3))
	assert.Contains(t, st.Favorites, int64(7))
	assert.Equal(t, int64(3), st.Equipped.ItemIn(gear.SlotHat))
	assert.Contains(t, st.Cart, int64(12))
	require.Len(t, st.Receipts, 1)
	assert.Equal(t, "tok-1", st.Receipts[0].Token)
	assert.True(t, st.HasData())
	assert.False(t, st.MigrationEverCompleted)
}

func TestToggleFavorite_Flips(t *testing.T) {
	gs := setupGuestStore(t)
	ctx := context.Background()
	const dev = "device-fav"

	fav, err := gs.ToggleFavorite(ctx, dev, 5)
	require.NoError(t, err)
	assert.True(t, fav)
	fav, err = gs.ToggleFavorite(ctx, dev, 5)
	require.NoError(t, err)
	assert.False(t, fav)
}

func TestRemoveProvisionalItem_ScrubsReferences(t *testing.T) {
	gs := setupGuestStore(t)
	ctx := context.Background()
	const dev = "device-scrub"

	require.NoError(t, gs.AddProvisionalItem(ctx, dev, 3))
	_, err := gs.ToggleFavorite(ctx, dev, 3)
	require.NoError(t, err)
	require.NoError(t, gs.Equip(ctx, dev, gear.SlotHat, 3))

	require.NoError(t, gs.RemoveProvisionalItem(ctx, dev, 3))

	st, err := gs.State(ctx, dev)
	require.NoError(t, err)
	assert.NotContains(t, st.Owned, int64(3))
	assert.NotContains(t, st.Favorites, int64(3))
	assert.Equal(t, int64(0), st.Equipped.ItemIn(gear.SlotHat))
}

func TestGuestEquip_DoesNotRequireOwnership(t *testing.T) {
	gs := setupGuestStore(t)
	ctx := context.Background()
	const dev = "device-tryon"

	// Try-on flows equip items the guest never acquired.
	require.NoError(t, gs.Equip(ctx, dev, gear.SlotCape, 42))
	st, err := gs.State(ctx, dev)
	require.NoError(t, err)
	assert.Equal(t, int64(42), st.Equipped.ItemIn(gear.SlotCape))
}

func TestClearSession_IsTerminal(t *testing.T) {
	gs := setupGuestStore(t)
	ctx := context.Background()
	const dev = "device-term"

	_, err := gs.InitSession(ctx, dev)
	require.NoError(t, err)
	require.NoError(t, gs.AddProvisionalItem(ctx, dev, 3))

	require.NoError(t, gs.ClearSession(ctx, dev))

	st, err := gs.State(ctx, dev)
	require.NoError(t, err)
	assert.False(t, st.HasData())
	assert.Empty(t, st.GuestID)
	assert.True(t, st.MigrationCompleted)
	assert.True(t, st.MigrationEverCompleted)

	// The terminal flag survives re-init attempts.
	guestID, err := gs.InitSession(ctx, dev)
	require.NoError(t, err)
	assert.Empty(t, guestID, "no new guest session after a completed migration")

	ever, err := gs.MigrationEverCompleted(ctx, dev)
	require.NoError(t, err)
	assert.True(t, ever)
}

func TestReceiptQueue_PruneExpired(t *testing.T) {
	gs := setupGuestStore(t)
	ctx := context.Background()
	const dev = "device-prune"

	_, err := gs.InitSession(ctx, dev)
	require.NoError(t, err)
	require.NoError(t, gs.AddReceipt(ctx, dev, "reward", "fresh"))

	removed, err := gs.ClearExpiredReceipts(ctx, dev, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	// With a zero horizon everything just queued is already stale.
	removed, err = gs.ClearExpiredReceipts(ctx, dev, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	receipts, err := gs.Receipts(ctx, dev)
	require.NoError(t, err)
	assert.Empty(t, receipts)

	total, err := gs.PruneReceipts(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

// brokenHashCache fails every HGet, standing in for an unreachable backend.
type brokenHashCache struct {
	cache.Cache
	err error
}

func (b *brokenHashCache) HGet(ctx context.Context, key, field string) (string, error) {
	return "", b.err
}

func TestInitSession_CacheFailurePropagates(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	boom := errors.New("backend down")
	gs := session.NewGuestStore(&brokenHashCache{Cache: c, err: boom}, zap.NewNop())

	_, err := gs.InitSession(context.Background(), "device-err")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom, "an unreadable terminal flag must not reseed the session")
}

func TestMigrationEverCompleted_CacheFailurePropagates(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	boom := errors.New("backend down")
	gs := session.NewGuestStore(&brokenHashCache{Cache: c, err: boom}, zap.NewNop())

	_, err := gs.MigrationEverCompleted(context.Background(), "device-err")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
