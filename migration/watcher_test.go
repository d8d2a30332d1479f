package migration_test

import (
	"context"
	"testing"
	"time"

	"github.com/cygirat-cmd/kiki-server/migration"
	"github.com/cygirat-cmd/kiki-server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcher_MigratesOnSignIn(t *testing.T) {
	f, _ := setupFixture(t)
	_, ps := testutil.SetupTestCache(t)
	ctx := context.Background()
	const dev = "device-watch"
	seedGuest(t, f, dev)

	w := migration.NewWatcher(f.coord, ps, zap.NewNop())
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	ev := migration.AuthEvent{DeviceID: dev, AccountID: f.accID}
	require.NoError(t, migration.PublishSignIn(ctx, ps, ev))

	require.Eventually(t, func() bool {
		ever, err := f.guests.MigrationEverCompleted(ctx, dev)
		return err == nil && ever
	}, 2*time.Second, 10*time.Millisecond, "sign-in event must trigger the migration")

	owns, err := f.svc.Owns(ctx, f.accID, 9)
	require.NoError(t, err)
	assert.True(t, owns)
}

func TestWatcher_IgnoresMalformedAndIncompleteEvents(t *testing.T) {
	f, _ := setupFixture(t)
	_, ps := testutil.SetupTestCache(t)
	ctx := context.Background()
	const dev = "device-watch-bad"
	seedGuest(t, f, dev)

	w := migration.NewWatcher(f.coord, ps, zap.NewNop())
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, ps.Publish(ctx, migration.AuthChannel, "{notjson"))
	require.NoError(t, migration.PublishSignIn(ctx, ps, migration.AuthEvent{DeviceID: dev}))
	require.NoError(t, migration.PublishSignIn(ctx, ps, migration.AuthEvent{AccountID: f.accID}))

	time.Sleep(100 * time.Millisecond)
	ever, err := f.guests.MigrationEverCompleted(ctx, dev)
	require.NoError(t, err)
	assert.False(t, ever, "incomplete events must not trigger a migration")
}
