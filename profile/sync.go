// Package profile implements the best-effort full-profile cloud sync:
// the pet/stats snapshot a device keeps in the durable cache is copied
// into the account's profile row after migration, and on demand.
package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cygirat-cmd/kiki-server/cache"
	"github.com/cygirat-cmd/kiki-server/store"
	"go.uber.org/zap"
)

func localKey(deviceID string) string {
	return "profile:local:" + deviceID
}

// Syncer copies device-local profile snapshots into the database.
type Syncer struct {
	cache  cache.Cache
	svc    *store.Service
	logger *zap.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(c cache.Cache, svc *store.Service, logger *zap.Logger) *Syncer {
	return &Syncer{cache: c, svc: svc, logger: logger}
}

// SaveLocal stores a device's profile snapshot in the cache. The
// payload must be a JSON document; the server does not interpret it.
func (s *Syncer) SaveLocal(ctx context.Context, deviceID string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("profile: snapshot is not valid JSON")
	}
	return s.cache.Set(ctx, localKey(deviceID), string(data), 0)
}

// SyncProfile uploads the device's local snapshot to the account's
// profile row. A device with no local snapshot syncs nothing and
// succeeds.
func (s *Syncer) SyncProfile(ctx context.Context, accountID int64, deviceID string) error {
	data, err := s.cache.Get(ctx, localKey(deviceID))
	if err != nil {
		// No snapshot to sync.
		return nil
	}
	if err := s.svc.UpsertProfile(ctx, accountID, []byte(data)); err != nil {
		return fmt.Errorf("profile: upload snapshot: %w", err)
	}
	s.logger.Info("profile synced",
		zap.Int64("account_id", accountID),
		zap.String("device_id", deviceID))
	return nil
}

// Fetch returns the account's stored profile snapshot.
func (s *Syncer) Fetch(ctx context.Context, accountID int64) ([]byte, error) {
	return s.svc.ProfileData(ctx, accountID)
}
