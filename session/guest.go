package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/cygirat-cmd/kiki-server/cache"
	"github.com/cygirat-cmd/kiki-server/gear"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Meta hash fields for a guest session.
const (
	metaGuestID       = "guest_id"
	metaCompleted     = "migration_completed"
	metaEverCompleted = "migration_ever_completed"
)

// deviceRegistryKey indexes devices with an active guest session so
// maintenance sweeps can enumerate them.
const deviceRegistryKey = "guest:devices"

// QueuedReceipt is one reward/purchase token waiting to be redeemed
// after sign-in.
type QueuedReceipt struct {
	Type     string    `json:"type"`
	Token    string    `json:"token"`
	QueuedAt time.Time `json:"queued_at"`
}

// GuestState is a full snapshot of one guest session.
type GuestState struct {
	GuestID                string
	Owned                  map[int64]struct{}
	Favorites              map[int64]struct{}
	Equipped               gear.Equipped
	Cart                   map[int64]struct{}
	Receipts               []QueuedReceipt
	MigrationCompleted     bool
	MigrationEverCompleted bool
}

// HasData reports whether any migratable state is present.
func (s *GuestState) HasData() bool {
	return len(s.Owned) > 0 || len(s.Favorites) > 0 ||
		s.Equipped.Count() > 0 || len(s.Receipts) > 0
}

// GuestStore keeps anonymous, provisionally-owned state in the durable
// cache, keyed by the client's device ID. It never touches the
// database: everything here is local until migration moves it over.
type GuestStore struct {
	cache  cache.Cache
	logger *zap.Logger
}

// NewGuestStore creates a GuestStore over the given cache.
func NewGuestStore(c cache.Cache, logger *zap.Logger) *GuestStore {
	return &GuestStore{cache: c, logger: logger}
}

func guestKey(deviceID, suffix string) string {
	return "guest:" + deviceID + ":" + suffix
}

// InitSession assigns a fresh guest ID if none exists and migration has
// never completed for this device. It returns the active guest ID, or
// "" when the store is terminal (a past migration already ran). A
// cache read failure is an error, never absence: reseeding a device
// whose terminal flag could not be read would resurrect migrated data.
func (gs *GuestStore) InitSession(ctx context.Context, deviceID string) (string, error) {
	meta := guestKey(deviceID, "meta")
	ever, err := gs.cache.HGet(ctx, meta, metaEverCompleted)
	if err != nil && !cache.IsNotFound(err) {
		return "", err
	}
	if ever == "1" {
		return "", nil
	}
	existing, err := gs.cache.HGet(ctx, meta, metaGuestID)
	if err != nil && !cache.IsNotFound(err) {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}
	guestID := uuid.New().String()
	if err := gs.cache.HSet(ctx, meta, metaGuestID, guestID); err != nil {
		return "", err
	}
	if err := gs.cache.SAdd(ctx, deviceRegistryKey, deviceID); err != nil {
		return "", err
	}
	gs.logger.Info("guest session seeded",
		zap.String("device_id", deviceID),
		zap.String("guest_id", guestID))
	return guestID, nil
}

// State loads the full guest snapshot for a device.
func (gs *GuestStore) State(ctx context.Context, deviceID string) (*GuestState, error) {
	meta, err := gs.cache.HGetAll(ctx, guestKey(deviceID, "meta"))
	if err != nil {
		return nil, err
	}
	state := &GuestState{
		GuestID:                meta[metaGuestID],
		MigrationCompleted:     meta[metaCompleted] == "1",
		MigrationEverCompleted: meta[metaEverCompleted] == "1",
		Equipped:               make(gear.Equipped),
	}
	if state.Owned, err = gs.itemSet(ctx, deviceID, "owned"); err != nil {
		return nil, err
	}
	if state.Favorites, err = gs.itemSet(ctx, deviceID, "favs"); err != nil {
		return nil, err
	}
	if state.Cart, err = gs.itemSet(ctx, deviceID, "cart"); err != nil {
		return nil, err
	}
	equip, err := gs.cache.HGetAll(ctx, guestKey(deviceID, "equip"))
	if err != nil {
		return nil, err
	}
	for slotName, itemStr := range equip {
		slot, parseErr := gear.ParseSlot(slotName)
		if parseErr != nil {
			continue
		}
		itemID, parseErr := strconv.ParseInt(itemStr, 10, 64)
		if parseErr != nil || itemID == 0 {
			continue
		}
		state.Equipped[slot] = itemID
	}
	if state.Receipts, err = gs.Receipts(ctx, deviceID); err != nil {
		return nil, err
	}
	return state, nil
}

func (gs *GuestStore) itemSet(ctx context.Context, deviceID, suffix string) (map[int64]struct{}, error) {
	members, err := gs.cache.SMembers(ctx, guestKey(deviceID, suffix))
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(members))
	for _, m := range members {
		id, parseErr := strconv.ParseInt(m, 10, 64)
		if parseErr != nil {
			continue
		}
		out[id] = struct{}{}
	}
	return out, nil
}

// AddProvisionalItem marks an item as locally owned.
func (gs *GuestStore) AddProvisionalItem(ctx context.Context, deviceID string, itemID int64) error {
	return gs.cache.SAdd(ctx, guestKey(deviceID, "owned"), strconv.FormatInt(itemID, 10))
}

// RemoveProvisionalItem drops an item from local ownership and scrubs
// every reference to it: favorites and any slot it occupies. Equipment
// must never point at a non-owned item.
func (gs *GuestStore) RemoveProvisionalItem(ctx context.Context, deviceID string, itemID int64) error {
	idStr := strconv.FormatInt(itemID, 10)
	if err := gs.cache.SRem(ctx, guestKey(deviceID, "owned"), idStr); err != nil {
		return err
	}
	if err := gs.cache.SRem(ctx, guestKey(deviceID, "favs"), idStr); err != nil {
		return err
	}
	equipKey := guestKey(deviceID, "equip")
	equipped, err := gs.cache.HGetAll(ctx, equipKey)
	if err != nil {
		return err
	}
	for slotName, itemStr := range equipped {
		if itemStr == idStr {
			if err := gs.cache.HDel(ctx, equipKey, slotName); err != nil {
				return err
			}
		}
	}
	return nil
}

// ToggleFavorite flips an item's favorite mark and returns the new state.
func (gs *GuestStore) ToggleFavorite(ctx context.Context, deviceID string, itemID int64) (bool, error) {
	key := guestKey(deviceID, "favs")
	idStr := strconv.FormatInt(itemID, 10)
	isFav, err := gs.cache.SIsMember(ctx, key, idStr)
	if err != nil {
		return false, err
	}
	if isFav {
		return false, gs.cache.SRem(ctx, key, idStr)
	}
	return true, gs.cache.SAdd(ctx, key, idStr)
}

// Equip assigns itemID to slot; itemID 0 clears the slot. Ownership is
// NOT checked here: the guest store intentionally mirrors the caller's
// view and leaves the owned-item invariant to the UI layer. Only the
// account store enforces it.
func (gs *GuestStore) Equip(ctx context.Context, deviceID string, slot gear.Slot, itemID int64) error {
	if !slot.Valid() {
		return errors.New("session: invalid slot")
	}
	key := guestKey(deviceID, "equip")
	if itemID == 0 {
		return gs.cache.HDel(ctx, key, string(slot))
	}
	return gs.cache.HSet(ctx, key, string(slot), strconv.FormatInt(itemID, 10))
}

// ---- Cart ----

// AddToCart places an item in the guest's cart.
func (gs *GuestStore) AddToCart(ctx context.Context, deviceID string, itemID int64) error {
	return gs.cache.SAdd(ctx, guestKey(deviceID, "cart"), strconv.FormatInt(itemID, 10))
}

// RemoveFromCart takes an item out of the cart.
func (gs *GuestStore) RemoveFromCart(ctx context.Context, deviceID string, itemID int64) error {
	return gs.cache.SRem(ctx, guestKey(deviceID, "cart"), strconv.FormatInt(itemID, 10))
}

// ---- Receipts ----

// AddReceipt queues a signed reward token for later redemption.
func (gs *GuestStore) AddReceipt(ctx context.Context, deviceID, receiptType, token string) error {
	entry := QueuedReceipt{Type: receiptType, Token: token, QueuedAt: time.Now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return gs.cache.LPush(ctx, guestKey(deviceID, "receipts"), string(raw))
}

// Receipts returns the queued receipts, oldest data preserved as-is.
func (gs *GuestStore) Receipts(ctx context.Context, deviceID string) ([]QueuedReceipt, error) {
	raw, err := gs.cache.LRange(ctx, guestKey(deviceID, "receipts"), 0, -1)
	if err != nil {
		return nil, err
	}
	out := make([]QueuedReceipt, 0, len(raw))
	for _, r := range raw {
		var entry QueuedReceipt
		if err := json.Unmarshal([]byte(r), &entry); err != nil {
			gs.logger.Warn("dropping malformed queued receipt",
				zap.String("device_id", deviceID))
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// ClearExpiredReceipts drops queue entries older than maxAge. This is a
// best-effort local sweep; the redemption endpoint independently
// enforces token expiry.
func (gs *GuestStore) ClearExpiredReceipts(ctx context.Context, deviceID string, maxAge time.Duration) (int, error) {
	key := guestKey(deviceID, "receipts")
	raw, err := gs.cache.LRange(ctx, key, 0, -1)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	kept := make([]string, 0, len(raw))
	removed := 0
	for _, r := range raw {
		var entry QueuedReceipt
		if err := json.Unmarshal([]byte(r), &entry); err != nil {
			removed++
			continue
		}
		if entry.QueuedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, gs.cache.LSet(ctx, key, kept)
}

// ClearSession wipes all guest data for the device and marks migration
// as completed, permanently. After this the store never seeds a new
// guest for the same device.
func (gs *GuestStore) ClearSession(ctx context.Context, deviceID string) error {
	keys := []string{
		guestKey(deviceID, "owned"),
		guestKey(deviceID, "favs"),
		guestKey(deviceID, "cart"),
		guestKey(deviceID, "equip"),
		guestKey(deviceID, "receipts"),
	}
	if err := gs.cache.Del(ctx, keys...); err != nil {
		return err
	}
	meta := guestKey(deviceID, "meta")
	if err := gs.cache.HDel(ctx, meta, metaGuestID); err != nil {
		return err
	}
	if err := gs.cache.HSet(ctx, meta, metaCompleted, "1"); err != nil {
		return err
	}
	if err := gs.cache.HSet(ctx, meta, metaEverCompleted, "1"); err != nil {
		return err
	}
	return gs.cache.SRem(ctx, deviceRegistryKey, deviceID)
}

// PruneReceipts sweeps every registered guest device and removes queue
// entries older than maxAge. Returns the total number removed.
func (gs *GuestStore) PruneReceipts(ctx context.Context, maxAge time.Duration) (int, error) {
	devices, err := gs.cache.SMembers(ctx, deviceRegistryKey)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, deviceID := range devices {
		removed, err := gs.ClearExpiredReceipts(ctx, deviceID, maxAge)
		if err != nil {
			gs.logger.Warn("receipt prune failed for device",
				zap.String("device_id", deviceID), zap.Error(err))
			continue
		}
		total += removed
	}
	return total, nil
}

// MigrationEverCompleted reports the durable terminal flag. An unset
// flag reads as false; a cache failure is surfaced to the caller.
func (gs *GuestStore) MigrationEverCompleted(ctx context.Context, deviceID string) (bool, error) {
	v, err := gs.cache.HGet(ctx, guestKey(deviceID, "meta"), metaEverCompleted)
	if err != nil {
		if cache.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return v == "1", nil
}
