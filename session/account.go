package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cygirat-cmd/kiki-server/catalog"
	"github.com/cygirat-cmd/kiki-server/gear"
	"github.com/cygirat-cmd/kiki-server/model"
	"github.com/cygirat-cmd/kiki-server/store"
	"go.uber.org/zap"
)

// Precondition and remote-write errors raised by the account store.
// Precondition violations are checked before any write; a remote-write
// error means the database rejected the operation and the local mirror
// was left untouched.
var (
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrAlreadyOwned     = errors.New("session: item already owned")
	ErrNotOwned         = errors.New("session: item not owned")
	ErrWrongSlot        = errors.New("session: item does not fit slot")
	ErrRemoteWrite      = errors.New("session: remote write failed")
)

// AccountStore keeps one in-memory mirror per signed-in account, keyed
// by account ID. Requests from different accounts run concurrently
// against the same server, so every read and write must resolve its
// own mirror; there is no process-wide "current account".
type AccountStore struct {
	svc     *store.Service
	catalog *catalog.Catalog
	logger  *zap.Logger

	mu      sync.Mutex
	mirrors map[int64]*AccountMirror
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore(svc *store.Service, cat *catalog.Catalog, logger *zap.Logger) *AccountStore {
	return &AccountStore{
		svc:     svc,
		catalog: cat,
		logger:  logger,
		mirrors: make(map[int64]*AccountMirror),
	}
}

// Mirror returns the mirror for accountID, loading it from the
// database on first use. accountID must identify an authenticated
// account; zero means the caller never went through auth.
func (as *AccountStore) Mirror(ctx context.Context, accountID int64) (*AccountMirror, error) {
	if accountID <= 0 {
		return nil, ErrNotAuthenticated
	}
	m, fresh := as.getOrCreate(accountID)
	if fresh {
		if err := m.Reload(ctx); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Load creates or refreshes the mirror for accountID from the
// database. Sign-in and post-grant refresh paths use it.
func (as *AccountStore) Load(ctx context.Context, accountID int64) error {
	if accountID <= 0 {
		return ErrNotAuthenticated
	}
	m, _ := as.getOrCreate(accountID)
	return m.Reload(ctx)
}

// Drop forgets one account's mirror. Called on sign-out; other
// accounts' mirrors are untouched.
func (as *AccountStore) Drop(accountID int64) {
	as.mu.Lock()
	defer as.mu.Unlock()
	delete(as.mirrors, accountID)
}

// Loaded reports whether a mirror exists for accountID.
func (as *AccountStore) Loaded(accountID int64) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	_, ok := as.mirrors[accountID]
	return ok
}

func (as *AccountStore) getOrCreate(accountID int64) (m *AccountMirror, fresh bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	m, ok := as.mirrors[accountID]
	if !ok {
		m = &AccountMirror{
			svc:       as.svc,
			catalog:   as.catalog,
			logger:    as.logger,
			accountID: accountID,
			owned:     make(map[int64]struct{}),
			favorites: make(map[int64]struct{}),
			equipped:  make(gear.Equipped),
		}
		as.mirrors[accountID] = m
	}
	return m, !ok
}

// AccountMirror mirrors one account's authoritative state. Every
// mutation performs the remote write first and only updates the
// in-memory mirror after it succeeds; there are no optimistic updates
// at this layer.
type AccountMirror struct {
	svc     *store.Service
	catalog *catalog.Catalog
	logger  *zap.Logger

	accountID int64

	mu        sync.RWMutex
	owned     map[int64]struct{}
	favorites map[int64]struct{}
	equipped  gear.Equipped
	outfits   []model.Outfit
}

// Reload fetches owned items, favorites, equipment and outfits for the
// account. A fetch failure degrades to an empty mirror instead of
// failing: "load failed" must stay distinguishable from "not
// authenticated", or a transient error could re-trigger migration.
func (m *AccountMirror) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.owned = make(map[int64]struct{})
	m.favorites = make(map[int64]struct{})
	m.equipped = make(gear.Equipped)
	m.outfits = nil

	ownedIDs, err := m.svc.OwnedItems(ctx, m.accountID)
	if err != nil {
		m.logger.Warn("account state load failed, degrading to empty",
			zap.Int64("account_id", m.accountID), zap.Error(err))
		return nil
	}
	favIDs, err := m.svc.Favorites(ctx, m.accountID)
	if err != nil {
		m.logger.Warn("account favorites load failed, degrading to empty",
			zap.Int64("account_id", m.accountID), zap.Error(err))
		return nil
	}
	equipped, err := m.svc.EquipmentMap(ctx, m.accountID)
	if err != nil {
		m.logger.Warn("account equipment load failed, degrading to empty",
			zap.Int64("account_id", m.accountID), zap.Error(err))
		return nil
	}
	outfits, err := m.svc.Outfits(ctx, m.accountID)
	if err != nil {
		m.logger.Warn("account outfits load failed, degrading to empty",
			zap.Int64("account_id", m.accountID), zap.Error(err))
		return nil
	}

	for _, id := range ownedIDs {
		m.owned[id] = struct{}{}
	}
	for _, id := range favIDs {
		m.favorites[id] = struct{}{}
	}
	m.equipped = equipped
	m.outfits = outfits
	return nil
}

// PurchaseItem grants ownership of an item the account does not yet own.
func (m *AccountMirror) PurchaseItem(ctx context.Context, itemID int64, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, owned := m.owned[itemID]; owned {
		return ErrAlreadyOwned
	}
	if err := m.svc.GrantItem(ctx, m.accountID, itemID, source); err != nil {
		return fmt.Errorf("%w: purchase item %d: %v", ErrRemoteWrite, itemID, err)
	}
	m.owned[itemID] = struct{}{}
	return nil
}

// ToggleFavorite flips an item's favorite mark and returns the new state.
func (m *AccountMirror) ToggleFavorite(ctx context.Context, itemID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, fav := m.favorites[itemID]; fav {
		if err := m.svc.RemoveFavorite(ctx, m.accountID, itemID); err != nil {
			return true, fmt.Errorf("%w: unfavorite item %d: %v", ErrRemoteWrite, itemID, err)
		}
		delete(m.favorites, itemID)
		return false, nil
	}
	if err := m.svc.AddFavorite(ctx, m.accountID, itemID); err != nil {
		return false, fmt.Errorf("%w: favorite item %d: %v", ErrRemoteWrite, itemID, err)
	}
	m.favorites[itemID] = struct{}{}
	return true, nil
}

// EquipItem assigns itemID to slot; itemID 0 clears the slot. The item
// must be owned and its declared slot type must match. Both checks run
// before the remote write.
func (m *AccountMirror) EquipItem(ctx context.Context, slot gear.Slot, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slot.Valid() {
		return ErrWrongSlot
	}
	if itemID != 0 {
		if _, owned := m.owned[itemID]; !owned {
			return ErrNotOwned
		}
		declared, err := m.catalog.SlotOf(itemID)
		if err != nil || declared != slot {
			return ErrWrongSlot
		}
	}
	if err := m.svc.SetEquipment(ctx, m.accountID, slot, itemID); err != nil {
		return fmt.Errorf("%w: equip %s: %v", ErrRemoteWrite, slot, err)
	}
	if itemID == 0 {
		delete(m.equipped, slot)
	} else {
		m.equipped[slot] = itemID
	}
	return nil
}

// SaveOutfit snapshots the current equipment under the given name.
func (m *AccountMirror) SaveOutfit(ctx context.Context, name string) (*model.Outfit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outfit, err := m.svc.CreateOutfit(ctx, m.accountID, name, m.equipped)
	if err != nil {
		return nil, fmt.Errorf("%w: save outfit: %v", ErrRemoteWrite, err)
	}
	m.outfits = append([]model.Outfit{*outfit}, m.outfits...)
	return outfit, nil
}

// LoadOutfit applies a saved outfit as the live equipment, slot by
// slot. Slots not present in the outfit are cleared.
func (m *AccountMirror) LoadOutfit(ctx context.Context, outfitID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted, err := m.svc.OutfitItems(ctx, m.accountID, outfitID)
	if err != nil {
		return err
	}
	for _, slot := range gear.AllSlots {
		itemID := wanted[slot]
		if itemID == m.equipped[slot] {
			continue
		}
		if err := m.svc.SetEquipment(ctx, m.accountID, slot, itemID); err != nil {
			return fmt.Errorf("%w: apply outfit slot %s: %v", ErrRemoteWrite, slot, err)
		}
		if itemID == 0 {
			delete(m.equipped, slot)
		} else {
			m.equipped[slot] = itemID
		}
	}
	return nil
}

// DeleteOutfit removes a saved outfit.
func (m *AccountMirror) DeleteOutfit(ctx context.Context, outfitID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.svc.DeleteOutfit(ctx, m.accountID, outfitID); err != nil {
		if errors.Is(err, store.ErrOutfitNotFound) {
			return err
		}
		return fmt.Errorf("%w: delete outfit %d: %v", ErrRemoteWrite, outfitID, err)
	}
	kept := m.outfits[:0]
	for _, o := range m.outfits {
		if o.ID != outfitID {
			kept = append(kept, o)
		}
	}
	m.outfits = kept
	return nil
}

// RefreshOutfits re-reads the outfit list from the data service.
func (m *AccountMirror) RefreshOutfits(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	outfits, err := m.svc.Outfits(ctx, m.accountID)
	if err != nil {
		return fmt.Errorf("%w: refresh outfits: %v", ErrRemoteWrite, err)
	}
	m.outfits = outfits
	return nil
}

// ---- Read accessors ----

// AccountID returns the account this mirror belongs to.
func (m *AccountMirror) AccountID() int64 {
	return m.accountID
}

// Owns reports mirror-local ownership.
func (m *AccountMirror) Owns(itemID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.owned[itemID]
	return ok
}

// OwnedItems returns a copy of the owned set.
func (m *AccountMirror) OwnedItems() map[int64]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]struct{}, len(m.owned))
	for id := range m.owned {
		out[id] = struct{}{}
	}
	return out
}

// FavoriteItems returns a copy of the favorite set.
func (m *AccountMirror) FavoriteItems() map[int64]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]struct{}, len(m.favorites))
	for id := range m.favorites {
		out[id] = struct{}{}
	}
	return out
}

// EquippedMap returns a copy of the live equipped map.
func (m *AccountMirror) EquippedMap() gear.Equipped {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.equipped.Clone()
}

// Outfits returns the cached outfit list.
func (m *AccountMirror) Outfits() []model.Outfit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Outfit(nil), m.outfits...)
}
