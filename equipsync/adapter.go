// Package equipsync projects the active store's equipped map into the
// flat slot-number frame the legacy renderer consumes. It holds no
// state of its own beyond a memoized last frame used to suppress
// redundant downstream writes.
package equipsync

import (
	"context"
	"sync"

	"github.com/cygirat-cmd/kiki-server/gear"
	"github.com/cygirat-cmd/kiki-server/session"
)

// Frame is the legacy representation: one item ID per numeric slot,
// zero meaning empty. Index i corresponds to gear.AllSlots[i].
type Frame []int64

// Equal compares two frames slot by slot.
func (f Frame) Equal(other Frame) bool {
	if len(f) != len(other) {
		return false
	}
	for i := range f {
		if f[i] != other[i] {
			return false
		}
	}
	return true
}

// Adapter re-derives the legacy frame from whichever store is active
// for the requesting identity. A signed-in request projects its
// account's mirror; before sign-in the guest session drives the
// projection.
type Adapter struct {
	guests  *session.GuestStore
	account *session.AccountStore

	mu   sync.Mutex
	last map[string]Frame // deviceID → last emitted frame
}

// New creates an Adapter over the two stores.
func New(guests *session.GuestStore, account *session.AccountStore) *Adapter {
	return &Adapter{
		guests:  guests,
		account: account,
		last:    make(map[string]Frame),
	}
}

// Project computes the current frame for a device and reports whether
// it differs from the previously emitted one. accountID selects the
// account store when non-zero; zero projects the guest session.
// Consumers should skip their write when changed is false.
func (a *Adapter) Project(ctx context.Context, deviceID string, accountID int64) (Frame, bool, error) {
	equipped, err := a.activeEquipped(ctx, deviceID, accountID)
	if err != nil {
		return nil, false, err
	}
	frame := FromEquipped(equipped)

	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.last[deviceID]; ok && prev.Equal(frame) {
		return frame, false, nil
	}
	a.last[deviceID] = frame
	return frame, true, nil
}

// Reset forgets the memoized frame for a device, forcing the next
// Project to report a change.
func (a *Adapter) Reset(deviceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.last, deviceID)
}

// activeEquipped reads the equipped map from the store selected by the
// request's identity. The selection happens per call, never cached, so
// a projection immediately after sign-in reflects the account.
func (a *Adapter) activeEquipped(ctx context.Context, deviceID string, accountID int64) (gear.Equipped, error) {
	if accountID != 0 {
		mirror, err := a.account.Mirror(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return mirror.EquippedMap(), nil
	}
	state, err := a.guests.State(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return state.Equipped, nil
}

// FromEquipped translates a slot-named equipped map into the flat
// legacy frame. This table-driven translation is the only place the
// numeric slot encoding appears.
func FromEquipped(equipped gear.Equipped) Frame {
	frame := make(Frame, len(gear.AllSlots))
	for slot, itemID := range equipped {
		idx, err := slot.LegacyIndex()
		if err != nil {
			continue
		}
		frame[idx] = itemID
	}
	return frame
}

// ToEquipped translates a legacy frame back into a slot-named map,
// used when decoding legacy payloads.
func ToEquipped(frame Frame) gear.Equipped {
	eq := make(gear.Equipped)
	for idx, itemID := range frame {
		if itemID == 0 {
			continue
		}
		slot, err := gear.SlotFromLegacyIndex(idx)
		if err != nil {
			continue
		}
		eq[slot] = itemID
	}
	return eq
}
