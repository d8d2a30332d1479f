// Package migration moves a guest session's provisional state into an
// authenticated account exactly once. The whole algorithm is built to
// be retried: receipts are deduplicated by jti and redeemed against a
// server-side ledger, ownership and favorite inserts are guarded by
// existence checks, and the guest session is only cleared after every
// transfer step has succeeded.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cygirat-cmd/kiki-server/receipt"
	"github.com/cygirat-cmd/kiki-server/session"
	"github.com/cygirat-cmd/kiki-server/store"
	"go.uber.org/zap"
)

// ErrInProgress is returned when another migration holds the lock.
// Callers can distinguish "nothing to do" (empty report, nil error)
// from "someone else is doing it".
var ErrInProgress = errors.New("migration: already in progress")

// ErrIncomplete is returned when one or more transfer steps failed.
// The guest session is preserved so a retry can move the remainder;
// the jti ledger and existence checks make the re-run safe.
var ErrIncomplete = errors.New("migration: transfer incomplete, guest session preserved")

// ProfileSyncer is the best-effort full-profile collaborator invoked as
// the final step. Failures are recorded as warnings, never as
// migration failures.
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, accountID int64, deviceID string) error
}

// Report summarizes one migration run.
type Report struct {
	ItemsAdded            int      `json:"items_added"`
	FavoritesAdded        int      `json:"favorites_added"`
	TokensRedeemed        int      `json:"tokens_redeemed"`
	TokensAlreadyRedeemed int      `json:"tokens_already_redeemed"`
	OutfitSaved           bool     `json:"outfit_saved"`
	OutfitID              int64    `json:"outfit_id,omitempty"`
	ProfileSynced         bool     `json:"profile_synced"`
	Completed             bool     `json:"completed"`
	Skipped               []string `json:"skipped,omitempty"`
	Errors                []string `json:"errors,omitempty"`
}

func (r *Report) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) skipf(format string, args ...interface{}) {
	r.Skipped = append(r.Skipped, fmt.Sprintf(format, args...))
}

// Coordinator owns the migration lock and runs the transfer.
type Coordinator struct {
	guests        *session.GuestStore
	account       *session.AccountStore
	svc           *store.Service
	profiles      ProfileSyncer
	receiptSecret string
	logger        *zap.Logger

	mu sync.Mutex // held for the duration of one migration run
}

// New creates a Coordinator. profiles may be nil, in which case the
// profile-sync step is skipped.
func New(guests *session.GuestStore, account *session.AccountStore, svc *store.Service,
	profiles ProfileSyncer, receiptSecret string, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		guests:        guests,
		account:       account,
		svc:           svc,
		profiles:      profiles,
		receiptSecret: receiptSecret,
		logger:        logger,
	}
}

// ShouldMigrate reports whether the device has a live guest session
// with anything worth migrating. Pure read; safe to poll from every
// integration point without risking a double migration.
func (c *Coordinator) ShouldMigrate(ctx context.Context, deviceID string) (bool, error) {
	state, err := c.guests.State(ctx, deviceID)
	if err != nil {
		return false, err
	}
	if state.MigrationEverCompleted || state.GuestID == "" {
		return false, nil
	}
	return state.HasData(), nil
}

// Run executes the migration for one device into the given account.
// It returns ErrInProgress if another run holds the lock. Malformed
// receipts and post-clear warnings are collected into the report; a
// failure in any data-transfer step returns ErrIncomplete WITHOUT
// clearing the guest session, so a retry can still move what the
// failed step left behind.
func (c *Coordinator) Run(ctx context.Context, deviceID string, accountID int64) (*Report, error) {
	if !c.mu.TryLock() {
		return nil, ErrInProgress
	}
	defer c.mu.Unlock()

	report := &Report{}

	state, err := c.guests.State(ctx, deviceID)
	if err != nil {
		return report, fmt.Errorf("migration: load guest state: %w", err)
	}
	if state.MigrationEverCompleted || state.GuestID == "" || !state.HasData() {
		// Nothing to do. Not an error: the caller may race a second
		// ShouldMigrate poll against a finished run.
		return report, nil
	}

	c.logger.Info("migration started",
		zap.String("device_id", deviceID),
		zap.String("guest_id", state.GuestID),
		zap.Int64("account_id", accountID),
		zap.Int("owned", len(state.Owned)),
		zap.Int("favorites", len(state.Favorites)),
		zap.Int("equipped", state.Equipped.Count()),
		zap.Int("receipts", len(state.Receipts)))

	// Step 1: deduplicate queued receipts by jti. Signatures are not
	// checked here; the redemption step verifies each token. A token
	// that cannot even be parsed is dropped as a warning, not a
	// transfer failure: it would fail identically on every retry.
	unique := c.dedupeReceipts(state.Receipts, report)

	// Steps 2-5 move data. Each records how many operations failed in
	// a way a retry could still fix.
	failures := c.redeemReceipts(ctx, accountID, unique, report)
	failures += c.sweepOwned(ctx, accountID, state, report)
	failures += c.migrateFavorites(ctx, accountID, state, report)
	failures += c.migrateEquipment(ctx, accountID, state, report)

	if failures > 0 {
		c.logger.Warn("migration transfer incomplete, guest session preserved",
			zap.String("device_id", deviceID),
			zap.Int64("account_id", accountID),
			zap.Int("failures", failures))
		return report, fmt.Errorf("%w: %d operations failed", ErrIncomplete, failures)
	}

	// Step 6: terminal. Once this succeeds the guest store never seeds
	// or migrates again for this device.
	if err := c.guests.ClearSession(ctx, deviceID); err != nil {
		report.errorf("clear guest session: %v", err)
		return report, fmt.Errorf("migration: clear guest session: %w", err)
	}
	report.Completed = true

	// Step 7: reload this account's mirror so it reflects everything
	// just written. Load degrades internally and never fails the run.
	if err := c.account.Load(ctx, accountID); err != nil {
		report.errorf("reload account state: %v", err)
	}

	// Step 8: best-effort profile sync.
	if c.profiles != nil {
		if err := c.profiles.SyncProfile(ctx, accountID, deviceID); err != nil {
			report.errorf("profile sync: %v", err)
		} else {
			report.ProfileSynced = true
		}
	}

	c.logger.Info("migration finished",
		zap.Int64("account_id", accountID),
		zap.Int("items_added", report.ItemsAdded),
		zap.Int("favorites_added", report.FavoritesAdded),
		zap.Int("tokens_redeemed", report.TokensRedeemed),
		zap.Bool("outfit_saved", report.OutfitSaved),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// dedupeReceipts keeps the first occurrence of each jti. Malformed
// tokens are recorded and skipped without blocking the rest.
func (c *Coordinator) dedupeReceipts(queued []session.QueuedReceipt, report *Report) []session.QueuedReceipt {
	seen := make(map[string]struct{}, len(queued))
	unique := make([]session.QueuedReceipt, 0, len(queued))
	for _, qr := range queued {
		claims, err := receipt.DecodeUnverified(qr.Token)
		if err != nil {
			report.errorf("parse receipt: %v", err)
			continue
		}
		if _, dup := seen[claims.JTI()]; dup {
			continue
		}
		seen[claims.JTI()] = struct{}{}
		unique = append(unique, qr)
	}
	return unique
}

// redeemReceipts runs step 2 sequentially. A rejected token (bad
// signature, expired) is permanent and only logged; any other error is
// a retriable transfer failure.
func (c *Coordinator) redeemReceipts(ctx context.Context, accountID int64, unique []session.QueuedReceipt, report *Report) (failures int) {
	for _, qr := range unique {
		result, err := c.svc.RedeemReceipt(ctx, accountID, qr.Token, c.receiptSecret)
		if err != nil {
			report.errorf("redeem receipt: %v", err)
			if !errors.Is(err, store.ErrReceiptRejected) {
				failures++
			}
			continue
		}
		if result.Status == store.StatusAlreadyRedeemed {
			report.TokensAlreadyRedeemed++
		} else {
			report.TokensRedeemed++
			report.ItemsAdded++
		}
	}
	return failures
}

// sweepOwned copies guest-owned items the account does not have yet.
// The ownership check alone decides: an item whose receipt came back
// already-redeemed may belong to a different account's ledger entry,
// so a receipt result never excuses the sweep.
func (c *Coordinator) sweepOwned(ctx context.Context, accountID int64, state *session.GuestState, report *Report) (failures int) {
	for itemID := range state.Owned {
		owns, err := c.svc.Owns(ctx, accountID, itemID)
		if err != nil {
			report.errorf("check ownership of item %d: %v", itemID, err)
			failures++
			continue
		}
		if owns {
			continue
		}
		if err := c.svc.GrantItem(ctx, accountID, itemID, "guest_migration"); err != nil {
			report.errorf("grant item %d: %v", itemID, err)
			failures++
			continue
		}
		report.ItemsAdded++
	}
	return failures
}

func (c *Coordinator) migrateFavorites(ctx context.Context, accountID int64, state *session.GuestState, report *Report) (failures int) {
	for itemID := range state.Favorites {
		isFav, err := c.svc.IsFavorite(ctx, accountID, itemID)
		if err != nil {
			report.errorf("check favorite %d: %v", itemID, err)
			failures++
			continue
		}
		if isFav {
			continue
		}
		if err := c.svc.AddFavorite(ctx, accountID, itemID); err != nil {
			report.errorf("favorite item %d: %v", itemID, err)
			failures++
			continue
		}
		report.FavoritesAdded++
	}
	return failures
}

// migrateEquipment archives the guest's equipped map as a dated outfit
// and applies the same items as the account's live equipment. Slots
// whose item the account still does not own after the earlier grant
// steps are guest try-ons; they are skipped so account equipment never
// references an unowned item.
func (c *Coordinator) migrateEquipment(ctx context.Context, accountID int64, state *session.GuestState, report *Report) (failures int) {
	if state.Equipped.Count() == 0 {
		return 0
	}
	name := "Migrated " + time.Now().Format("2006-01-02")
	outfit, err := c.svc.CreateOutfit(ctx, accountID, name, state.Equipped)
	if err != nil {
		report.errorf("save migrated outfit: %v", err)
		failures++
	} else {
		report.OutfitSaved = true
		report.OutfitID = outfit.ID
	}
	for slot, itemID := range state.Equipped {
		if itemID == 0 {
			continue
		}
		owns, err := c.svc.Owns(ctx, accountID, itemID)
		if err != nil {
			report.errorf("check ownership for slot %s: %v", slot, err)
			failures++
			continue
		}
		if !owns {
			report.skipf("equip %s: item %d not owned", slot, itemID)
			continue
		}
		if err := c.svc.SetEquipment(ctx, accountID, slot, itemID); err != nil {
			report.errorf("apply equipment slot %s: %v", slot, err)
			failures++
		}
	}
	return failures
}
