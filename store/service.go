// Package store is the authoritative data service for account-owned
// state: ownership, favorites, equipment, outfits and the redeemed
// receipt ledger. All writes are keyed by natural keys and upserts are
// conflict-ignoring, so retries never create duplicate rows.
package store

import (
	"context"
	"errors"

	"github.com/cygirat-cmd/kiki-server/gear"
	"github.com/cygirat-cmd/kiki-server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service exposes the remote data operations.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New creates a store Service.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// DB exposes the underlying handle for wiring (audit, tests).
func (svc *Service) DB() *gorm.DB { return svc.db }

// ---- Ownership ----

// GrantItem inserts an ownership record. Granting an already-owned
// item is a no-op; ownership is a set, not a count.
func (svc *Service) GrantItem(ctx context.Context, accountID, itemID int64, source string) error {
	rec := &model.OwnedItem{AccountID: accountID, ItemID: itemID, Source: source}
	return svc.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec).Error
}

// Owns reports whether the account owns the item.
func (svc *Service) Owns(ctx context.Context, accountID, itemID int64) (bool, error) {
	var count int64
	err := svc.db.WithContext(ctx).Model(&model.OwnedItem{}).
		Where("account_id = ? AND item_id = ?", accountID, itemID).
		Count(&count).Error
	return count > 0, err
}

// OwnedItems returns all item IDs the account owns.
func (svc *Service) OwnedItems(ctx context.Context, accountID int64) ([]int64, error) {
	var ids []int64
	err := svc.db.WithContext(ctx).Model(&model.OwnedItem{}).
		Where("account_id = ?", accountID).
		Pluck("item_id", &ids).Error
	return ids, err
}

// ---- Favorites ----

// AddFavorite marks an item as favorited. Idempotent.
func (svc *Service) AddFavorite(ctx context.Context, accountID, itemID int64) error {
	rec := &model.Favorite{AccountID: accountID, ItemID: itemID}
	return svc.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec).Error
}

// RemoveFavorite removes a favorite mark. Removing a non-favorite is a no-op.
func (svc *Service) RemoveFavorite(ctx context.Context, accountID, itemID int64) error {
	return svc.db.WithContext(ctx).
		Where("account_id = ? AND item_id = ?", accountID, itemID).
		Delete(&model.Favorite{}).Error
}

// IsFavorite reports whether the account has favorited the item.
func (svc *Service) IsFavorite(ctx context.Context, accountID, itemID int64) (bool, error) {
	var count int64
	err := svc.db.WithContext(ctx).Model(&model.Favorite{}).
		Where("account_id = ? AND item_id = ?", accountID, itemID).
		Count(&count).Error
	return count > 0, err
}

// Favorites returns all favorited item IDs.
func (svc *Service) Favorites(ctx context.Context, accountID int64) ([]int64, error) {
	var ids []int64
	err := svc.db.WithContext(ctx).Model(&model.Favorite{}).
		Where("account_id = ?", accountID).
		Pluck("item_id", &ids).Error
	return ids, err
}

// ---- Equipment ----

// SetEquipment assigns itemID to slot for the account. itemID 0 clears
// the slot. Slot validity is checked here; ownership is enforced one
// level up, at the account store write boundary.
func (svc *Service) SetEquipment(ctx context.Context, accountID int64, slot gear.Slot, itemID int64) error {
	if !slot.Valid() {
		return errors.New("store: invalid slot")
	}
	if itemID == 0 {
		return svc.db.WithContext(ctx).
			Where("account_id = ? AND slot = ?", accountID, string(slot)).
			Delete(&model.Equipment{}).Error
	}
	rec := &model.Equipment{AccountID: accountID, Slot: string(slot), ItemID: itemID}
	return svc.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "slot"}},
			DoUpdates: clause.AssignmentColumns([]string{"item_id", "updated_at"}),
		}).
		Create(rec).Error
}

// EquipmentMap returns the account's current equipped map.
func (svc *Service) EquipmentMap(ctx context.Context, accountID int64) (gear.Equipped, error) {
	var rows []model.Equipment
	if err := svc.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	eq := make(gear.Equipped, len(rows))
	for _, row := range rows {
		slot, err := gear.ParseSlot(row.Slot)
		if err != nil {
			svc.logger.Warn("skipping equipment row with unknown slot",
				zap.Int64("account_id", accountID),
				zap.String("slot", row.Slot))
			continue
		}
		eq[slot] = row.ItemID
	}
	return eq, nil
}
