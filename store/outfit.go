package store

import (
	"context"
	"errors"

	"github.com/cygirat-cmd/kiki-server/gear"
	"github.com/cygirat-cmd/kiki-server/model"
	"gorm.io/gorm"
)

// ErrOutfitNotFound is returned when an outfit does not exist or does
// not belong to the requesting account.
var ErrOutfitNotFound = errors.New("store: outfit not found")

// CreateOutfit snapshots the given equipped map as a named outfit.
// The outfit and its slot links are written in one transaction.
func (svc *Service) CreateOutfit(ctx context.Context, accountID int64, name string, equipped gear.Equipped) (*model.Outfit, error) {
	if equipped.Count() == 0 {
		return nil, errors.New("store: cannot save an empty outfit")
	}
	outfit := &model.Outfit{AccountID: accountID, Name: name}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(outfit).Error; err != nil {
			return err
		}
		for _, slot := range gear.AllSlots {
			itemID := equipped[slot]
			if itemID == 0 {
				continue
			}
			link := &model.OutfitItem{OutfitID: outfit.ID, Slot: string(slot), ItemID: itemID}
			if err := tx.Create(link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outfit, nil
}

// Outfits lists the account's outfits, newest first.
func (svc *Service) Outfits(ctx context.Context, accountID int64) ([]model.Outfit, error) {
	var outfits []model.Outfit
	err := svc.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&outfits).Error
	return outfits, err
}

// OutfitItems returns the slot→item links of one outfit, verifying it
// belongs to the account.
func (svc *Service) OutfitItems(ctx context.Context, accountID, outfitID int64) (gear.Equipped, error) {
	var outfit model.Outfit
	if err := svc.db.WithContext(ctx).
		Where("id = ? AND account_id = ?", outfitID, accountID).
		First(&outfit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOutfitNotFound
		}
		return nil, err
	}
	var links []model.OutfitItem
	if err := svc.db.WithContext(ctx).
		Where("outfit_id = ?", outfitID).
		Find(&links).Error; err != nil {
		return nil, err
	}
	eq := make(gear.Equipped, len(links))
	for _, link := range links {
		slot, err := gear.ParseSlot(link.Slot)
		if err != nil {
			continue
		}
		eq[slot] = link.ItemID
	}
	return eq, nil
}

// DeleteOutfit removes an outfit and its slot links.
func (svc *Service) DeleteOutfit(ctx context.Context, accountID, outfitID int64) error {
	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND account_id = ?", outfitID, accountID).
			Delete(&model.Outfit{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrOutfitNotFound
		}
		return tx.Where("outfit_id = ?", outfitID).Delete(&model.OutfitItem{}).Error
	})
}
