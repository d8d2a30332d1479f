package model

import "time"

// Outfit is a named snapshot of an account's equipped items. Outfits
// are immutable after creation; they can only be deleted.
type Outfit struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"index:idx_outfit_account;not null" json:"account_id"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// OutfitItem links one slot of an outfit to the item it holds.
type OutfitItem struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OutfitID int64  `gorm:"uniqueIndex:idx_outfit_slot;not null" json:"outfit_id"`
	Slot     string `gorm:"uniqueIndex:idx_outfit_slot;size:16;not null" json:"slot"`
	ItemID   int64  `gorm:"not null" json:"item_id"`
}
