package model

import "time"

// Ownership sources recorded on OwnedItem rows.
const (
	SourceShop           = "shop"
	SourceReward         = "reward"
	SourceGuestMigration = "guest_migration"
)

// OwnedItem records that an account owns a cosmetic item. Ownership is
// a set: the (account_id, item_id) pair is unique and carries no count.
type OwnedItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"uniqueIndex:idx_owned_account_item;not null" json:"account_id"`
	ItemID    int64     `gorm:"uniqueIndex:idx_owned_account_item;not null" json:"item_id"`
	Source    string    `gorm:"size:32;not null" json:"source"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Favorite marks an item as favorited by an account, independent of
// ownership.
type Favorite struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"uniqueIndex:idx_fav_account_item;not null" json:"account_id"`
	ItemID    int64     `gorm:"uniqueIndex:idx_fav_account_item;not null" json:"item_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Equipment holds the item currently worn in one slot. At most one row
// per (account_id, slot).
type Equipment struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"uniqueIndex:idx_equip_account_slot;not null" json:"account_id"`
	Slot      string    `gorm:"uniqueIndex:idx_equip_account_slot;size:16;not null" json:"slot"`
	ItemID    int64     `gorm:"not null" json:"item_id"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
