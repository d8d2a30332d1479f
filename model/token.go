package model

import "time"

// RedeemedToken is the server-side ledger of reward tokens that have
// already been cashed in. The jti is the token's unique ID; once a row
// exists the token is permanently inert.
type RedeemedToken struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	JTI        string    `gorm:"uniqueIndex;size:64;not null" json:"jti"`
	AccountID  int64     `gorm:"index:idx_redeemed_account;not null" json:"account_id"`
	ItemID     int64     `gorm:"not null" json:"item_id"`
	CrateID    *int64    `json:"crate_id"`
	RedeemedAt time.Time `gorm:"autoCreateTime" json:"redeemed_at"`
}
