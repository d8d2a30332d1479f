package model

import (
	"time"

	"gorm.io/datatypes"
)

// Profile is an account's full gameplay snapshot (pet state, streaks,
// stats) stored as an opaque JSON document. Written by the best-effort
// cloud sync; the server does not interpret its contents.
type Profile struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64          `gorm:"uniqueIndex;not null" json:"account_id"`
	Data      datatypes.JSON `json:"data"`
	SyncedAt  time.Time      `gorm:"autoUpdateTime" json:"synced_at"`
}
