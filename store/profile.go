package store

import (
	"context"
	"errors"

	"github.com/cygirat-cmd/kiki-server/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertProfile replaces the account's full gameplay snapshot.
func (svc *Service) UpsertProfile(ctx context.Context, accountID int64, data []byte) error {
	rec := &model.Profile{AccountID: accountID, Data: datatypes.JSON(data)}
	return svc.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "synced_at"}),
		}).
		Create(rec).Error
}

// ProfileData returns the account's stored snapshot, or nil when none
// has been synced yet.
func (svc *Service) ProfileData(ctx context.Context, accountID int64) ([]byte, error) {
	var rec model.Profile
	err := svc.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(rec.Data), nil
}
