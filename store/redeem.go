package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cygirat-cmd/kiki-server/model"
	"github.com/cygirat-cmd/kiki-server/receipt"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Redemption statuses.
const (
	StatusRedeemed        = "redeemed"
	StatusAlreadyRedeemed = "already_redeemed"
)

// ErrReceiptRejected marks a token that failed signature or expiry
// verification. Retrying the same token can never succeed, unlike a
// database error during the grant.
var ErrReceiptRejected = errors.New("store: receipt rejected")

// RedeemResult reports the outcome of one receipt redemption.
type RedeemResult struct {
	Status string `json:"status"`
	JTI    string `json:"jti"`
	ItemID int64  `json:"item_id"`
}

// RedeemReceipt verifies a receipt token, checks the jti ledger, and
// grants the item. A token that was already redeemed returns
// StatusAlreadyRedeemed, never an error, so retried migrations are
// safe. Signature and expiry failures are errors.
func (svc *Service) RedeemReceipt(ctx context.Context, accountID int64, tokenStr, secret string) (*RedeemResult, error) {
	claims, err := receipt.Verify(tokenStr, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReceiptRejected, err)
	}

	result := &RedeemResult{JTI: claims.JTI(), ItemID: claims.ItemID}
	err = svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.RedeemedToken
		lookupErr := tx.Where("jti = ?", claims.JTI()).First(&existing).Error
		if lookupErr == nil {
			result.Status = StatusAlreadyRedeemed
			return nil
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return lookupErr
		}

		ledger := &model.RedeemedToken{
			JTI:       claims.JTI(),
			AccountID: accountID,
			ItemID:    claims.ItemID,
			CrateID:   claims.CrateID,
		}
		if createErr := tx.Create(ledger).Error; createErr != nil {
			// Concurrent redemption of the same jti loses the unique
			// index race; report already-redeemed like the lookup path.
			if isUniqueViolation(createErr) {
				result.Status = StatusAlreadyRedeemed
				return nil
			}
			return createErr
		}

		grant := &model.OwnedItem{
			AccountID: accountID,
			ItemID:    claims.ItemID,
			Source:    model.SourceReward,
		}
		if grantErr := tx.Where("account_id = ? AND item_id = ?", accountID, claims.ItemID).
			FirstOrCreate(grant).Error; grantErr != nil {
			return grantErr
		}
		result.Status = StatusRedeemed
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.logger.Info("receipt redeemed",
		zap.Int64("account_id", accountID),
		zap.String("jti", result.JTI),
		zap.Int64("item_id", result.ItemID),
		zap.String("status", result.Status))
	return result, nil
}

// IsRedeemed reports whether the ledger contains the given jti.
func (svc *Service) IsRedeemed(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := svc.db.WithContext(ctx).Model(&model.RedeemedToken{}).
		Where("jti = ?", jti).
		Count(&count).Error
	return count > 0, err
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
