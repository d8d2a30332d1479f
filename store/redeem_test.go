package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/cygirat-cmd/kiki-server/model"
	"github.com/cygirat-cmd/kiki-server/receipt"
	"github.com/cygirat-cmd/kiki-server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const redeemSecret = "test-receipt-secret"

func TestRedeemReceipt(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	accID := createAccount(t, db, "redeem@example.com")

	token, err := receipt.Issue(9, nil, redeemSecret, time.Hour)
	require.NoError(t, err)

	res, err := svc.RedeemReceipt(ctx, accID, token, redeemSecret)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRedeemed, res.Status)
	assert.Equal(t, int64(9), res.ItemID)

	owns, err := svc.Owns(ctx, accID, 9)
	require.NoError(t, err)
	assert.True(t, owns)

	redeemed, err := svc.IsRedeemed(ctx, res.JTI)
	require.NoError(t, err)
	assert.True(t, redeemed)

	var row model.OwnedItem
	require.NoError(t, db.Where("account_id = ? AND item_id = ?", accID, 9).First(&row).Error)
	assert.Equal(t, model.SourceReward, row.Source)
}

func TestRedeemReceipt_SecondRedemptionIsAlreadyRedeemed(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	accID := createAccount(t, db, "redeem2@example.com")

	token, err := receipt.Issue(9, nil, redeemSecret, time.Hour)
	require.NoError(t, err)

	first, err := svc.RedeemReceipt(ctx, accID, token, redeemSecret)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRedeemed, first.Status)

	second, err := svc.RedeemReceipt(ctx, accID, token, redeemSecret)
	require.NoError(t, err, "double redemption is a success with a different status")
	assert.Equal(t, store.StatusAlreadyRedeemed, second.Status)
	assert.Equal(t, first.JTI, second.JTI)

	var count int64
	require.NoError(t, db.Model(&model.OwnedItem{}).
		Where("account_id = ?", accID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRedeemReceipt_RejectsInvalidTokens(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	accID := createAccount(t, db, "redeem3@example.com")

	_, err := svc.RedeemReceipt(ctx, accID, "garbage", redeemSecret)
	assert.Error(t, err)

	forged, err := receipt.Issue(9, nil, "wrong-secret", time.Hour)
	require.NoError(t, err)
	_, err = svc.RedeemReceipt(ctx, accID, forged, redeemSecret)
	assert.Error(t, err)

	expired, err := receipt.Issue(9, nil, redeemSecret, -time.Minute)
	require.NoError(t, err)
	_, err = svc.RedeemReceipt(ctx, accID, expired, redeemSecret)
	assert.Error(t, err)

	owns, err := svc.Owns(ctx, accID, 9)
	require.NoError(t, err)
	assert.False(t, owns, "no grant without a valid receipt")
}
