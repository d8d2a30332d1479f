package receipt_test

import (
	"testing"
	"time"

	"github.com/cygirat-cmd/kiki-server/receipt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-receipt-secret"

func TestIssueAndVerify(t *testing.T) {
	crate := int64(4)
	token, err := receipt.Issue(9, &crate, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := receipt.Verify(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(9), claims.ItemID)
	require.NotNil(t, claims.CrateID)
	assert.Equal(t, int64(4), *claims.CrateID)
	assert.NotEmpty(t, claims.JTI())
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := receipt.Issue(9, nil, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = receipt.Verify(token, "other-secret")
	assert.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	token, err := receipt.Issue(9, nil, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = receipt.Verify(token, testSecret)
	assert.Error(t, err)
}

func TestDecodeUnverified(t *testing.T) {
	token, err := receipt.Issue(7, nil, testSecret, -time.Minute)
	require.NoError(t, err)

	// Expired and unverifiable tokens still decode; only redemption
	// enforces validity.
	claims, err := receipt.DecodeUnverified(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.ItemID)
	assert.NotEmpty(t, claims.JTI())

	_, err = receipt.DecodeUnverified("not-a-jwt")
	assert.Error(t, err)
}

func TestIssue_UniqueJTI(t *testing.T) {
	t1, err := receipt.Issue(1, nil, testSecret, time.Hour)
	require.NoError(t, err)
	t2, err := receipt.Issue(1, nil, testSecret, time.Hour)
	require.NoError(t, err)

	c1, err := receipt.DecodeUnverified(t1)
	require.NoError(t, err)
	c2, err := receipt.DecodeUnverified(t2)
	require.NoError(t, err)
	assert.NotEqual(t, c1.JTI(), c2.JTI())
}
