// Package receipt issues and parses signed reward tokens. A receipt
// entitles whoever redeems it to one item; the jti claim is the global
// deduplication key checked against the server-side ledger.
package receipt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Receipt types queued by the guest session.
const (
	TypeReward   = "reward"
	TypePurchase = "purchase"
)

// Claims is the receipt JWT payload.
type Claims struct {
	ItemID  int64  `json:"item_id"`
	CrateID *int64 `json:"crate_id,omitempty"`
	jwt.RegisteredClaims
}

// JTI returns the token's unique ID.
func (c *Claims) JTI() string { return c.ID }

// Issue signs a receipt for the given item with a fresh jti.
func Issue(itemID int64, crateID *int64, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		ItemID:  itemID,
		CrateID: crateID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Verify validates the signature and expiry of a receipt token and
// returns its claims. This is the authoritative check performed at
// redemption time.
func Verify(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid receipt token")
	}
	if claims.ID == "" {
		return nil, errors.New("receipt token missing jti")
	}
	return claims, nil
}

// DecodeUnverified extracts the claims without checking the signature
// or expiry. Used only to deduplicate queued receipts by jti before
// redemption; the server re-verifies every token it redeems.
func DecodeUnverified(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, errors.New("receipt token missing jti")
	}
	return claims, nil
}
