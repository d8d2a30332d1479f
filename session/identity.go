// Package session holds the two peer stores for user state: the
// provisional guest store (cache-persisted, available before sign-in)
// and the authoritative account store (database-backed mirror for an
// authenticated user). Exactly one identity is active at a time, and
// guest→account is a one-way transition for the life of a session.
package session

// IdentityKind distinguishes guest from account identities.
type IdentityKind string

const (
	KindGuest   IdentityKind = "guest"
	KindAccount IdentityKind = "account"
)

// Identity is the current actor: either an anonymous guest or an
// authenticated account.
type Identity struct {
	Kind      IdentityKind
	GuestID   string
	AccountID int64

	// Unconfirmed marks an identity reconstructed from a locally
	// decoded token during a slow bootstrap, before the identity
	// service has confirmed it. Write operations must reject
	// unconfirmed identities.
	Unconfirmed bool
}

// Guest builds a guest identity.
func Guest(guestID string) Identity {
	return Identity{Kind: KindGuest, GuestID: guestID}
}

// Account builds a confirmed account identity.
func Account(accountID int64) Identity {
	return Identity{Kind: KindAccount, AccountID: accountID}
}

// IsAccount reports whether the identity is an authenticated account.
func (id Identity) IsAccount() bool {
	return id.Kind == KindAccount && id.AccountID != 0
}

// CanWrite reports whether the identity may perform write operations.
// Unconfirmed identities are read-only until revalidated.
func (id Identity) CanWrite() bool {
	return !id.Unconfirmed
}
