package domain

import (
	"context"
	"time"
)

// ListingStore persists active sale offers.
type ListingStore interface {
	Insert(ctx context.Context, l Listing) error
	ListAll(ctx context.Context) ([]Listing, error)
	// ListBySeller returns the seller's listings in retrieval order
	// (oldest first). The positional-removal shim depends on this order
	// being stable across calls when the set is unchanged.
	ListBySeller(ctx context.Context, sellerID string) ([]Listing, error)
	// Resolve finds the listing addressed by (item kind, seller display
	// name). It returns ErrNotFound when no such listing exists.
	Resolve(ctx context.Context, itemKind, sellerName string) (Listing, error)
	// DeleteOwned removes the listing with the given ID if it belongs to
	// sellerID, returning ErrNotFound otherwise.
	DeleteOwned(ctx context.Context, sellerID, id string) error
	Count(ctx context.Context) (int64, error)
	CountSellers(ctx context.Context) (int64, error)
}

// EscrowStore persists pending seller proceeds.
type EscrowStore interface {
	ListBySeller(ctx context.Context, sellerID string) ([]EscrowEntry, error)
	// Claim atomically sums and deletes all of the seller's pending
	// entries. Zero pending entries is a successful (0, 0) no-op.
	Claim(ctx context.Context, sellerID string) (total int, count int, err error)
}

// TransactionStore persists the append-only purchase/listing history.
type TransactionStore interface {
	Append(ctx context.Context, rec TransactionRecord) error
	ListByActor(ctx context.Context, actorID string) ([]TransactionRecord, error)
	CountByActorKind(ctx context.Context, actorID string, kind TransactionKind) (int64, error)
	Count(ctx context.Context) (int64, error)
	// ListBefore returns records created strictly before the cutoff, for
	// archival snapshots. Archival never deletes history rows.
	ListBefore(ctx context.Context, before time.Time) ([]TransactionRecord, error)
}

// SettlementStore executes the commit phase of a purchase as one
// transaction: per-line re-resolution, conditional stock decrement, escrow
// credit, and exactly one history record for whatever actually settled.
type SettlementStore interface {
	CommitPurchase(ctx context.Context, buyerID, buyerName string, lines []PurchaseLine) (PurchaseReceipt, error)
}

// AuthStore executes the multi-row auth mutations as single transactions,
// so a failure partway never leaves a half-applied login or logout.
type AuthStore interface {
	// CommitIssue persists a fresh login in one transaction: token insert,
	// presence upsert, optionally closing prior sessions, and a new open
	// session. It returns how many prior sessions were closed.
	CommitIssue(ctx context.Context, token AuthToken, presence PresenceRecord, session PresenceSession, closePrior bool) (int64, error)
	// CommitRevoke marks the token revoked, ends the identity's open
	// sessions and, when no unrevoked tokens remain, deletes the presence
	// row, in one transaction. It returns the identity and the number of
	// live tokens left, or ErrNotFound for an unknown token.
	CommitRevoke(ctx context.Context, token string, at time.Time) (identityID string, remaining int64, err error)
}

// TokenStore persists bearer token rows.
type TokenStore interface {
	Insert(ctx context.Context, t AuthToken) error
	Get(ctx context.Context, token string) (AuthToken, error)
	// ExtendExpiry slides the persisted expiry forward (sliding
	// expiration on every successful validation).
	ExtendExpiry(ctx context.Context, token string, until time.Time) error
	Revoke(ctx context.Context, token string) error
	// CountUnrevoked counts the identity's tokens that are not revoked,
	// regardless of expiry.
	CountUnrevoked(ctx context.Context, identityID string) (int64, error)
	// DeleteExpired removes token rows whose expiry has passed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PresenceStore persists the per-identity last-seen markers.
type PresenceStore interface {
	Upsert(ctx context.Context, rec PresenceRecord) error
	Touch(ctx context.Context, identityID string, at time.Time) error
	Get(ctx context.Context, identityID string) (PresenceRecord, error)
	Delete(ctx context.Context, identityID string) error
	// PurgeIdle deletes presence rows idle beyond the cutoff together
	// with all tokens owned by those identities, in one transaction.
	PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionStore persists presence session windows.
type SessionStore interface {
	Open(ctx context.Context, s PresenceSession) (int64, error)
	// CloseActive ends every open session for the identity.
	CloseActive(ctx context.Context, identityID string, at time.Time) (int64, error)
	Touch(ctx context.Context, identityID string, at time.Time) error
	// CloseIdle ends sessions whose last activity predates the cutoff.
	CloseIdle(ctx context.Context, cutoff, at time.Time) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]PresenceSession, error)
	// ListActiveSince returns open sessions with activity after since.
	ListActiveSince(ctx context.Context, since time.Time) ([]PresenceSession, error)
}
