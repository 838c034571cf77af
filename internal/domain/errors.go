package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")

	// Token rejection reasons. A revoked or expired token must never
	// authorize an operation, even if its signature verifies.
	ErrTokenUnknown   = errors.New("token unknown")
	ErrTokenRevoked   = errors.New("token revoked")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")

	// Settlement validation failures. Any one of them rejects the whole
	// requested batch with no partial application.
	ErrItemUnavailable   = errors.New("item unavailable")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidIndex      = errors.New("invalid listing index")
)

// TokenRejection reports whether err is one of the four token rejection
// reasons, as opposed to an infrastructure failure.
func TokenRejection(err error) bool {
	return errors.Is(err, ErrTokenUnknown) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed)
}
