package domain

import "time"

// AuthToken is a persisted bearer credential row. The opaque token string is
// the primary key; exactly one row exists per token. The persisted expiry is
// authoritative (it slides forward on every successful validation) and the
// revoked flag is checked before the signature is trusted.
type AuthToken struct {
	Token      string
	IdentityID string
	Name       string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
}

// Claims is the identity attached to a request after successful token
// validation.
type Claims struct {
	IdentityID string    `json:"identity_id"`
	Name       string    `json:"name"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// PresenceRecord is the one-row-per-identity last-seen marker, upserted on
// every token issuance and validation.
type PresenceRecord struct {
	IdentityID string    `json:"identity_id"`
	Name       string    `json:"name"`
	LastSeen   time.Time `json:"last_seen"`
}

// PresenceSession is a login/logout window for an identity. Multiple
// concurrent sessions per identity are allowed; whether issuing a new token
// force-closes prior sessions is a service-level policy.
type PresenceSession struct {
	ID           int64      `json:"id"`
	IdentityID   string     `json:"identity_id"`
	Name         string     `json:"name"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
	Active       bool       `json:"active"`
	Client       string     `json:"client,omitempty"`
}
