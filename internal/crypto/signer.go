// Package crypto provides bearer token minting/verification and management
// of the HMAC signing secret.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrBadToken is returned by Verify for any structurally invalid token or
// signature mismatch. Callers map it to their own rejection taxonomy.
var ErrBadToken = errors.New("crypto: bad token")

// TokenPayload is the signed portion of a bearer token. The embedded
// issued-at is informational; expiry authority lives in the persisted token
// row, which slides forward on use.
type TokenPayload struct {
	ID         string `json:"jti"`
	IdentityID string `json:"sub"`
	Name       string `json:"name"`
	IssuedAt   int64  `json:"iat"`
}

// TokenSigner mints and verifies HMAC-SHA256 signed bearer tokens of the
// form base64url(payload) + "." + base64url(signature).
type TokenSigner struct {
	secret []byte
}

// NewTokenSigner creates a TokenSigner with the given secret.
func NewTokenSigner(secret []byte) (*TokenSigner, error) {
	if len(secret) == 0 {
		return nil, errors.New("crypto: empty signing secret")
	}
	return &TokenSigner{secret: secret}, nil
}

// Mint creates a signed token for the identity and returns the opaque token
// string along with its unique token ID.
func (s *TokenSigner) Mint(identityID, name string, issuedAt time.Time) (token string, id string, err error) {
	payload := TokenPayload{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Name:       name,
		IssuedAt:   issuedAt.Unix(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("crypto: marshal payload: %w", err)
	}

	body := base64.RawURLEncoding.EncodeToString(data)
	return body + "." + s.sign(body), payload.ID, nil
}

// Verify checks the token's structure and signature and returns the decoded
// payload. It says nothing about revocation or expiry; those are persisted
// state and must be checked against the token row.
func (s *TokenSigner) Verify(token string) (TokenPayload, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || sig == "" {
		return TokenPayload{}, ErrBadToken
	}

	if !hmac.Equal([]byte(s.sign(body)), []byte(sig)) {
		return TokenPayload{}, ErrBadToken
	}

	data, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return TokenPayload{}, ErrBadToken
	}

	var payload TokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return TokenPayload{}, ErrBadToken
	}
	if payload.ID == "" || payload.IdentityID == "" {
		return TokenPayload{}, ErrBadToken
	}

	return payload, nil
}

// sign computes the base64url HMAC-SHA256 signature of body.
func (s *TokenSigner) sign(body string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
