package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	signer, err := NewTokenSigner([]byte("test-secret"))
	require.NoError(t, err)

	issued := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	token, id, err := signer.Mint("76561198000000001", "Dusty Hollow", issued)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, id)

	payload, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, payload.ID)
	assert.Equal(t, "76561198000000001", payload.IdentityID)
	assert.Equal(t, "Dusty Hollow", payload.Name)
	assert.Equal(t, issued.Unix(), payload.IssuedAt)
}

func TestMintUniqueTokenIDs(t *testing.T) {
	signer, err := NewTokenSigner([]byte("test-secret"))
	require.NoError(t, err)

	now := time.Now()
	_, id1, err := signer.Mint("id", "name", now)
	require.NoError(t, err)
	_, id2, err := signer.Mint("id", "name", now)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestVerifyRejectsTampering(t *testing.T) {
	signer, err := NewTokenSigner([]byte("test-secret"))
	require.NoError(t, err)

	token, _, err := signer.Mint("76561198000000001", "Dusty Hollow", time.Now())
	require.NoError(t, err)

	cases := map[string]string{
		"no separator":   strings.ReplaceAll(token, ".", ""),
		"empty body":     "." + strings.SplitN(token, ".", 2)[1],
		"empty sig":      strings.SplitN(token, ".", 2)[0] + ".",
		"flipped body":   "x" + token,
		"truncated sig":  token[:len(token)-2],
		"empty token":    "",
		"garbage":        "not-a-token",
		"invalid base64": "%%%." + strings.SplitN(token, ".", 2)[1],
	}
	for name, tampered := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := signer.Verify(tampered)
			assert.ErrorIs(t, err, ErrBadToken)
		})
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	a, err := NewTokenSigner([]byte("secret-a"))
	require.NoError(t, err)
	b, err := NewTokenSigner([]byte("secret-b"))
	require.NoError(t, err)

	token, _, err := a.Mint("id", "name", time.Now())
	require.NoError(t, err)

	_, err = b.Verify(token)
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestNewTokenSignerRejectsEmptySecret(t *testing.T) {
	_, err := NewTokenSigner(nil)
	assert.Error(t, err)
}
