package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecret(t *testing.T) {
	blob, err := EncryptSecret([]byte("the-signing-secret"), "correct horse")
	require.NoError(t, err)

	secret, err := DecryptSecret(blob, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, []byte("the-signing-secret"), secret)
}

func TestDecryptSecretWrongPassword(t *testing.T) {
	blob, err := EncryptSecret([]byte("the-signing-secret"), "correct horse")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "battery staple")
	assert.Error(t, err)
}

func TestLoadSecretPrefersRaw(t *testing.T) {
	secret, err := LoadSecret(SecretConfig{RawSecret: "raw-wins"})
	require.NoError(t, err)
	assert.Equal(t, []byte("raw-wins"), secret)
}

func TestLoadSecretFromFile(t *testing.T) {
	blob, err := EncryptSecret([]byte("file-secret"), "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	secret, err := LoadSecret(SecretConfig{
		EncryptedSecretPath: path,
		Password:            "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("file-secret"), secret)
}

func TestLoadSecretUnconfigured(t *testing.T) {
	_, err := LoadSecret(SecretConfig{})
	assert.Error(t, err)
}
