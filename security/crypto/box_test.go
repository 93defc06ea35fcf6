package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.True(t, ValidatePair(kp.PublicKey, kp.PrivateKey))

	sealed, err := Encrypt(kp.PublicKey, "postgres://user:pass@db/app")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "pass@db")

	opened, err := Decrypt(kp.PrivateKey, sealed)
	require.NoError(t, err)
	assert.Equal(t, "postgres://user:pass@db/app", opened)
}

func TestDecryptWithOtherKey(t *testing.T) {
	a, err := GenerateKeyPair()
	require.NoError(t, err)
	b, err := GenerateKeyPair()
	require.NoError(t, err)

	sealed, err := Encrypt(a.PublicKey, "value")
	require.NoError(t, err)

	_, err = Decrypt(b.PrivateKey, sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
	assert.False(t, ValidatePair(a.PublicKey, b.PrivateKey))
}

func TestInvalidInput(t *testing.T) {
	_, err := Encrypt("short", "value")
	assert.ErrorIs(t, err, ErrInvalidKey)

	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	_, err = Decrypt(kp.PrivateKey, "%%%")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}
