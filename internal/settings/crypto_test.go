package settings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-very-long-test-secret-key-for-encryption-testing"

func TestEncryptor_EncryptDecrypt(t *testing.T) {
	encryptor, err := NewEncryptor(testSecret)
	require.NoError(t, err)
	require.True(t, encryptor.Enabled())

	testCases := []struct {
		name      string
		plaintext string
	}{
		{name: "token", plaintext: "1234567890-AbCdEfGhIjKlMnOpQrStUvWxYz"},
		{name: "empty string", plaintext: ""},
		{name: "unicode text", plaintext: "Hello 世界 🌍"},
		{name: "special characters", plaintext: "!@#$%^&*()_+-=[]{}|;':\",./<>?"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ciphertext, err := encryptor.Encrypt(tc.plaintext)
			require.NoError(t, err)

			if tc.plaintext == "" {
				assert.Equal(t, "", ciphertext)
				return
			}

			assert.NotEqual(t, tc.plaintext, ciphertext)
			assert.True(t, strings.HasPrefix(ciphertext, encryptedPrefix))

			decrypted, err := encryptor.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, decrypted)
		})
	}
}

func TestEncryptor_RandomNonce(t *testing.T) {
	encryptor, err := NewEncryptor(testSecret)
	require.NoError(t, err)

	c1, err := encryptor.Encrypt("token")
	require.NoError(t, err)
	c2, err := encryptor.Encrypt("token")
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2, "Same plaintext should produce different ciphertexts due to random nonces")
}

func TestEncryptor_Disabled(t *testing.T) {
	encryptor, err := NewEncryptor("")
	require.NoError(t, err)
	assert.False(t, encryptor.Enabled())

	out, err := encryptor.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	enabled, err := NewEncryptor(testSecret)
	require.NoError(t, err)
	sealed, err := enabled.Encrypt("plain")
	require.NoError(t, err)

	_, err = encryptor.Decrypt(sealed)
	assert.Error(t, err)
}

func TestEncryptor_PlaintextPassesThrough(t *testing.T) {
	encryptor, err := NewEncryptor(testSecret)
	require.NoError(t, err)

	out, err := encryptor.Decrypt("stored-before-encryption")
	require.NoError(t, err)
	assert.Equal(t, "stored-before-encryption", out)
}

func TestEncryptor_InvalidInput(t *testing.T) {
	encryptor, err := NewEncryptor(testSecret)
	require.NoError(t, err)

	_, err = encryptor.Decrypt(encryptedPrefix + "not base64!")
	assert.Error(t, err)

	_, err = encryptor.Decrypt(encryptedPrefix + "c2hvcnQ=")
	assert.Error(t, err)

	other, err := NewEncryptor(strings.Repeat("x", 40))
	require.NoError(t, err)
	sealed, err := other.Encrypt("secret")
	require.NoError(t, err)
	_, err = encryptor.Decrypt(sealed)
	assert.Error(t, err)
}

func TestNewEncryptor_ShortSecret(t *testing.T) {
	_, err := NewEncryptor("short")
	assert.Error(t, err)
}

func TestNewEncryptorFromEnv(t *testing.T) {
	t.Setenv(EnvEnableEncryption, "")
	encryptor, err := NewEncryptorFromEnv()
	require.NoError(t, err)
	assert.False(t, encryptor.Enabled())

	t.Setenv(EnvEnableEncryption, "true")
	t.Setenv(EnvEncryptionSecret, "")
	_, err = NewEncryptorFromEnv()
	assert.Error(t, err)

	t.Setenv(EnvEncryptionSecret, testSecret)
	encryptor, err = NewEncryptorFromEnv()
	require.NoError(t, err)
	assert.True(t, encryptor.Enabled())
}
