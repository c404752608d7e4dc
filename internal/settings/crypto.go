package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"dailypost/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

// Environment switches for credential encryption
const (
	EnvEnableEncryption = "DAILYPOST_ENABLE_ENCRYPTION"
	EnvEncryptionSecret = "DAILYPOST_ENCRYPTION_SECRET"
)

// encryptedPrefix marks values written by an enabled encryptor, so values
// stored before encryption was switched on still read back as plaintext.
const encryptedPrefix = "enc:v1:"

// Encryptor seals publisher credentials before they reach the store. A zero
// Encryptor passes values through unchanged.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor derives an AES-GCM key from secret. An empty secret disables
// encryption.
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return &Encryptor{}, nil
	}

	if len(secret) < constants.MinEncryptionSecret {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", constants.MinEncryptionSecret)
	}

	key := pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt), constants.EncryptionIterations, constants.EncryptionKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// NewEncryptorFromEnv builds the encryptor described by the environment
func NewEncryptorFromEnv() (*Encryptor, error) {
	if os.Getenv(EnvEnableEncryption) != "true" {
		return &Encryptor{}, nil
	}

	secret := os.Getenv(EnvEncryptionSecret)
	if secret == "" {
		return nil, fmt.Errorf("%s environment variable is required when encryption is enabled", EnvEncryptionSecret)
	}
	return NewEncryptor(secret)
}

// Enabled reports whether values are actually encrypted
func (e *Encryptor) Enabled() bool {
	return e != nil && e.gcm != nil
}

func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !e.Enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, constants.EncryptionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	// nonce is stored in front of the ciphertext
	result := append(nonce, sealed...)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(result), nil
}

func (e *Encryptor) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return value, nil
	}
	if !e.Enabled() {
		return "", fmt.Errorf("value is encrypted but no encryption secret is configured")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	if len(data) < constants.EncryptionNonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:constants.EncryptionNonceSize], data[constants.EncryptionNonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}
