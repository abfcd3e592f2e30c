package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
)

// gcmFor derives a fixed-size AES-256 key from the configured secret.
func gcmFor(secret string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals a plaintext credential as base64(nonce || ciphertext).
func Encrypt(secret, value string) (string, error) {
	if value == "" {
		return value, nil
	}
	gcm, err := gcmFor(secret)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(value), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a stored credential. Values that do not decode or
// authenticate are treated as already-plaintext legacy entries and returned
// unchanged rather than erroring.
func Decrypt(secret, value string) string {
	if value == "" {
		return value
	}
	gcm, err := gcmFor(secret)
	if err != nil {
		return value
	}

	sealed, err := base64.URLEncoding.DecodeString(value)
	if err != nil || len(sealed) < gcm.NonceSize() {
		return value
	}
	plain, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		return value
	}
	return string(plain)
}
