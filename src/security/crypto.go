package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var errCiphertextTooShort = errors.New("ciphertext too short")

// deriveKey stretches the configured passphrase into a 256-bit AES key. The
// salt is fixed: the key protects credentials in our own database, not
// user-chosen passwords, so per-record salts buy nothing here.
func deriveKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte("gridexecutor.credentials"), 4096, 32, sha256.New)
}

// EncryptString encrypts plain with AES-GCM under the configured key and
// returns base64(nonce || ciphertext).
func EncryptString(plain string) (string, error) {
	block, err := aes.NewCipher(deriveKey(GetConfig().ExchangeCRKey))
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString. Tampered or foreign-key ciphertexts
// fail authentication and return an error.
func DecryptString(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(GetConfig().ExchangeCRKey))
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}

	if len(sealed) < gcm.NonceSize() {
		return "", errCiphertextTooShort
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}
