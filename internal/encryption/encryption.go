package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// Service encrypts the contact fields of the booking-time patient
// snapshot before they reach the store. AES-256-GCM, key from the
// APPOINTMENT_ENCRYPTION_KEY environment variable (64 hex chars) or a
// random per-process key when unset.
type Service interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// cipher.AEAD is safe for concurrent use, so the service carries no
// locking.
type service struct {
	gcm cipher.AEAD
}

func NewService() (Service, error) {
	key, err := loadKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &service{gcm: gcm}, nil
}

func (s *service) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := s.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *service) Decrypt(encodedCiphertext string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encodedCiphertext)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < s.gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:s.gcm.NonceSize()]
	ciphertext = ciphertext[s.gcm.NonceSize():]

	return s.gcm.Open(nil, nonce, ciphertext, nil)
}

func loadKey() ([]byte, error) {
	if envKey := os.Getenv("APPOINTMENT_ENCRYPTION_KEY"); envKey != "" {
		key, err := hex.DecodeString(envKey)
		if err != nil {
			return nil, fmt.Errorf("APPOINTMENT_ENCRYPTION_KEY must be a valid hex string: %w", err)
		}
		if len(key) != 32 {
			return nil, errors.New("APPOINTMENT_ENCRYPTION_KEY must be exactly 32 bytes (64 hex characters) for AES-256")
		}
		return key, nil
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
