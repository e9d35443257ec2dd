package security

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/leadcadencehq/leadcadence-backend/pkg/config"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidCiphertext signals a sealed blob too short to contain a nonce.
var ErrInvalidCiphertext = fmt.Errorf("invalid sealed payload")

// keyDerivationSalt pins key stretching so every worker derives the same AEAD
// key from the shared passphrase. The passphrase itself stays secret.
var keyDerivationSalt = []byte("leadcadence/app-password/v1")

// Sealer encrypts platform app-passwords before they touch the database.
// Passwords must round-trip because the connector needs the plaintext to open
// sessions, so hashing is not an option here.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives an XChaCha20-Poly1305 key from the configured secret. A
// 32-byte secret is used as-is; anything else is stretched with Argon2id.
func NewSealer(cfg config.SecurityConfig) (*Sealer, error) {
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("encryption key is required")
	}

	key := []byte(cfg.EncryptionKey)
	if len(key) != chacha20poly1305.KeySize {
		key = argon2.IDKey(
			key,
			keyDerivationSalt,
			clampUint32(cfg.ArgonTime, 1, 10),
			clampUint32(cfg.ArgonMemoryKB, 8, 512*1024),
			uint8(clampInt(cfg.ArgonParallelism, 1, 255)),
			chacha20poly1305.KeySize,
		)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("building aead: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts the plaintext and prepends the random nonce.
func (s *Sealer) Seal(plaintext string) ([]byte, error) {
	if plaintext == "" {
		return nil, fmt.Errorf("plaintext cannot be empty")
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(sealed []byte) (string, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) <= nonceSize {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("opening sealed payload: %w", err)
	}
	return string(plaintext), nil
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampUint32(value, min, max int) uint32 {
	return uint32(clampInt(value, min, max))
}
