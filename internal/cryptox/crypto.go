// Package cryptox implements the client-side crypto engine: key derivation
// from user credentials, AES-GCM protection of note fields, and content
// hashing for drift detection.
//
// All functions are stateless and safe for concurrent use.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/g1mliii/anchored/internal/common"
)

const (
	// AlgorithmAESGCM identifies the only field encryption scheme in use.
	AlgorithmAESGCM = "AES-GCM"

	keyIterations = 100_000
	keyLen        = 32
	ivLen         = 12
	saltLen       = 16
)

// EncryptedField is the at-rest form of a single protected note field.
type EncryptedField struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	Algorithm  string `json:"algorithm"`
}

// DeriveKey stretches a password-like secret and salt into a 256-bit AES key
// using PBKDF2 (100,000 iterations, SHA-256). Deterministic for the same
// inputs; the result is rederived each session and never persisted.
func DeriveKey(secret, salt []byte) []byte {
	return pbkdf2.Key(secret, salt, keyIterations, keyLen, sha256.New)
}

// NewSalt returns a fresh random 16-byte key derivation salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// EncryptField seals plaintext under key with AES-256-GCM. A fresh 96-bit IV
// is generated on every call; IV reuse under GCM breaks confidentiality, so
// fields never share one. Empty plaintext encrypts to an absent result.
func EncryptField(plaintext string, key []byte) (*EncryptedField, error) {
	if plaintext == "" {
		return nil, nil
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	return &EncryptedField{
		Ciphertext: aead.Seal(nil, iv, []byte(plaintext), nil),
		IV:         iv,
		Algorithm:  AlgorithmAESGCM,
	}, nil
}

// DecryptField reverses EncryptField. A nil field decrypts to the empty
// string. Wrong keys, corrupt ciphertext, and malformed records all fail
// with an error matching common.ErrDecryption; callers are expected to
// degrade the affected field rather than abort the whole note.
func DecryptField(f *EncryptedField, key []byte) (string, error) {
	if f == nil {
		return "", nil
	}
	if len(f.IV) == 0 || f.Algorithm != AlgorithmAESGCM {
		return "", fmt.Errorf("%w: malformed field record", common.ErrDecryption)
	}

	aead, err := newGCM(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}

	plaintext, err := aead.Open(nil, f.IV, f.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}

	return string(plaintext), nil
}

// HashContent returns a hex SHA-256 digest over the canonical
// content+title+JSON(tags) concatenation. Used for drift detection between
// local and server versions, not as a MAC.
func HashContent(title, content string, tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	encoded, _ := json.Marshal(tags)
	sum := sha256.Sum256([]byte(content + title + string(encoded)))
	return hex.EncodeToString(sum[:])
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
