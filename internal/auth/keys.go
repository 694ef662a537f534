// Package auth implements API-key authentication for the MCP endpoint.
// Keys are configured as bcrypt hashes; the plain key never touches disk.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyPrefix distinguishes inspect-sync keys from other bearer tokens.
	APIKeyPrefix = "isk_"

	// apiKeyBytes is the random part of a generated key.
	apiKeyBytes = 32

	// APIKeyMinLen is the shortest key Validate will attempt to verify.
	APIKeyMinLen = len(APIKeyPrefix) + 32
)

// KeyHash pairs a user identity with the bcrypt hash of its key.
type KeyHash struct {
	UserID string
	Hash   string
}

type keyEntry struct {
	userID string
	hash   []byte
}

// Keyring validates presented API keys against configured bcrypt hashes.
// bcrypt is slow on purpose, so successful verifications are remembered
// by the SHA-256 of the key for the lifetime of the process.
type Keyring struct {
	keys []keyEntry

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]string // sha256(key) -> user id
}

// NewKeyring creates a keyring from configured hashes.
func NewKeyring(hashes []KeyHash) *Keyring {
	k := &Keyring{verified: make(map[[sha256.Size]byte]string)}
	for _, h := range hashes {
		k.keys = append(k.keys, keyEntry{userID: h.UserID, hash: []byte(h.Hash)})
	}

	return k
}

// Len returns the number of configured keys.
func (k *Keyring) Len() int {
	return len(k.keys)
}

// Validate returns the user id owning key, or "" if the key is unknown.
func (k *Keyring) Validate(key string) string {
	if !strings.HasPrefix(key, APIKeyPrefix) || len(key) < APIKeyMinLen {
		return ""
	}

	sum := sha256.Sum256([]byte(key))

	k.mu.RLock()
	userID, ok := k.verified[sum]
	k.mu.RUnlock()

	if ok {
		return userID
	}

	for _, e := range k.keys {
		if bcrypt.CompareHashAndPassword(e.hash, []byte(key)) != nil {
			continue
		}

		k.mu.Lock()
		k.verified[sum] = e.userID
		k.mu.Unlock()

		return e.userID
	}

	return ""
}

// GenerateKey returns a new random API key.
func GenerateKey() string {
	return APIKeyPrefix + RandomHex(apiKeyBytes)
}

// HashKey returns the bcrypt hash to put in API_KEYS for key.
func HashKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing key: %w", err)
	}

	return string(h), nil
}

// RandomHex generates a cryptographically random hex string of the given byte length.
func RandomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
