package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// accessTokenBytes is the entropy of a raw access token.
const accessTokenBytes = 32

// TokenHasher derives the stored form of an access token with keyed
// BLAKE2b-256.  Only the hash is persisted; the raw token lives in the
// access link.
type TokenHasher struct {
	key []byte
}

// NewTokenHasher validates key (at most 64 bytes; empty means unkeyed).
func NewTokenHasher(key string) (*TokenHasher, error) {
	if _, err := blake2b.New256([]byte(key)); err != nil {
		return nil, fmt.Errorf("token hash key: %w", err)
	}
	return &TokenHasher{key: []byte(key)}, nil
}

// Hash returns the hex digest of raw.
func (h *TokenHasher) Hash(raw string) string {
	d, _ := blake2b.New256(h.key) // key length checked in NewTokenHasher
	d.Write([]byte(raw))
	return hex.EncodeToString(d.Sum(nil))
}

func newRawToken() (string, error) {
	buf := make([]byte, accessTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
