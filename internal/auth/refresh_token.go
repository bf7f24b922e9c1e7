package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// DefaultRefreshTokenBytes is the entropy of a refresh token (512 bits).
const DefaultRefreshTokenBytes = 64

// Bounds on the token size accepted at redemption. Tokens minted under any
// configured size in this range stay redeemable after the size changes.
const (
	MinRefreshTokenBytes = 16
	MaxRefreshTokenBytes = 256
)

// RefreshTokenGenerator mints opaque refresh tokens. Tokens carry no identity;
// they are only meaningful as a lookup key into the session store.
type RefreshTokenGenerator struct {
	size   int
	random io.Reader
}

// NewRefreshTokenGenerator returns a generator producing size random bytes per
// token. size <= 0 selects DefaultRefreshTokenBytes.
func NewRefreshTokenGenerator(size int) *RefreshTokenGenerator {
	if size <= 0 {
		size = DefaultRefreshTokenBytes
	}
	return &RefreshTokenGenerator{size: size, random: rand.Reader}
}

// Generate returns a new hex encoded token.
func (g *RefreshTokenGenerator) Generate() (string, error) {
	buf := make([]byte, g.size)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Hash returns the SHA-256 hex digest stored in place of the token.
func (g *RefreshTokenGenerator) Hash(token string) string {
	return HashRefreshToken(token)
}

// HashRefreshToken returns the SHA-256 hex digest of token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// EqualHash compares two token digests in constant time.
func EqualHash(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ErrMalformedRefreshToken reports a token that could never have been issued.
var ErrMalformedRefreshToken = errors.New("auth: malformed refresh token")

// CheckRefreshTokenFormat rejects values that are not hex encoded tokens
// between MinRefreshTokenBytes and MaxRefreshTokenBytes before they reach
// the store.
func (g *RefreshTokenGenerator) CheckRefreshTokenFormat(token string) error {
	if len(token) < MinRefreshTokenBytes*2 || len(token) > MaxRefreshTokenBytes*2 {
		return ErrMalformedRefreshToken
	}
	if _, err := hex.DecodeString(token); err != nil {
		return ErrMalformedRefreshToken
	}
	return nil
}
