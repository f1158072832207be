package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/cloo-solutions/discover/internal/domain"
)

const apiTokenPrefix = "dsc_"

// TokenAuthService accepts a single shared bearer token.
type TokenAuthService struct {
	hash [sha256.Size]byte
}

// NewTokenAuthService creates a validator for token. Only its hash is kept.
func NewTokenAuthService(token string) *TokenAuthService {
	return &TokenAuthService{hash: sha256.Sum256([]byte(token))}
}

// ValidateAPIKey returns the principal for a valid token.
func (s *TokenAuthService) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrInvalidAPIToken
	}

	got := sha256.Sum256([]byte(token))
	if subtle.ConstantTimeCompare(got[:], s.hash[:]) != 1 {
		return "", domain.ErrInvalidAPIToken
	}
	return "token:" + hex.EncodeToString(got[:4]), nil
}

// GenerateAPIToken returns a fresh random token suitable for DISCOVER_API_TOKEN.
func GenerateAPIToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return apiTokenPrefix + hex.EncodeToString(bytes), nil
}

// IsValidAPIToken reports whether token has the generated format.
func IsValidAPIToken(token string) bool {
	if !strings.HasPrefix(token, apiTokenPrefix) {
		return false
	}
	rest := strings.TrimPrefix(token, apiTokenPrefix)
	if len(rest) != 64 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}
