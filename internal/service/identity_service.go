package service

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/commerce-admin-api/internal/auth"
	"github.com/noah-isme/commerce-admin-api/internal/models"
)

// AccessTokenCookie carries the access token for browser clients.
const AccessTokenCookie = "token"

type identityRepository interface {
	FindIdentityByID(ctx context.Context, id string) (*models.Identity, error)
}

type accessTokenVerifier interface {
	Verify(token string) (*auth.AccessClaims, error)
}

// IdentityService resolves the caller of a request from its access token.
// It never consults the session table.
type IdentityService struct {
	tokens accessTokenVerifier
	users  identityRepository
	logger *zap.Logger
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(tokens accessTokenVerifier, users identityRepository, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{tokens: tokens, users: users, logger: logger}
}

// Resolve returns the identity behind r. Any failure, including a deleted
// user or a store error, yields false.
func (s *IdentityService) Resolve(ctx context.Context, r *http.Request) (*models.Identity, bool) {
	token := BearerToken(r)
	if token == "" {
		return nil, false
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, false
	}
	identity, err := s.users.FindIdentityByID(ctx, claims.UserID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("identity lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
		}
		return nil, false
	}
	if !identity.Role.Valid() {
		s.logger.Warn("user has unknown role", zap.String("user_id", identity.ID), zap.String("role", string(identity.Role)))
		return nil, false
	}
	return identity, true
}

// BearerToken extracts the access token from the token cookie, falling back
// to an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
