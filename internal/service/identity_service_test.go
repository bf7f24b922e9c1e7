package service

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/commerce-admin-api/internal/auth"
	"github.com/noah-isme/commerce-admin-api/internal/models"
)

type mockIdentityRepo struct {
	identities map[string]*models.Identity
	calls      int
}

func (m *mockIdentityRepo) FindIdentityByID(ctx context.Context, id string) (*models.Identity, error) {
	m.calls++
	if identity, ok := m.identities[id]; ok {
		return identity, nil
	}
	return nil, sql.ErrNoRows
}

func TestIdentityServiceResolve(t *testing.T) {
	codec, err := auth.NewTokenCodec("identity-secret", time.Hour)
	require.NoError(t, err)
	repo := &mockIdentityRepo{identities: map[string]*models.Identity{
		"user-1": {ID: "user-1", Email: "buyer@example.com", Role: models.RoleManager, TenantID: "acme"},
		"user-2": {ID: "user-2", Email: "legacy@example.com", Role: models.Role("SUPERUSER"), TenantID: "acme"},
	}}
	svc := NewIdentityService(codec, repo, nil)

	token, err := codec.Sign("user-1", "buyer@example.com")
	require.NoError(t, err)

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
		identity, ok := svc.Resolve(context.Background(), req)
		require.True(t, ok)
		assert.Equal(t, models.RoleManager, identity.Role)
		assert.Equal(t, "acme", identity.TenantID)
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		_, ok := svc.Resolve(context.Background(), req)
		assert.True(t, ok)
	})

	t.Run("missing token", func(t *testing.T) {
		_, ok := svc.Resolve(context.Background(), httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.False(t, ok)
	})

	t.Run("tampered token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token+"x")
		before := repo.calls
		_, ok := svc.Resolve(context.Background(), req)
		assert.False(t, ok)
		assert.Equal(t, before, repo.calls, "invalid tokens never reach the store")
	})

	t.Run("deleted user", func(t *testing.T) {
		orphan, err := codec.Sign("user-404", "gone@example.com")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+orphan)
		_, ok := svc.Resolve(context.Background(), req)
		assert.False(t, ok)
	})

	t.Run("unknown role", func(t *testing.T) {
		legacy, err := codec.Sign("user-2", "legacy@example.com")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+legacy)
		_, ok := svc.Resolve(context.Background(), req)
		assert.False(t, ok)
	})
}

func TestBearerTokenPrefersCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer header-token")
	assert.Equal(t, "header-token", BearerToken(req))

	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", BearerToken(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, BearerToken(req))
}
