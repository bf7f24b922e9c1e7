package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/commerce-admin-api/internal/models"
	appErrors "github.com/noah-isme/commerce-admin-api/pkg/errors"
	"github.com/noah-isme/commerce-admin-api/pkg/response"
)

// ContextUserKey is the gin context key storing the resolved *models.Identity.
const ContextUserKey = "currentUser"

type identityResolver interface {
	Resolve(ctx context.Context, r *http.Request) (*models.Identity, bool)
}

// RequireAuth protects routes by requiring a valid access token.
func RequireAuth(resolver identityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := resolver.Resolve(c.Request.Context(), c.Request)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		c.Set(ContextUserKey, identity)
		c.Next()
	}
}

// IdentityFromContext returns the identity stored by RequireAuth.
func IdentityFromContext(c *gin.Context) (*models.Identity, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*models.Identity)
	return identity, ok && identity != nil
}
