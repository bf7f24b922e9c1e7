package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/commerce-admin-api/internal/models"
	appErrors "github.com/noah-isme/commerce-admin-api/pkg/errors"
	"github.com/noah-isme/commerce-admin-api/pkg/response"
)

// RequireCapability rejects callers whose role does not grant capability.
// It must run after RequireAuth.
func RequireCapability(capability models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if !identity.Can(capability) {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		c.Next()
	}
}
