package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/commerce-admin-api/internal/middleware"
	"github.com/noah-isme/commerce-admin-api/internal/models"
	appErrors "github.com/noah-isme/commerce-admin-api/pkg/errors"
	"github.com/noah-isme/commerce-admin-api/pkg/response"
)

// currentIdentity writes a 401 and returns false when no identity is attached.
func currentIdentity(c *gin.Context) (*models.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return identity, true
}
