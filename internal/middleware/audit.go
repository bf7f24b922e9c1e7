package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/commerce-admin-api/internal/models"
	"github.com/noah-isme/commerce-admin-api/internal/service"
	"github.com/noah-isme/commerce-admin-api/pkg/middleware/requestid"
)

// RequestMeta stores client and request details on the request context so
// activity entries recorded deeper in the stack can reference them.
func RequestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := models.RequestMeta{
			IP:        c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
			RequestID: requestid.Value(c),
			Method:    c.Request.Method,
			URL:       c.Request.URL.Path,
			StartedAt: time.Now(),
		}
		c.Request = c.Request.WithContext(service.ContextWithRequestMeta(c.Request.Context(), meta))
		c.Next()
	}
}
