package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/commerce-admin-api/internal/models"
	"github.com/noah-isme/commerce-admin-api/internal/service"
	"github.com/noah-isme/commerce-admin-api/pkg/middleware/requestid"
)

func TestRequestMetaPopulatesContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware(), RequestMeta())

	var meta models.RequestMeta
	var found bool
	r.GET("/me", func(c *gin.Context) {
		meta, found = service.RequestMetaFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me?x=1", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set(requestid.HeaderKey, "req-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, found)
	assert.Equal(t, "192.0.2.7", meta.IP)
	assert.Equal(t, "test-agent", meta.UserAgent)
	assert.Equal(t, "req-42", meta.RequestID)
	assert.Equal(t, http.MethodGet, meta.Method)
	assert.Equal(t, "/me", meta.URL)
	assert.False(t, meta.StartedAt.IsZero())
}
