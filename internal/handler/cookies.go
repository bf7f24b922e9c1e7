package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/commerce-admin-api/internal/models"
	"github.com/noah-isme/commerce-admin-api/internal/service"
	appErrors "github.com/noah-isme/commerce-admin-api/pkg/errors"
)

// Cookie and header names shared with browser and API clients.
const (
	AccessTokenCookie  = service.AccessTokenCookie
	RefreshTokenCookie = "refreshToken"
	DeviceIDCookie     = "deviceId"

	DeviceIDHeader     = "X-Device-ID"
	RefreshTokenHeader = "X-Refresh-Token"
)

// CookieConfig controls cookie attributes.
type CookieConfig struct {
	Secure bool
	Domain string
}

type cookieWriter struct {
	cfg CookieConfig
}

func (w cookieWriter) set(c *gin.Context, name, value string, maxAge time.Duration, httpOnly bool, sameSite http.SameSite) {
	seconds := int(maxAge / time.Second)
	if seconds <= 0 {
		seconds = -1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   w.cfg.Domain,
		MaxAge:   seconds,
		Secure:   w.cfg.Secure,
		HttpOnly: httpOnly,
		SameSite: sameSite,
	})
}

func (w cookieWriter) issue(c *gin.Context, tokens models.TokenPair, deviceID string) {
	w.set(c, AccessTokenCookie, tokens.AccessToken, tokens.AccessExpiresIn, true, http.SameSiteLaxMode)
	w.set(c, RefreshTokenCookie, tokens.RefreshToken, tokens.RefreshExpiresIn, true, http.SameSiteStrictMode)
	w.set(c, DeviceIDCookie, deviceID, tokens.RefreshExpiresIn, false, http.SameSiteLaxMode)
}

func (w cookieWriter) clear(c *gin.Context) {
	w.set(c, AccessTokenCookie, "", 0, true, http.SameSiteLaxMode)
	w.set(c, RefreshTokenCookie, "", 0, true, http.SameSiteStrictMode)
	w.set(c, DeviceIDCookie, "", 0, false, http.SameSiteLaxMode)
}

func cookieValue(c *gin.Context, name string) string {
	value, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return value
}

// refreshTokenFrom prefers the cookie over the fallback header.
func refreshTokenFrom(c *gin.Context) string {
	if token := cookieValue(c, RefreshTokenCookie); token != "" {
		return token
	}
	return strings.TrimSpace(c.GetHeader(RefreshTokenHeader))
}

// deviceIDFrom returns the device id from the header or cookie. Both may be
// sent, but then they must agree.
func deviceIDFrom(c *gin.Context) (string, error) {
	header := strings.TrimSpace(c.GetHeader(DeviceIDHeader))
	cookie := cookieValue(c, DeviceIDCookie)
	if header != "" && cookie != "" && header != cookie {
		return "", appErrors.ErrUnauthorized
	}
	if header != "" {
		return header, nil
	}
	return cookie, nil
}
