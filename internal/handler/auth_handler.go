package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/commerce-admin-api/internal/models"
	appErrors "github.com/noah-isme/commerce-admin-api/pkg/errors"
	"github.com/noah-isme/commerce-admin-api/pkg/response"
)

type sessionLifecycle interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error)
	Refresh(ctx context.Context, req models.RefreshRequest) (*models.TokenPair, error)
	Logout(ctx context.Context, req models.LogoutRequest) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
}

type registrar interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
}

// AuthHandler wires HTTP endpoints to the session lifecycle.
type AuthHandler struct {
	sessions sessionLifecycle
	users    registrar
	cookies  cookieWriter
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(sessions sessionLifecycle, users registrar, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{sessions: sessions, users: users, cookies: cookieWriter{cfg: cookies}}
}

// Register godoc
// @Summary Register account
// @Description Create a password account with the USER role
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	user, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, user)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by email and password from a device. Tokens are returned as cookies.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	result, err := h.sessions.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.cookies.issue(c, result.Tokens, req.DeviceID)
	response.OK(c, models.LoginResponse{Success: true, User: result.User})
}

// Refresh godoc
// @Summary Refresh access token
// @Description Redeem the refresh token for a new token pair. The token comes from the refreshToken cookie or X-Refresh-Token header; the device from X-Device-ID or the deviceId cookie.
// @Tags Authentication
// @Produce json
// @Param X-Device-ID header string false "Device identifier"
// @Param X-Refresh-Token header string false "Refresh token"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	token := refreshTokenFrom(c)
	deviceID, err := deviceIDFrom(c)
	if err != nil || token == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	pair, err := h.sessions.Refresh(c.Request.Context(), models.RefreshRequest{
		RefreshToken: token,
		DeviceID:     deviceID,
		IP:           c.ClientIP(),
		UserAgent:    c.GetHeader("User-Agent"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.cookies.issue(c, *pair, deviceID)
	response.OK(c, models.RefreshResponse{Success: true, AccessToken: pair.AccessToken})
}

// Logout godoc
// @Summary Logout current session
// @Description Delete the caller's session for this refresh token and device, and clear auth cookies
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [delete]
func (h *AuthHandler) Logout(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	deviceID, err := deviceIDFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.sessions.Logout(c.Request.Context(), models.LogoutRequest{
		UserID:       identity.ID,
		RefreshToken: refreshTokenFrom(c),
		DeviceID:     deviceID,
	}); err != nil {
		response.Error(c, err)
		return
	}

	h.cookies.clear(c)
	response.OK(c, gin.H{"success": true})
}

// LogoutAll godoc
// @Summary Logout everywhere
// @Description Delete every session of the caller and clear auth cookies
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout-all [delete]
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	n, err := h.sessions.LogoutAll(c.Request.Context(), identity.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.cookies.clear(c)
	response.OK(c, models.CountResponse{Success: true, Count: n})
}
