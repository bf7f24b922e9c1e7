package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/commerce-admin-api/internal/models"
	"github.com/noah-isme/commerce-admin-api/pkg/response"
)

type sessionManager interface {
	ListSessions(ctx context.Context, userID, currentDeviceID string) ([]models.SessionView, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
	LogoutOthers(ctx context.Context, userID, currentDeviceID string) (int64, error)
}

// SessionHandler lets users inspect and revoke their own sessions.
type SessionHandler struct {
	sessions sessionManager
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessions sessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List godoc
// @Summary List sessions
// @Description Active sessions of the caller, most recently used first
// @Tags Sessions
// @Produce json
// @Param X-Device-ID header string false "Current device, used to flag the current session"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	deviceID, err := deviceIDFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	sessions, err := h.sessions.ListSessions(c.Request.Context(), identity.ID, deviceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"sessions": sessions})
}

// Delete godoc
// @Summary Delete session
// @Description Revoke one of the caller's sessions
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	if err := h.sessions.DeleteSession(c.Request.Context(), identity.ID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"success": true})
}

// DeleteOthers godoc
// @Summary Delete other sessions
// @Description Revoke every session of the caller except those on the current device
// @Tags Sessions
// @Produce json
// @Param X-Device-ID header string true "Current device"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /sessions/others [delete]
func (h *SessionHandler) DeleteOthers(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	deviceID, err := deviceIDFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	n, err := h.sessions.LogoutOthers(c.Request.Context(), identity.ID, deviceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, models.CountResponse{Success: true, Count: n})
}
