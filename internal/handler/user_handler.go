package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/commerce-admin-api/internal/models"
	"github.com/noah-isme/commerce-admin-api/pkg/response"
)

type accountService interface {
	Me(ctx context.Context, identity *models.Identity) (*models.User, error)
	ListUserDevices(ctx context.Context, admin *models.Identity, userID string) ([]models.SessionView, error)
	ListUserActivity(ctx context.Context, admin *models.Identity, userID string) ([]models.ActivityLog, error)
}

// UserHandler serves profile and administrator views of users.
type UserHandler struct {
	service accountService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc accountService) *UserHandler {
	return &UserHandler{service: svc}
}

// Me godoc
// @Summary Get current user
// @Description Returns the authenticated user's profile
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /me [get]
func (h *UserHandler) Me(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	user, err := h.service.Me(c.Request.Context(), identity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user)
}

// Devices godoc
// @Summary List user devices
// @Description Sessions of a user in the administrator's tenant, newest first
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id}/devices [get]
func (h *UserHandler) Devices(c *gin.Context) {
	admin, ok := currentIdentity(c)
	if !ok {
		return
	}
	devices, err := h.service.ListUserDevices(c.Request.Context(), admin, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"devices": devices})
}

// Activity godoc
// @Summary List user activity
// @Description Latest activity entries of a user in the administrator's tenant
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id}/activity [get]
func (h *UserHandler) Activity(c *gin.Context) {
	admin, ok := currentIdentity(c)
	if !ok {
		return
	}
	entries, err := h.service.ListUserActivity(c.Request.Context(), admin, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"activity": entries})
}
