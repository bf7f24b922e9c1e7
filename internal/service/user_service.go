package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/commerce-admin-api/internal/models"
	"github.com/noah-isme/commerce-admin-api/internal/repository"
	appErrors "github.com/noah-isme/commerce-admin-api/pkg/errors"
)

// DefaultTenantID is assigned to self-registered accounts.
const DefaultTenantID = "default"

const activityPageSize = 50

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsInTenant(ctx context.Context, id, tenantID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
}

type deviceLister interface {
	ListForUserByCreation(ctx context.Context, userID string) ([]models.Session, error)
}

type activityLister interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error)
}

type passwordHasher interface {
	Hash(password string) (string, error)
}

// UserService handles account registration and profile views.
type UserService struct {
	repo      userRepository
	devices   deviceLister
	activity  activityLister
	hasher    passwordHasher
	audit     AuditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// UserDeps groups the collaborators of UserService.
type UserDeps struct {
	Users     userRepository
	Devices   deviceLister
	Activity  activityLister
	Hasher    passwordHasher
	Audit     AuditRecorder
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(deps UserDeps) *UserService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Audit == nil {
		deps.Audit = noopAudit{}
	}
	return &UserService{
		repo:      deps.Users,
		devices:   deps.Devices,
		activity:  deps.Activity,
		hasher:    deps.Hasher,
		audit:     deps.Audit,
		validator: deps.Validator,
		logger:    deps.Logger,
	}
}

// Register creates a password account with the USER role.
func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: &passwordHash,
		Role:         models.RoleUser,
		TenantID:     DefaultTenantID,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Internal(err, "failed to create user")
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	s.audit.Record(ctx, user.ID, models.ActionRegisterUser, map[string]interface{}{"email": user.Email})
	return user, nil
}

// Me returns the full profile of the caller.
func (s *UserService) Me(ctx context.Context, identity *models.Identity) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	s.audit.Record(ctx, identity.ID, models.ActionViewMe, nil)
	return user, nil
}

// ListUserDevices returns the sessions of userID, newest first. The target
// must share the administrator's tenant.
func (s *UserService) ListUserDevices(ctx context.Context, admin *models.Identity, userID string) ([]models.SessionView, error) {
	if err := s.ensureSameTenant(ctx, admin, userID); err != nil {
		return nil, err
	}
	sessions, err := s.devices.ListForUserByCreation(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list devices")
	}
	views := make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, models.NewSessionView(session, ""))
	}
	s.audit.Record(ctx, admin.ID, models.ActionViewUserDevices, map[string]interface{}{"targetUserId": userID})
	return views, nil
}

// ListUserActivity returns the latest activity entries of userID.
func (s *UserService) ListUserActivity(ctx context.Context, admin *models.Identity, userID string) ([]models.ActivityLog, error) {
	if err := s.ensureSameTenant(ctx, admin, userID); err != nil {
		return nil, err
	}
	entries, err := s.activity.ListForUser(ctx, userID, activityPageSize)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list activity")
	}
	s.audit.Record(ctx, admin.ID, models.ActionViewUserActivity, map[string]interface{}{"targetUserId": userID})
	return entries, nil
}

func (s *UserService) ensureSameTenant(ctx context.Context, admin *models.Identity, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "user id required")
	}
	ok, err := s.repo.ExistsInTenant(ctx, userID, admin.TenantID)
	if err != nil {
		return appErrors.Internal(err, "failed to load user")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return nil
}
