package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/commerce-admin-api/internal/auth"
	"github.com/noah-isme/commerce-admin-api/internal/models"
	"github.com/noah-isme/commerce-admin-api/internal/repository"
	appErrors "github.com/noah-isme/commerce-admin-api/pkg/errors"
)

type sessionUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type sessionStore interface {
	Create(ctx context.Context, session *models.Session) (*models.Session, int, error)
	FindByRefreshToken(ctx context.Context, token string) (*models.Session, error)
	Rotate(ctx context.Context, oldToken string, next *models.Session) (*models.Session, error)
	DeleteByID(ctx context.Context, sessionID, ownerUserID string) (int64, error)
	DeleteUserRefreshToken(ctx context.Context, userID, token string) (int64, error)
	DeleteForUserDevice(ctx context.Context, userID, deviceID string) (int64, error)
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	DeleteForUserExceptDevice(ctx context.Context, userID, keepDeviceID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	ListForUser(ctx context.Context, userID string) ([]models.Session, error)
}

type accessTokenSigner interface {
	Sign(userID, email string) (string, error)
	TTL() time.Duration
}

type refreshTokenMinter interface {
	Generate() (string, error)
	Hash(token string) string
	CheckRefreshTokenFormat(token string) error
}

type passwordVerifier interface {
	Verify(hash, password string) error
}

// SessionConfig defines refresh session behaviour.
type SessionConfig struct {
	RefreshTokenTTL time.Duration
}

// SessionService implements the login, refresh and logout lifecycle.
type SessionService struct {
	users     sessionUserRepository
	sessions  sessionStore
	tokens    accessTokenSigner
	refresh   refreshTokenMinter
	passwords passwordVerifier
	audit     AuditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    SessionConfig
	now       func() time.Time
}

// SessionDeps groups the collaborators of SessionService.
type SessionDeps struct {
	Users     sessionUserRepository
	Sessions  sessionStore
	Tokens    accessTokenSigner
	Refresh   refreshTokenMinter
	Passwords passwordVerifier
	Audit     AuditRecorder
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewSessionService constructs a SessionService.
func NewSessionService(deps SessionDeps, config SessionConfig) *SessionService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Audit == nil {
		deps.Audit = noopAudit{}
	}
	if config.RefreshTokenTTL <= 0 {
		config.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	return &SessionService{
		users:     deps.Users,
		sessions:  deps.Sessions,
		tokens:    deps.Tokens,
		refresh:   deps.Refresh,
		passwords: deps.Passwords,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
		config:    config,
		now:       time.Now,
	}
}

var errBadCredentials = appErrors.Clone(appErrors.ErrUnauthorized, "unauthorized")

// Login verifies credentials and opens a session for the device.
func (s *SessionService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordLogin(OutcomeInvalid)
			return nil, errBadCredentials
		}
		s.metrics.RecordLogin(OutcomeError)
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	if !user.HasPassword() {
		s.metrics.RecordLogin(OutcomeInvalid)
		return nil, errBadCredentials
	}
	if err := s.passwords.Verify(*user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.metrics.RecordLogin(OutcomeInvalid)
			return nil, errBadCredentials
		}
		s.metrics.RecordLogin(OutcomeError)
		s.logger.Error("password verification failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to verify password")
	}

	pair, session, evicted, err := s.openSession(ctx, user, req.DeviceID, req.IP, req.UserAgent)
	if err != nil {
		s.metrics.RecordLogin(OutcomeError)
		return nil, err
	}

	s.metrics.RecordLogin(OutcomeSuccess)
	s.metrics.RecordEviction(evicted)
	if evicted > 0 {
		s.logger.Info("evicted oldest sessions", zap.String("user_id", user.ID), zap.Int("count", evicted))
	}
	s.audit.Record(ctx, user.ID, models.ActionLoginUser, map[string]interface{}{
		"sessionId": session.ID,
		"evicted":   evicted,
	})

	return &models.LoginResult{Tokens: *pair, User: models.NewUserInfo(user), Evicted: evicted}, nil
}

func (s *SessionService) openSession(ctx context.Context, user *models.User, deviceID, ip, userAgent string) (*models.TokenPair, *models.Session, int, error) {
	accessToken, err := s.tokens.Sign(user.ID, user.Email)
	if err != nil {
		return nil, nil, 0, appErrors.Internal(err, "failed to create access token")
	}
	refreshToken, err := s.refresh.Generate()
	if err != nil {
		return nil, nil, 0, appErrors.Internal(err, "failed to create refresh token")
	}

	session, evicted, err := s.sessions.Create(ctx, s.newSession(user.ID, deviceID, refreshToken, ip, userAgent))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, 0, errBadCredentials
		}
		return nil, nil, 0, appErrors.Internal(err, "failed to persist session")
	}

	return s.pair(accessToken, refreshToken, session.ID), session, evicted, nil
}

func (s *SessionService) newSession(userID, deviceID, refreshToken, ip, userAgent string) *models.Session {
	return &models.Session{
		UserID:           userID,
		DeviceID:         deviceID,
		RefreshTokenHash: s.refresh.Hash(refreshToken),
		IP:               optionalString(ip),
		UserAgent:        optionalString(userAgent),
		ExpiresAt:        s.now().UTC().Add(s.config.RefreshTokenTTL),
	}
}

func (s *SessionService) pair(accessToken, refreshToken, sessionID string) *models.TokenPair {
	return &models.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresIn:  s.tokens.TTL(),
		RefreshExpiresIn: s.config.RefreshTokenTTL,
		SessionID:        sessionID,
	}
}

// Refresh redeems a refresh token presented from a device and rotates it.
// A token can be redeemed at most once; a device mismatch revokes the session.
func (s *SessionService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.TokenPair, error) {
	if req.RefreshToken == "" || s.refresh.CheckRefreshTokenFormat(req.RefreshToken) != nil {
		s.metrics.RecordRefresh(OutcomeInvalid)
		return nil, appErrors.ErrUnauthorized
	}

	session, err := s.sessions.FindByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.metrics.RecordRefresh(OutcomeInvalid)
			return nil, appErrors.ErrUnauthorized
		}
		s.metrics.RecordRefresh(OutcomeError)
		return nil, appErrors.Internal(err, "failed to load session")
	}

	if session.DeviceID != req.DeviceID {
		s.logger.Warn("refresh token presented from another device, possible token theft",
			zap.String("user_id", session.UserID),
			zap.String("session_id", session.ID),
			zap.String("ip", req.IP),
		)
		s.revoke(ctx, session, OutcomeDeviceMismatch)
		s.metrics.RecordRefresh(OutcomeDeviceMismatch)
		s.audit.Record(ctx, session.UserID, models.ActionDeviceMismatch, map[string]interface{}{"sessionId": session.ID})
		return nil, appErrors.ErrUnauthorized
	}

	if session.Expired(s.now()) {
		s.revoke(ctx, session, OutcomeExpired)
		s.metrics.RecordRefresh(OutcomeExpired)
		return nil, appErrors.ErrUnauthorized
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordRefresh(OutcomeInvalid)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		s.metrics.RecordRefresh(OutcomeError)
		return nil, appErrors.Internal(err, "failed to load user")
	}

	accessToken, err := s.tokens.Sign(user.ID, user.Email)
	if err != nil {
		s.metrics.RecordRefresh(OutcomeError)
		return nil, appErrors.Internal(err, "failed to create access token")
	}
	nextToken, err := s.refresh.Generate()
	if err != nil {
		s.metrics.RecordRefresh(OutcomeError)
		return nil, appErrors.Internal(err, "failed to create refresh token")
	}

	next, err := s.sessions.Rotate(ctx, req.RefreshToken, s.newSession(user.ID, session.DeviceID, nextToken, req.IP, req.UserAgent))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.logger.Warn("refresh token already redeemed",
				zap.String("user_id", user.ID),
				zap.String("session_id", session.ID),
			)
			s.metrics.RecordRefresh(OutcomeReplay)
			return nil, appErrors.ErrUnauthorized
		}
		s.metrics.RecordRefresh(OutcomeError)
		return nil, appErrors.Internal(err, "failed to rotate session")
	}

	s.metrics.RecordRefresh(OutcomeSuccess)
	s.audit.Record(ctx, user.ID, models.ActionRefreshToken, map[string]interface{}{"sessionId": next.ID})
	return s.pair(accessToken, nextToken, next.ID), nil
}

// revoke removes a session discovered to be unusable. Failures are logged;
// the caller is rejected either way.
func (s *SessionService) revoke(ctx context.Context, session *models.Session, reason string) {
	n, err := s.sessions.DeleteByID(ctx, session.ID, session.UserID)
	if err != nil {
		s.logger.Error("failed to revoke session",
			zap.String("session_id", session.ID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}
	s.metrics.RecordRevocation(reason, n)
}

// Logout ends the caller's session identified by refresh token and device.
// Either identifier may be empty; logging out twice is harmless.
func (s *SessionService) Logout(ctx context.Context, req models.LogoutRequest) error {
	if req.UserID == "" {
		return appErrors.ErrUnauthorized
	}

	var removed int64
	if req.RefreshToken != "" {
		n, err := s.sessions.DeleteUserRefreshToken(ctx, req.UserID, req.RefreshToken)
		if err != nil {
			return appErrors.Internal(err, "failed to delete session")
		}
		removed += n
	}
	if req.DeviceID != "" {
		n, err := s.sessions.DeleteForUserDevice(ctx, req.UserID, req.DeviceID)
		if err != nil {
			return appErrors.Internal(err, "failed to delete device session")
		}
		removed += n
	}

	s.metrics.RecordRevocation("logout", removed)
	s.audit.Record(ctx, req.UserID, models.ActionLogoutUser, nil)
	return nil
}

// LogoutAll ends every session of userID.
func (s *SessionService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to delete sessions")
	}
	s.metrics.RecordRevocation("logout_all", n)
	s.audit.Record(ctx, userID, models.ActionLogoutAllSessions, map[string]interface{}{"count": n})
	return n, nil
}

// LogoutOthers ends every session of userID except those on currentDeviceID.
func (s *SessionService) LogoutOthers(ctx context.Context, userID, currentDeviceID string) (int64, error) {
	if strings.TrimSpace(currentDeviceID) == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "device id required")
	}
	n, err := s.sessions.DeleteForUserExceptDevice(ctx, userID, currentDeviceID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to delete sessions")
	}
	s.metrics.RecordRevocation("logout_others", n)
	s.audit.Record(ctx, userID, models.ActionDeleteOtherSessions, map[string]interface{}{"count": n})
	return n, nil
}

// ListSessions returns the caller's active sessions, most recently used first.
// Expired sessions are removed instead of listed.
func (s *SessionService) ListSessions(ctx context.Context, userID, currentDeviceID string) ([]models.SessionView, error) {
	sessions, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list sessions")
	}

	now := s.now()
	views := make([]models.SessionView, 0, len(sessions))
	for i := range sessions {
		if sessions[i].Expired(now) {
			s.revoke(ctx, &sessions[i], OutcomeExpired)
			continue
		}
		views = append(views, models.NewSessionView(sessions[i], currentDeviceID))
	}

	s.audit.Record(ctx, userID, models.ActionViewSessions, nil)
	return views, nil
}

// DeleteSession removes one of the caller's sessions by id.
func (s *SessionService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "session id required")
	}
	n, err := s.sessions.DeleteByID(ctx, sessionID, userID)
	if err != nil {
		return appErrors.Internal(err, "failed to delete session")
	}
	if n == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	s.metrics.RecordRevocation("delete", n)
	s.audit.Record(ctx, userID, models.ActionDeleteSession, map[string]interface{}{"sessionId": sessionID})
	return nil
}

// SweepExpired deletes every expired session.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.RecordSweep(n)
	return n, nil
}

// RunSweeper calls SweepExpired every interval until ctx is cancelled.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Error("session sweep failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				s.logger.Info("removed expired sessions", zap.Int64("count", n))
			}
		}
	}
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, string, string, map[string]interface{}) {}
