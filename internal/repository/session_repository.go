package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/commerce-admin-api/internal/auth"
	"github.com/noah-isme/commerce-admin-api/internal/models"
)

// DefaultMaxSessionsPerUser caps concurrent sessions when no limit is configured.
const DefaultMaxSessionsPerUser = 5

// ErrSessionNotFound is returned when no session matches a refresh token,
// including when a concurrent rotation consumed it first.
var ErrSessionNotFound = errors.New("session not found")

const sessionColumns = `id, user_id, refresh_token_hash, device_id, user_agent, ip, created_at, updated_at, expires_at`

// SessionRepository persists refresh-token sessions.
type SessionRepository struct {
	db          *sqlx.DB
	maxSessions int
	now         func() time.Time
}

// NewSessionRepository creates a SessionRepository enforcing maxPerUser
// concurrent sessions per user.
func NewSessionRepository(db *sqlx.DB, maxPerUser int) *SessionRepository {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxSessionsPerUser
	}
	return &SessionRepository{db: db, maxSessions: maxPerUser, now: time.Now}
}

func (r *SessionRepository) prepare(session *models.Session) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
}

const insertSessionQuery = `INSERT INTO sessions (` + sessionColumns + `) VALUES (:id, :user_id, :refresh_token_hash, :device_id, :user_agent, :ip, :created_at, :updated_at, :expires_at)`

// Create stores session after evicting the owner's oldest sessions so that at
// most maxPerUser remain. The owner row is locked for the duration, which
// serialises concurrent logins of the same user.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (created *models.Session, evicted int, err error) {
	r.prepare(session)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin session transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var ownerID string
	if err = tx.GetContext(ctx, &ownerID, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, session.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("lock session owner: %w", err)
	}

	var existing []string
	if err = tx.SelectContext(ctx, &existing, `SELECT id FROM sessions WHERE user_id = $1 ORDER BY created_at ASC, id ASC`, session.UserID); err != nil {
		return nil, 0, fmt.Errorf("list sessions for eviction: %w", err)
	}

	if overflow := len(existing) - r.maxSessions + 1; overflow > 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ANY($1)`, pq.Array(existing[:overflow])); err != nil {
			return nil, 0, fmt.Errorf("evict oldest sessions: %w", err)
		}
		evicted = overflow
	}

	if _, err = tx.NamedExecContext(ctx, insertSessionQuery, session); err != nil {
		return nil, 0, fmt.Errorf("insert session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit session: %w", err)
	}
	return session, evicted, nil
}

// FindByRefreshToken returns the session whose stored hash matches token.
func (r *SessionRepository) FindByRefreshToken(ctx context.Context, token string) (*models.Session, error) {
	hash := auth.HashRefreshToken(token)
	var session models.Session
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token_hash = $1 LIMIT 1`
	if err := r.db.GetContext(ctx, &session, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session by refresh token: %w", err)
	}
	if !auth.EqualHash(session.RefreshTokenHash, hash) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// Rotate consumes the session identified by oldToken and stores next in one
// transaction. Exactly one of several concurrent callers presenting the same
// token succeeds; the others get ErrSessionNotFound.
func (r *SessionRepository) Rotate(ctx context.Context, oldToken string, next *models.Session) (rotated *models.Session, err error) {
	r.prepare(next)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rotation transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var consumedID string
	err = tx.GetContext(ctx, &consumedID, `DELETE FROM sessions WHERE refresh_token_hash = $1 RETURNING id`, auth.HashRefreshToken(oldToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("consume session: %w", err)
	}

	if _, err = tx.NamedExecContext(ctx, insertSessionQuery, next); err != nil {
		return nil, fmt.Errorf("insert rotated session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rotation: %w", err)
	}
	return next, nil
}

func (r *SessionRepository) execCount(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows: %w", op, err)
	}
	return n, nil
}

// DeleteByRefreshToken removes the session holding token. Deleting an unknown
// token is not an error.
func (r *SessionRepository) DeleteByRefreshToken(ctx context.Context, token string) (int64, error) {
	return r.execCount(ctx, "delete session by refresh token",
		`DELETE FROM sessions WHERE refresh_token_hash = $1`, auth.HashRefreshToken(token))
}

// DeleteUserRefreshToken removes the session holding token only if it belongs to userID.
func (r *SessionRepository) DeleteUserRefreshToken(ctx context.Context, userID, token string) (int64, error) {
	return r.execCount(ctx, "delete user session by refresh token",
		`DELETE FROM sessions WHERE user_id = $1 AND refresh_token_hash = $2`, userID, auth.HashRefreshToken(token))
}

// DeleteAllForUser removes every session of userID.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	return r.execCount(ctx, "delete all sessions", `DELETE FROM sessions WHERE user_id = $1`, userID)
}

// DeleteForUserExceptDevice removes every session of userID not bound to keepDeviceID.
func (r *SessionRepository) DeleteForUserExceptDevice(ctx context.Context, userID, keepDeviceID string) (int64, error) {
	return r.execCount(ctx, "delete other sessions",
		`DELETE FROM sessions WHERE user_id = $1 AND device_id <> $2`, userID, keepDeviceID)
}

// DeleteForUserDevice removes the sessions of userID bound to deviceID.
func (r *SessionRepository) DeleteForUserDevice(ctx context.Context, userID, deviceID string) (int64, error) {
	return r.execCount(ctx, "delete device sessions",
		`DELETE FROM sessions WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
}

// DeleteByID removes a session only if ownerUserID owns it.
func (r *SessionRepository) DeleteByID(ctx context.Context, sessionID, ownerUserID string) (int64, error) {
	return r.execCount(ctx, "delete session",
		`DELETE FROM sessions WHERE id = $1 AND user_id = $2`, sessionID, ownerUserID)
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.execCount(ctx, "delete expired sessions", `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
}

// ListForUser returns the sessions of userID, most recently active first.
func (r *SessionRepository) ListForUser(ctx context.Context, userID string) ([]models.Session, error) {
	return r.list(ctx, userID, "updated_at DESC")
}

// ListForUserByCreation returns the sessions of userID, newest first.
func (r *SessionRepository) ListForUserByCreation(ctx context.Context, userID string) ([]models.Session, error) {
	return r.list(ctx, userID, "created_at DESC")
}

func (r *SessionRepository) list(ctx context.Context, userID, orderBy string) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE user_id = $1 ORDER BY %s`, sessionColumns, orderBy)
	sessions := []models.Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}
