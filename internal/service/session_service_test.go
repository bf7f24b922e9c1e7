package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/commerce-admin-api/internal/auth"
	"github.com/noah-isme/commerce-admin-api/internal/models"
	"github.com/noah-isme/commerce-admin-api/internal/repository"
	appErrors "github.com/noah-isme/commerce-admin-api/pkg/errors"
)

const (
	deviceOne = "2f1b7c3e-8a9d-4e5f-9a1b-1c2d3e4f5a6b"
	deviceTwo = "7d6c5b4a-3e2f-4a1b-8c9d-0e1f2a3b4c5d"
)

type memUsers struct {
	users       map[string]*models.User
	findByIDErr error
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

// memSessions mirrors SessionRepository semantics under a single mutex.
type memSessions struct {
	mu        sync.Mutex
	byHash    map[string]*models.Session
	max       int
	seq       int
	base      time.Time
	rotateErr error
	findErr   error
}

func newMemSessions() *memSessions {
	return &memSessions{
		byHash: map[string]*models.Session{},
		max:    repository.DefaultMaxSessionsPerUser,
		base:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memSessions) stamp(s *models.Session) {
	m.seq++
	s.ID = fmt.Sprintf("session-%d", m.seq)
	s.CreatedAt = m.base.Add(time.Duration(m.seq) * time.Second)
	s.UpdatedAt = s.CreatedAt
}

func (m *memSessions) forUser(userID string) []*models.Session {
	var out []*models.Session
	for _, s := range m.byHash {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memSessions) Create(ctx context.Context, session *models.Session) (*models.Session, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.forUser(session.UserID)
	evicted := 0
	for len(existing)-evicted >= m.max {
		delete(m.byHash, existing[evicted].RefreshTokenHash)
		evicted++
	}
	m.stamp(session)
	cp := *session
	m.byHash[session.RefreshTokenHash] = &cp
	return session, evicted, nil
}

func (m *memSessions) FindByRefreshToken(ctx context.Context, token string) (*models.Session, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byHash[auth.HashRefreshToken(token)]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) Rotate(ctx context.Context, oldToken string, next *models.Session) (*models.Session, error) {
	if m.rotateErr != nil {
		return nil, m.rotateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	hash := auth.HashRefreshToken(oldToken)
	if _, ok := m.byHash[hash]; !ok {
		return nil, repository.ErrSessionNotFound
	}
	delete(m.byHash, hash)
	m.stamp(next)
	cp := *next
	m.byHash[next.RefreshTokenHash] = &cp
	return next, nil
}

func (m *memSessions) deleteWhere(match func(*models.Session) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, s := range m.byHash {
		if match(s) {
			delete(m.byHash, hash)
			n++
		}
	}
	return n
}

func (m *memSessions) DeleteByID(ctx context.Context, sessionID, ownerUserID string) (int64, error) {
	return m.deleteWhere(func(s *models.Session) bool { return s.ID == sessionID && s.UserID == ownerUserID }), nil
}

func (m *memSessions) DeleteUserRefreshToken(ctx context.Context, userID, token string) (int64, error) {
	hash := auth.HashRefreshToken(token)
	return m.deleteWhere(func(s *models.Session) bool { return s.UserID == userID && s.RefreshTokenHash == hash }), nil
}

func (m *memSessions) DeleteForUserDevice(ctx context.Context, userID, deviceID string) (int64, error) {
	return m.deleteWhere(func(s *models.Session) bool { return s.UserID == userID && s.DeviceID == deviceID }), nil
}

func (m *memSessions) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	return m.deleteWhere(func(s *models.Session) bool { return s.UserID == userID }), nil
}

func (m *memSessions) DeleteForUserExceptDevice(ctx context.Context, userID, keepDeviceID string) (int64, error) {
	return m.deleteWhere(func(s *models.Session) bool { return s.UserID == userID && s.DeviceID != keepDeviceID }), nil
}

func (m *memSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.deleteWhere(func(s *models.Session) bool { return s.Expired(now) }), nil
}

func (m *memSessions) ListForUser(ctx context.Context, userID string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := m.forUser(userID)
	out := make([]models.Session, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		out = append(out, *sessions[i])
	}
	return out, nil
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAudit) Record(ctx context.Context, userID, action string, meta map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

type sessionFixture struct {
	svc      *SessionService
	users    *memUsers
	sessions *memSessions
	audit    *recordingAudit
	now      time.Time
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("secret")
	require.NoError(t, err)

	f := &sessionFixture{
		users: &memUsers{users: map[string]*models.User{
			"user-1": {ID: "user-1", Email: "buyer@example.com", PasswordHash: &hash, FullName: "Buyer", Role: models.RoleUser, TenantID: "default"},
			"user-2": {ID: "user-2", Email: "nopass@example.com", FullName: "No Password", Role: models.RoleUser, TenantID: "default"},
		}},
		sessions: newMemSessions(),
		audit:    &recordingAudit{},
		now:      time.Now(),
	}
	codec, err := auth.NewTokenCodec("test-secret", time.Hour)
	require.NoError(t, err)

	f.svc = NewSessionService(SessionDeps{
		Users:     f.users,
		Sessions:  f.sessions,
		Tokens:    codec,
		Refresh:   auth.NewRefreshTokenGenerator(auth.DefaultRefreshTokenBytes),
		Passwords: hasher,
		Audit:     f.audit,
		Metrics:   NewMetricsService(),
	}, SessionConfig{RefreshTokenTTL: 7 * 24 * time.Hour})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *sessionFixture) login(t *testing.T, device string) *models.LoginResult {
	t.Helper()
	result, err := f.svc.Login(context.Background(), models.LoginRequest{
		Email:    " Buyer@Example.com ",
		Password: "secret",
		DeviceID: device,
	})
	require.NoError(t, err)
	return result
}

func (f *sessionFixture) refresh(token, device string) (*models.TokenPair, error) {
	return f.svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: token, DeviceID: device})
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	return appErr.Status
}

func TestSessionLifecycleScenario(t *testing.T) {
	f := newSessionFixture(t)

	first := f.login(t, deviceOne)
	assert.NotEmpty(t, first.Tokens.AccessToken)
	assert.Len(t, first.Tokens.RefreshToken, 128)
	assert.Equal(t, "buyer@example.com", first.User.Email)

	second, err := f.refresh(first.Tokens.RefreshToken, deviceOne)
	require.NoError(t, err)
	assert.NotEqual(t, first.Tokens.RefreshToken, second.RefreshToken)
	assert.Equal(t, 1, f.sessions.count())

	_, err = f.refresh(first.Tokens.RefreshToken, deviceOne)
	assert.Equal(t, 401, statusOf(t, err))

	_, err = f.refresh(second.RefreshToken, deviceTwo)
	assert.Equal(t, 401, statusOf(t, err))
	assert.Equal(t, 0, f.sessions.count(), "device mismatch revokes the session")

	_, err = f.refresh(second.RefreshToken, deviceOne)
	assert.Equal(t, 401, statusOf(t, err))

	assert.Contains(t, f.audit.actions, models.ActionLoginUser)
	assert.Contains(t, f.audit.actions, models.ActionRefreshToken)
	assert.Contains(t, f.audit.actions, models.ActionDeviceMismatch)
}

func TestRefreshRedeemsTokenOnceUnderConcurrency(t *testing.T) {
	f := newSessionFixture(t)
	login := f.login(t, deviceOne)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.refresh(login.Tokens.RefreshToken, deviceOne); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, 1, f.sessions.count())
}

func TestLoginEvictsOldestSession(t *testing.T) {
	f := newSessionFixture(t)

	var tokens []string
	for i := 0; i < repository.DefaultMaxSessionsPerUser; i++ {
		result := f.login(t, deviceOne)
		assert.Zero(t, result.Evicted)
		tokens = append(tokens, result.Tokens.RefreshToken)
	}

	sixth := f.login(t, deviceTwo)
	assert.Equal(t, 1, sixth.Evicted)
	assert.Equal(t, repository.DefaultMaxSessionsPerUser, f.sessions.count())

	_, err := f.refresh(tokens[0], deviceOne)
	assert.Equal(t, 401, statusOf(t, err), "oldest session was evicted")
	_, err = f.refresh(tokens[1], deviceOne)
	assert.NoError(t, err)
}

func TestLoginRejectsBadCredentialsUniformly(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	cases := []models.LoginRequest{
		{Email: "missing@example.com", Password: "secret", DeviceID: deviceOne},
		{Email: "buyer@example.com", Password: "wrong", DeviceID: deviceOne},
		{Email: "nopass@example.com", Password: "secret", DeviceID: deviceOne},
	}
	var messages []string
	for _, req := range cases {
		_, err := f.svc.Login(ctx, req)
		require.Error(t, err)
		assert.Equal(t, 401, statusOf(t, err))
		messages = append(messages, err.Error())
	}
	assert.Equal(t, messages[0], messages[1])
	assert.Equal(t, messages[1], messages[2])
	assert.Zero(t, f.sessions.count())
}

func TestLoginCorruptStoredHashIsInternal(t *testing.T) {
	f := newSessionFixture(t)
	corrupt := "not-a-bcrypt-hash"
	f.users.users["user-1"].PasswordHash = &corrupt

	_, err := f.svc.Login(context.Background(), models.LoginRequest{
		Email:    "buyer@example.com",
		Password: "secret",
		DeviceID: deviceOne,
	})
	assert.Equal(t, 500, statusOf(t, err))
	assert.Equal(t, 0, f.sessions.count())
}

func TestLoginValidatesPayload(t *testing.T) {
	f := newSessionFixture(t)
	_, err := f.svc.Login(context.Background(), models.LoginRequest{Email: "buyer@example.com", Password: "secret", DeviceID: "not-a-uuid"})
	assert.Equal(t, 400, statusOf(t, err))
}

func TestRefreshExpiredSessionIsDeleted(t *testing.T) {
	f := newSessionFixture(t)
	login := f.login(t, deviceOne)

	f.now = f.now.Add(8 * 24 * time.Hour)
	_, err := f.refresh(login.Tokens.RefreshToken, deviceOne)
	assert.Equal(t, 401, statusOf(t, err))
	assert.Zero(t, f.sessions.count())
}

func TestRefreshMissingOwner(t *testing.T) {
	f := newSessionFixture(t)
	login := f.login(t, deviceOne)
	delete(f.users.users, "user-1")

	_, err := f.refresh(login.Tokens.RefreshToken, deviceOne)
	assert.Equal(t, 404, statusOf(t, err))
	assert.Equal(t, 1, f.sessions.count())
}

func TestRefreshStoreFailureIsInternal(t *testing.T) {
	f := newSessionFixture(t)
	login := f.login(t, deviceOne)

	f.sessions.rotateErr = errors.New("connection reset")
	_, err := f.refresh(login.Tokens.RefreshToken, deviceOne)
	assert.Equal(t, 500, statusOf(t, err))
	assert.Equal(t, 1, f.sessions.count(), "old session survives a failed rotation")

	f.sessions.rotateErr = nil
	f.sessions.findErr = errors.New("timeout")
	_, err = f.refresh(login.Tokens.RefreshToken, deviceOne)
	assert.Equal(t, 500, statusOf(t, err))
}

func TestRefreshRequiresToken(t *testing.T) {
	f := newSessionFixture(t)
	_, err := f.refresh("", deviceOne)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestRefreshRejectsMalformedTokenBeforeLookup(t *testing.T) {
	f := newSessionFixture(t)
	f.sessions.findErr = errors.New("store must not be queried")

	_, err := f.refresh("not-a-refresh-token", deviceOne)
	assert.Equal(t, 401, statusOf(t, err))
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	login := f.login(t, deviceOne)
	f.login(t, deviceTwo)
	ctx := context.Background()

	req := models.LogoutRequest{UserID: "user-1", RefreshToken: login.Tokens.RefreshToken, DeviceID: deviceOne}
	require.NoError(t, f.svc.Logout(ctx, req))
	require.NoError(t, f.svc.Logout(ctx, req))
	assert.Equal(t, 1, f.sessions.count())

	_, err := f.refresh(login.Tokens.RefreshToken, deviceOne)
	assert.Equal(t, 401, statusOf(t, err))

	assert.ErrorIs(t, f.svc.Logout(ctx, models.LogoutRequest{}), appErrors.ErrUnauthorized)
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	f := newSessionFixture(t)
	a := f.login(t, deviceOne)
	b := f.login(t, deviceTwo)

	n, err := f.svc.LogoutAll(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Equal(t, 0, f.sessions.count())
	views, err := f.svc.ListSessions(context.Background(), "user-1", deviceOne)
	require.NoError(t, err)
	assert.Empty(t, views)

	_, err = f.refresh(a.Tokens.RefreshToken, deviceOne)
	assert.Equal(t, 401, statusOf(t, err))
	_, err = f.refresh(b.Tokens.RefreshToken, deviceTwo)
	assert.Equal(t, 401, statusOf(t, err))
}

func TestLogoutOthersKeepsCurrentDevice(t *testing.T) {
	f := newSessionFixture(t)
	current := f.login(t, deviceOne)
	f.login(t, deviceTwo)
	ctx := context.Background()

	_, err := f.svc.LogoutOthers(ctx, "user-1", "")
	assert.Equal(t, 400, statusOf(t, err))

	n, err := f.svc.LogoutOthers(ctx, "user-1", deviceOne)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.refresh(current.Tokens.RefreshToken, deviceOne)
	assert.NoError(t, err)
}

func TestListSessionsDropsExpired(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t, deviceOne)
	f.now = f.now.Add(8 * 24 * time.Hour)
	f.login(t, deviceTwo)

	views, err := f.svc.ListSessions(context.Background(), "user-1", deviceTwo)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, deviceTwo, views[0].DeviceID)
	assert.True(t, views[0].Current)
	assert.Equal(t, 1, f.sessions.count())
}

func TestDeleteSessionIsOwnerScoped(t *testing.T) {
	f := newSessionFixture(t)
	login := f.login(t, deviceOne)
	ctx := context.Background()

	err := f.svc.DeleteSession(ctx, "someone-else", login.Tokens.SessionID)
	assert.Equal(t, 404, statusOf(t, err))

	require.NoError(t, f.svc.DeleteSession(ctx, "user-1", login.Tokens.SessionID))
	assert.Zero(t, f.sessions.count())
}

func TestSweepExpired(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t, deviceOne)
	f.login(t, deviceTwo)

	n, err := f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = f.now.Add(7 * 24 * time.Hour)
	n, err = f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
