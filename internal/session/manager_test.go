package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"addressd/internal/domain"
	"addressd/internal/token"
)

type fakeSessionStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.ClientAccount
}

func newFakeSessionStore(accounts ...*domain.ClientAccount) *fakeSessionStore {
	s := &fakeSessionStore{accounts: map[string]*domain.ClientAccount{}}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *fakeSessionStore) GetByID(_ context.Context, id string) (*domain.ClientAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeSessionStore) GetByUsername(_ context.Context, username string) (*domain.ClientAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeSessionStore) SetActiveSession(_ context.Context, id, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.ActiveSessionID = sessionID
	a.LastActivityAt = time.Now()
	return nil
}

func (s *fakeSessionStore) ClearActiveSession(_ context.Context, id, ifMatches string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return false, nil
	}
	if ifMatches != "" && a.ActiveSessionID != ifMatches {
		return false, nil
	}
	if a.ActiveSessionID == "" {
		return false, nil
	}
	a.ActiveSessionID = ""
	return true, nil
}

func (s *fakeSessionStore) TouchActivity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		a.LastActivityAt = at
	}
	return nil
}

const testPassword = "correct horse battery staple"

func testAccount(t *testing.T, id string) *domain.ClientAccount {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.ClientAccount{
		ID:           id,
		Username:     id,
		PasswordHash: string(hash),
		IsActive:     true,
	}
}

func newManager(store ClientStore) (*Manager, *token.Issuer) {
	iss := token.NewIssuer("test-secret", time.Hour, 5*time.Minute)
	return NewManager(store, iss, zerolog.Nop()), iss
}

func TestLoginIssuesSession(t *testing.T) {
	store := newFakeSessionStore(testAccount(t, "c1"))
	mgr, iss := newManager(store)

	login, err := mgr.Login(context.Background(), "c1", testPassword, false)
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)
	assert.NotEmpty(t, login.SessionID)

	claims, err := iss.ParseSession(login.Token)
	require.NoError(t, err)
	assert.Equal(t, "c1", claims.ClientID)
	assert.Equal(t, login.SessionID, claims.SessionID)

	acct, err := store.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, login.SessionID, acct.ActiveSessionID)
}

func TestLoginRejectionsShareOneShape(t *testing.T) {
	disabled := testAccount(t, "disabled")
	disabled.IsActive = false
	store := newFakeSessionStore(testAccount(t, "c1"), disabled)
	mgr, _ := newManager(store)

	_, err := mgr.Login(context.Background(), "c1", "wrong password", false)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = mgr.Login(context.Background(), "nobody", testPassword, false)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = mgr.Login(context.Background(), "disabled", testPassword, false)
	assert.ErrorIs(t, err, domain.ErrAccountDisabled)
}

func TestLoginConflictRoundTrip(t *testing.T) {
	store := newFakeSessionStore(testAccount(t, "c1"))
	mgr, _ := newManager(store)
	ctx := context.Background()

	first, err := mgr.Login(ctx, "c1", testPassword, false)
	require.NoError(t, err)

	// Second login without force: conflict with an action token, and the
	// first session stays in place.
	_, err = mgr.Login(ctx, "c1", testPassword, false)
	require.ErrorIs(t, err, domain.ErrSessionConflict)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.NotEmpty(t, conflict.ActionToken)

	acct, err := store.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, acct.ActiveSessionID)

	// Terminate with the action token, then login cleanly.
	require.NoError(t, mgr.TerminateSession(ctx, conflict.ActionToken))
	second, err := mgr.Login(ctx, "c1", testPassword, false)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestSessionTokenCannotTerminate(t *testing.T) {
	store := newFakeSessionStore(testAccount(t, "c1"))
	mgr, _ := newManager(store)

	login, err := mgr.Login(context.Background(), "c1", testPassword, false)
	require.NoError(t, err)

	err = mgr.TerminateSession(context.Background(), login.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestForceLoginEvictsExistingSession(t *testing.T) {
	store := newFakeSessionStore(testAccount(t, "c1"))
	mgr, _ := newManager(store)
	ctx := context.Background()

	first, err := mgr.Login(ctx, "c1", testPassword, false)
	require.NoError(t, err)

	second, err := mgr.Login(ctx, "c1", testPassword, true)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	acct, err := store.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, second.SessionID, acct.ActiveSessionID)
}

func TestLogoutIsIdempotent(t *testing.T) {
	store := newFakeSessionStore(testAccount(t, "c1"))
	mgr, _ := newManager(store)
	ctx := context.Background()

	login, err := mgr.Login(ctx, "c1", testPassword, false)
	require.NoError(t, err)

	require.NoError(t, mgr.Logout(ctx, login.Token))
	require.NoError(t, mgr.Logout(ctx, login.Token))

	acct, err := store.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, acct.HasActiveSession())
}

func TestLogoutWithStaleTokenKeepsCurrentSession(t *testing.T) {
	store := newFakeSessionStore(testAccount(t, "c1"))
	mgr, _ := newManager(store)
	ctx := context.Background()

	stale, err := mgr.Login(ctx, "c1", testPassword, false)
	require.NoError(t, err)
	current, err := mgr.Login(ctx, "c1", testPassword, true)
	require.NoError(t, err)

	require.NoError(t, mgr.Logout(ctx, stale.Token))

	acct, err := store.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, current.SessionID, acct.ActiveSessionID)
}

func TestLogoutToleratesExpiredToken(t *testing.T) {
	store := newFakeSessionStore(testAccount(t, "c1"))
	expired := token.NewIssuer("test-secret", -time.Minute, 5*time.Minute)
	mgr := NewManager(store, expired, zerolog.Nop())
	ctx := context.Background()

	login, err := mgr.Login(ctx, "c1", testPassword, false)
	require.NoError(t, err)

	// The token is already expired but logout still clears the session.
	require.NoError(t, mgr.Logout(ctx, login.Token))
	acct, err := store.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, acct.HasActiveSession())
}

func TestHeartbeat(t *testing.T) {
	store := newFakeSessionStore(testAccount(t, "c1"))
	mgr, _ := newManager(store)
	ctx := context.Background()

	login, err := mgr.Login(ctx, "c1", testPassword, false)
	require.NoError(t, err)
	require.NoError(t, mgr.Heartbeat(ctx, login.Token))

	// An evicted session's token stops working immediately.
	_, err = mgr.Login(ctx, "c1", testPassword, true)
	require.NoError(t, err)
	assert.ErrorIs(t, mgr.Heartbeat(ctx, login.Token), domain.ErrUnauthorized)

	assert.ErrorIs(t, mgr.Heartbeat(ctx, "garbage"), domain.ErrUnauthorized)
}

func TestForceLogoutByAdmin(t *testing.T) {
	store := newFakeSessionStore(testAccount(t, "c1"))
	mgr, _ := newManager(store)
	ctx := context.Background()

	login, err := mgr.Login(ctx, "c1", testPassword, false)
	require.NoError(t, err)

	require.NoError(t, mgr.ForceLogout(ctx, "c1"))
	assert.ErrorIs(t, mgr.Heartbeat(ctx, login.Token), domain.ErrUnauthorized)

	// Repeat is harmless.
	require.NoError(t, mgr.ForceLogout(ctx, "c1"))
}
