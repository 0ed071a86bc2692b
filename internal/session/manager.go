// Package session enforces the single-active-session rule: a client account
// holds at most one live session at a time, and stale sessions are evicted
// only through an explicit, token-authorized termination.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"addressd/internal/domain"
	"addressd/internal/token"
)

// ClientStore is the slice of the client repository the manager needs.
type ClientStore interface {
	GetByID(ctx context.Context, id string) (*domain.ClientAccount, error)
	GetByUsername(ctx context.Context, username string) (*domain.ClientAccount, error)
	SetActiveSession(ctx context.Context, id, sessionID string) error
	ClearActiveSession(ctx context.Context, id, ifMatches string) (bool, error)
	TouchActivity(ctx context.Context, id string, at time.Time) error
}

// ConflictError reports that another session is active. The embedded action
// token authorizes exactly one termination of that session.
type ConflictError struct {
	ActionToken string
}

func (e *ConflictError) Error() string { return domain.ErrSessionConflict.Error() }
func (e *ConflictError) Unwrap() error { return domain.ErrSessionConflict }

// Login is the result of a successful authentication.
type Login struct {
	Token     string
	SessionID string
	Client    *domain.ClientAccount
}

// Manager implements the session state machine over the client store's
// conditional session updates.
type Manager struct {
	store  ClientStore
	tokens *token.Issuer
	logger zerolog.Logger
}

func NewManager(store ClientStore, tokens *token.Issuer, logger zerolog.Logger) *Manager {
	return &Manager{store: store, tokens: tokens, logger: logger}
}

// Authenticate verifies credentials and account state without touching the
// session. Both failure modes must surface as the same generic message to
// the caller so accounts cannot be enumerated.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (*domain.ClientAccount, error) {
	acct, err := m.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !acct.IsActive {
		return nil, domain.ErrAccountDisabled
	}
	return acct, nil
}

// Login authenticates and establishes a new session of record. When another
// session is active and force is false, no session is created; a
// ConflictError carrying a short-lived action token is returned instead.
func (m *Manager) Login(ctx context.Context, username, password string, force bool) (*Login, error) {
	acct, err := m.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	if acct.HasActiveSession() {
		if !force {
			actionToken, err := m.tokens.IssueAction(acct.ID)
			if err != nil {
				return nil, fmt.Errorf("issue action token: %w", err)
			}
			return nil, &ConflictError{ActionToken: actionToken}
		}
		// Conditional clear: only evict the session we observed. If it
		// changed underneath us the unconditional set below still
		// establishes the new session of record.
		if _, err := m.store.ClearActiveSession(ctx, acct.ID, acct.ActiveSessionID); err != nil {
			return nil, err
		}
		m.logger.Info().Str("client_id", acct.ID).Msg("forced session eviction on login")
	}

	sessionID := uuid.NewString()
	if err := m.store.SetActiveSession(ctx, acct.ID, sessionID); err != nil {
		return nil, err
	}
	sessionToken, err := m.tokens.IssueSession(acct.ID, sessionID, string(domain.RoleClient))
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	acct.ActiveSessionID = sessionID
	return &Login{Token: sessionToken, SessionID: sessionID, Client: acct}, nil
}

// TerminateSession validates an action token and unconditionally clears the
// bound client's active session so the caller can retry login.
func (m *Manager) TerminateSession(ctx context.Context, actionToken string) error {
	claims, err := m.tokens.ParseAction(actionToken)
	if err != nil {
		return domain.ErrUnauthorized
	}
	if _, err := m.store.ClearActiveSession(ctx, claims.ClientID, ""); err != nil {
		return err
	}
	m.logger.Info().Str("client_id", claims.ClientID).Msg("session terminated via action token")
	return nil
}

// Logout clears the session bound to the token, but only while it is still
// the session of record: logging out an already-superseded session must not
// clobber the newer one. Idempotent, and tolerant of expired tokens.
func (m *Manager) Logout(ctx context.Context, sessionToken string) error {
	claims, err := m.tokens.ParseSessionAllowExpired(sessionToken)
	if err != nil {
		// Nothing to clear for a token we cannot attribute.
		return nil
	}
	cleared, err := m.store.ClearActiveSession(ctx, claims.ClientID, claims.SessionID)
	if err != nil {
		return err
	}
	if !cleared {
		m.logger.Debug().Str("client_id", claims.ClientID).Msg("logout for superseded session, nothing cleared")
	}
	return nil
}

// Heartbeat validates the token against the live session and records
// activity. A rejection signals the client to drop its local session.
func (m *Manager) Heartbeat(ctx context.Context, sessionToken string) error {
	claims, err := m.tokens.ParseSession(sessionToken)
	if err != nil {
		return domain.ErrUnauthorized
	}
	acct, err := m.store.GetByID(ctx, claims.ClientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnauthorized
		}
		return err
	}
	if acct.ActiveSessionID != claims.SessionID {
		return domain.ErrUnauthorized
	}
	return m.store.TouchActivity(ctx, claims.ClientID, time.Now().UTC())
}

// ForceLogout clears a client's session regardless of its value. Admin use.
func (m *Manager) ForceLogout(ctx context.Context, clientID string) error {
	_, err := m.store.ClearActiveSession(ctx, clientID, "")
	return err
}
