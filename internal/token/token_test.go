package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour, 5*time.Minute)

	tok, err := iss.IssueSession("client-1", "session-1", "client")
	require.NoError(t, err)

	claims, err := iss.ParseSession(tok)
	require.NoError(t, err)
	assert.Equal(t, "client-1", claims.ClientID)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.Equal(t, "client", claims.Role)
}

func TestActionTokenRoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour, 5*time.Minute)

	tok, err := iss.IssueAction("client-1")
	require.NoError(t, err)

	claims, err := iss.ParseAction(tok)
	require.NoError(t, err)
	assert.Equal(t, "client-1", claims.ClientID)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	iss := NewIssuer("secret", time.Hour, 5*time.Minute)

	session, err := iss.IssueSession("client-1", "session-1", "client")
	require.NoError(t, err)
	action, err := iss.IssueAction("client-1")
	require.NoError(t, err)

	_, err = iss.ParseAction(session)
	assert.ErrorIs(t, err, ErrWrongPurpose)
	_, err = iss.ParseSession(action)
	assert.ErrorIs(t, err, ErrWrongPurpose)
}

func TestWrongSecretRejected(t *testing.T) {
	iss := NewIssuer("secret", time.Hour, 5*time.Minute)
	other := NewIssuer("different", time.Hour, 5*time.Minute)

	tok, err := iss.IssueSession("client-1", "session-1", "client")
	require.NoError(t, err)

	_, err = other.ParseSession(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = other.ParseSessionAllowExpired(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredSessionToken(t *testing.T) {
	iss := NewIssuer("secret", -time.Minute, -time.Minute)

	tok, err := iss.IssueSession("client-1", "session-1", "client")
	require.NoError(t, err)

	_, err = iss.ParseSession(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Logout path still recovers the claims.
	claims, err := iss.ParseSessionAllowExpired(tok)
	require.NoError(t, err)
	assert.Equal(t, "session-1", claims.SessionID)

	action, err := iss.IssueAction("client-1")
	require.NoError(t, err)
	_, err = iss.ParseAction(action)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGarbageTokenRejected(t *testing.T) {
	iss := NewIssuer("secret", time.Hour, 5*time.Minute)
	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		_, err := iss.ParseSession(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
		_, err = iss.ParseSessionAllowExpired(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}
