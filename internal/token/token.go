// Package token issues and verifies the two token kinds the service uses:
// long-lived session tokens and short-lived action tokens. Both are HS256
// JWTs signed with the deployment secret; a purpose claim keeps them from
// being interchangeable.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	purposeSession   = "session"
	purposeTerminate = "terminate_session"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongPurpose = errors.New("token not valid for this operation")
)

// SessionClaims bind a client id and a session id together so a later
// request can be checked against the account's current active session.
type SessionClaims struct {
	jwt.RegisteredClaims
	ClientID  string `json:"cid"`
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	Purpose   string `json:"purpose"`
}

// ActionClaims authorize exactly one stale-session termination.
type ActionClaims struct {
	jwt.RegisteredClaims
	ClientID string `json:"cid"`
	Purpose  string `json:"purpose"`
}

// Issuer signs and verifies tokens with a pre-shared secret.
type Issuer struct {
	secret     []byte
	sessionTTL time.Duration
	actionTTL  time.Duration
}

func NewIssuer(secret string, sessionTTL, actionTTL time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), sessionTTL: sessionTTL, actionTTL: actionTTL}
}

// IssueSession mints a session token binding clientID and sessionID.
func (i *Issuer) IssueSession(clientID, sessionID, role string) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.sessionTTL)),
		},
		ClientID:  clientID,
		SessionID: sessionID,
		Role:      role,
		Purpose:   purposeSession,
	})
	return t.SignedString(i.secret)
}

// IssueAction mints a short-lived token whose only valid use is terminating
// the bound client's active session.
func (i *Issuer) IssueAction(clientID string) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, ActionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.actionTTL)),
		},
		ClientID: clientID,
		Purpose:  purposeTerminate,
	})
	return t.SignedString(i.secret)
}

func (i *Issuer) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return i.secret, nil
}

// ParseSession verifies signature and expiry of a session token.
func (i *Issuer) ParseSession(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc)
	if err != nil || !t.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purposeSession {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

// ParseSessionAllowExpired verifies the signature but tolerates an expired
// token. Logout must still succeed for tokens past their expiry.
func (i *Issuer) ParseSessionAllowExpired(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc)
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrInvalidToken
		}
	} else if !t.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purposeSession {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

// ParseAction verifies signature and expiry of an action token.
func (i *Issuer) ParseAction(tokenString string) (*ActionClaims, error) {
	claims := &ActionClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc)
	if err != nil || !t.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purposeTerminate {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}
