package middleware

import (
	"context"
	"net/http"
	"strings"

	"addressd/internal/domain"
	"addressd/internal/token"
)

type ctxKey string

const (
	clientIDKey  ctxKey = "client_id"
	sessionIDKey ctxKey = "session_id"
)

// SessionStore is the read the auth middleware needs to confirm the live
// session.
type SessionStore interface {
	GetByID(ctx context.Context, id string) (*domain.ClientAccount, error)
}

// SessionAuth validates the bearer session token AND confirms it still names
// the account's session of record. Credit-consuming endpoints sit behind
// this, so an evicted session cannot keep spending until its token expires.
func SessionAuth(tokens *token.Issuer, store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				unauthorized(w)
				return
			}
			claims, err := tokens.ParseSession(raw)
			if err != nil || claims.Role != string(domain.RoleClient) {
				unauthorized(w)
				return
			}
			acct, err := store.GetByID(r.Context(), claims.ClientID)
			if err != nil || !acct.IsActive || acct.ActiveSessionID != claims.SessionID {
				unauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), clientIDKey, claims.ClientID)
			ctx = context.WithValue(ctx, sessionIDKey, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminAuth validates an admin-role token. Admin tokens carry no session id
// and are not subject to the single-session rule.
func AdminAuth(tokens *token.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				unauthorized(w)
				return
			}
			claims, err := tokens.ParseSession(raw)
			if err != nil || claims.Role != string(domain.RoleAdmin) {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"authentication required"}`))
}

// ClientIDFromContext returns the authenticated client id, if any.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext returns the live session id, if any.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithClient installs an authenticated client into the context.
// Exposed for handler tests.
func ContextWithClient(ctx context.Context, clientID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, clientIDKey, clientID)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}
