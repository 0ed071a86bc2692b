package handlers

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"addressd/internal/domain"
	"addressd/internal/metrics"
	"addressd/internal/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Force    bool   `json:"force"`
}

type clientView struct {
	ID               string         `json:"id"`
	Username         string         `json:"username"`
	PlanName         string         `json:"plan_name"`
	RemainingCredits domain.Credits `json:"remaining_credits"`
	ValidityEnd      time.Time      `json:"validity_end"`
}

func viewOf(acct *domain.ClientAccount) clientView {
	return clientView{
		ID:               acct.ID,
		Username:         acct.Username,
		PlanName:         acct.PlanName,
		RemainingCredits: acct.RemainingCredits,
		ValidityEnd:      acct.ValidityEnd,
	}
}

// Login authenticates a client and establishes the session of record.
// Conflicts come back as 409 with a one-shot action token; both bad
// credentials and disabled accounts share one generic 401 message.
func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "username and password are required")
		return
	}

	login, err := a.Sessions.Login(r.Context(), req.Username, req.Password, req.Force)
	if err != nil {
		var conflict *session.ConflictError
		switch {
		case errors.As(err, &conflict):
			metrics.LoginCounter.WithLabelValues("conflict").Inc()
			a.json(w, http.StatusConflict, map[string]string{
				"error":        "session_conflict",
				"message":      "this account is already logged in elsewhere",
				"action_token": conflict.ActionToken,
			})
		case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrAccountDisabled):
			metrics.LoginCounter.WithLabelValues("rejected").Inc()
			a.error(w, http.StatusUnauthorized, "unauthorized", "invalid username or password")
		default:
			a.Logger.Error().Err(err).Str("username", req.Username).Msg("login failed")
			a.error(w, http.StatusInternalServerError, "internal_error", "login failed")
		}
		a.recordEvent(r.Context(), "", "login", false, map[string]any{"username": req.Username})
		return
	}

	metrics.LoginCounter.WithLabelValues("ok").Inc()
	a.logLoginOrigin(r, login.Client.ID)
	a.recordEvent(r.Context(), login.Client.ID, "login", true, nil)
	a.json(w, http.StatusOK, map[string]any{
		"token":  login.Token,
		"client": viewOf(login.Client),
	})
}

// TerminateSession redeems an action token to evict the competing session.
func (a *App) TerminateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActionToken string `json:"action_token"`
	}
	if err := a.decode(r, &req); err != nil || req.ActionToken == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "action_token is required")
		return
	}
	if err := a.Sessions.TerminateSession(r.Context(), req.ActionToken); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			a.error(w, http.StatusUnauthorized, "unauthorized", "invalid or expired action token")
			return
		}
		a.Logger.Error().Err(err).Msg("session termination failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "could not terminate session")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "terminated"})
}

// Logout clears the caller's session. Always 200: logging out twice, or
// with an expired token, is not a client error.
func (a *App) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Logout(r.Context(), bearerToken(r)); err != nil {
		a.Logger.Error().Err(err).Msg("logout failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "logout failed")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Heartbeat confirms the caller still holds the session of record and
// records activity. A 401 here tells the client to drop its session.
func (a *App) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Heartbeat(r.Context(), bearerToken(r)); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			a.error(w, http.StatusUnauthorized, "unauthorized", "session is no longer active")
			return
		}
		a.Logger.Error().Err(err).Msg("heartbeat failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "heartbeat failed")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Me returns the authenticated client's own profile and balance.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	acct, err := a.Clients.GetByID(r.Context(), a.currentClientID(r))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusUnauthorized, "unauthorized", "account no longer exists")
			return
		}
		a.Logger.Error().Err(err).Msg("profile load failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "could not load profile")
		return
	}
	a.json(w, http.StatusOK, viewOf(acct))
}

func (a *App) logLoginOrigin(r *http.Request, clientID string) {
	if a.GeoIP == nil {
		return
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	country, err := a.GeoIP.CountryCode(ip)
	if err != nil || country == "" {
		return
	}
	a.Logger.Info().Str("client_id", clientID).Str("country", country).Msg("login origin")
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
