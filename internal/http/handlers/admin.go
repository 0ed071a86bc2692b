package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"addressd/internal/domain"
	"addressd/internal/sqlinline"
)

// AdminLogin authenticates the operator account configured in the
// environment. Admin tokens are stateless: they carry no session of record
// and are not subject to single-session eviction.
func (a *App) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(a.Config.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(a.Config.AdminPassword)) == 1
	if !userOK || !passOK {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid username or password")
		return
	}
	tok, err := a.Tokens.IssueSession("admin", uuid.NewString(), string(domain.RoleAdmin))
	if err != nil {
		a.Logger.Error().Err(err).Msg("admin token issue failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "login failed")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"token": tok})
}

type createClientRequest struct {
	Username    string     `json:"username"`
	Password    string     `json:"password"`
	PlanName    string     `json:"plan_name"`
	ValidityEnd *time.Time `json:"validity_end"`
}

// CreateClient provisions a tenant. The initial credit allotment is derived
// from the plan name suffix, e.g. "starter_100" or "enterprise_Unlimited".
func (a *App) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < 8 {
		a.error(w, http.StatusBadRequest, "bad_request", "username and a password of at least 8 characters are required")
		return
	}
	credits, err := domain.CreditsForPlan(req.PlanName)
	if err != nil {
		a.error(w, http.StatusBadRequest, "unsupported_plan", err.Error())
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.Logger.Error().Err(err).Msg("password hash failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "could not create client")
		return
	}
	validity := time.Now().UTC().AddDate(1, 0, 0)
	if req.ValidityEnd != nil {
		validity = req.ValidityEnd.UTC()
	}

	created, err := a.Clients.Create(r.Context(), &domain.ClientAccount{
		ID:               uuid.NewString(),
		Username:         req.Username,
		PasswordHash:     string(hash),
		IsActive:         true,
		PlanName:         req.PlanName,
		InitialCredits:   credits,
		RemainingCredits: credits,
		ValidityEnd:      validity,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateUsername) {
			a.error(w, http.StatusConflict, "duplicate_username", "a client with this username already exists")
			return
		}
		a.Logger.Error().Err(err).Str("username", req.Username).Msg("client create failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "could not create client")
		return
	}
	a.Logger.Info().Str("client_id", created.ID).Str("plan_name", created.PlanName).Msg("client provisioned")
	a.json(w, http.StatusCreated, adminViewOf(created))
}

// ListClients returns every tenant, newest first.
func (a *App) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := a.Clients.List(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("client list failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "could not list clients")
		return
	}
	views := make([]adminClientView, 0, len(clients))
	for i := range clients {
		views = append(views, adminViewOf(&clients[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"clients": views})
}

// GetClient returns one tenant by id.
func (a *App) GetClient(w http.ResponseWriter, r *http.Request) {
	acct, err := a.Clients.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.clientLookupError(w, err)
		return
	}
	a.json(w, http.StatusOK, adminViewOf(acct))
}

type updateClientRequest struct {
	IsActive    *bool      `json:"is_active"`
	PlanName    *string    `json:"plan_name"`
	ValidityEnd *time.Time `json:"validity_end"`
	Password    *string    `json:"password"`
}

// UpdateClient patches account state. A plan change resets both the initial
// and the remaining balance to the new plan's allotment; use the credit
// endpoints for surgical balance changes.
func (a *App) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req updateClientRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	acct, err := a.Clients.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.clientLookupError(w, err)
		return
	}

	if req.IsActive != nil {
		acct.IsActive = *req.IsActive
	}
	if req.PlanName != nil {
		credits, err := domain.CreditsForPlan(*req.PlanName)
		if err != nil {
			a.error(w, http.StatusBadRequest, "unsupported_plan", err.Error())
			return
		}
		acct.PlanName = *req.PlanName
		acct.InitialCredits = credits
		acct.RemainingCredits = credits
	}
	if req.ValidityEnd != nil {
		acct.ValidityEnd = req.ValidityEnd.UTC()
	}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			a.error(w, http.StatusBadRequest, "bad_request", "password must be at least 8 characters")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			a.Logger.Error().Err(err).Msg("password hash failed")
			a.error(w, http.StatusInternalServerError, "internal_error", "could not update client")
			return
		}
		acct.PasswordHash = string(hash)
	}

	updated, err := a.Clients.UpdateProfile(r.Context(), acct)
	if err != nil {
		a.Logger.Error().Err(err).Str("client_id", acct.ID).Msg("client update failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "could not update client")
		return
	}
	a.json(w, http.StatusOK, adminViewOf(updated))
}

// DeleteClient removes a tenant permanently.
func (a *App) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Clients.Delete(r.Context(), id); err != nil {
		a.clientLookupError(w, err)
		return
	}
	a.Logger.Info().Str("client_id", id).Msg("client deleted")
	a.json(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// SetCredits overwrites a tenant's balance; the body accepts a number or
// the literal "Unlimited".
func (a *App) SetCredits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credits domain.Credits `json:"credits"`
	}
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "credits must be a non-negative number or \"Unlimited\"")
		return
	}
	updated, err := a.Ledger.AdminSet(r.Context(), chi.URLParam(r, "id"), req.Credits)
	if err != nil {
		a.clientLookupError(w, err)
		return
	}
	a.json(w, http.StatusOK, adminViewOf(updated))
}

// TopUpCredits adds credits to a numeric balance. No-op for unlimited
// accounts.
func (a *App) TopUpCredits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int `json:"amount"`
	}
	if err := a.decode(r, &req); err != nil || req.Amount <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "amount must be a positive number")
		return
	}
	updated, err := a.Ledger.AdminTopUp(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		a.clientLookupError(w, err)
		return
	}
	a.json(w, http.StatusOK, adminViewOf(updated))
}

// ForceLogoutClient evicts whatever session a tenant currently holds.
func (a *App) ForceLogoutClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Sessions.ForceLogout(r.Context(), id); err != nil {
		a.clientLookupError(w, err)
		return
	}
	a.Logger.Info().Str("client_id", id).Msg("admin forced logout")
	a.json(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// SendMessage drops a message into a tenant's inbox.
func (a *App) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := a.decode(r, &req); err != nil || strings.TrimSpace(req.Subject) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "subject is required")
		return
	}
	msg, err := a.Messages.Create(r.Context(), &domain.Message{
		ID:       uuid.NewString(),
		ClientID: chi.URLParam(r, "id"),
		Sender:   "admin",
		Subject:  strings.TrimSpace(req.Subject),
		Body:     req.Body,
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("message create failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "could not send message")
		return
	}
	a.json(w, http.StatusCreated, messageViewOf(msg))
}

// UsageSummary reports success/failure counts for an event type over a
// trailing window, straight from the usage event log.
func (a *App) UsageSummary(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("event_type")
	if eventType == "" {
		eventType = "verify"
	}
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "hours must be a positive number")
			return
		}
		hours = n
	}

	var succeeded, failed int
	row := a.SQL.QueryRow(r.Context(), sqlinline.QCountUsageEventsSince, eventType, strconv.Itoa(hours)+" hours")
	if err := row.Scan(&succeeded, &failed); err != nil {
		a.Logger.Error().Err(err).Msg("usage summary query failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "could not compute usage summary")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"event_type": eventType,
		"hours":      hours,
		"succeeded":  succeeded,
		"failed":     failed,
	})
}

type usageEventView struct {
	ID         string    `json:"id"`
	EventType  string    `json:"event_type"`
	Success    bool      `json:"success"`
	Properties string    `json:"properties"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClientEvents lists a tenant's most recent usage events.
func (a *App) ClientEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rows, err := a.SQL.Query(r.Context(), sqlinline.QRecentUsageEventsByClient, id, 100)
	if err != nil {
		a.Logger.Error().Err(err).Str("client_id", id).Msg("usage event query failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "could not list events")
		return
	}
	defer rows.Close()

	events := make([]usageEventView, 0, 16)
	for rows.Next() {
		var (
			ev       usageEventView
			clientID *string
		)
		if err := rows.Scan(&ev.ID, &clientID, &ev.EventType, &ev.Success, &ev.Properties, &ev.CreatedAt); err != nil {
			a.Logger.Error().Err(err).Msg("usage event scan failed")
			a.error(w, http.StatusInternalServerError, "internal_error", "could not list events")
			return
		}
		events = append(events, ev)
	}
	a.json(w, http.StatusOK, map[string]any{"client_id": id, "events": events})
}

type adminClientView struct {
	ID               string         `json:"id"`
	Username         string         `json:"username"`
	IsActive         bool           `json:"is_active"`
	PlanName         string         `json:"plan_name"`
	InitialCredits   domain.Credits `json:"initial_credits"`
	RemainingCredits domain.Credits `json:"remaining_credits"`
	HasActiveSession bool           `json:"has_active_session"`
	ValidityEnd      time.Time      `json:"validity_end"`
	LastActivityAt   time.Time      `json:"last_activity_at"`
	CreatedAt        time.Time      `json:"created_at"`
}

func adminViewOf(acct *domain.ClientAccount) adminClientView {
	return adminClientView{
		ID:               acct.ID,
		Username:         acct.Username,
		IsActive:         acct.IsActive,
		PlanName:         acct.PlanName,
		InitialCredits:   acct.InitialCredits,
		RemainingCredits: acct.RemainingCredits,
		HasActiveSession: acct.HasActiveSession(),
		ValidityEnd:      acct.ValidityEnd,
		LastActivityAt:   acct.LastActivityAt,
		CreatedAt:        acct.CreatedAt,
	}
}

func (a *App) clientLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "no client with this id")
		return
	}
	a.Logger.Error().Err(err).Msg("client lookup failed")
	a.error(w, http.StatusInternalServerError, "internal_error", "client lookup failed")
}
