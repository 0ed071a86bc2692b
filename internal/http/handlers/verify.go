package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"addressd/internal/domain"
	"addressd/internal/metrics"
	"addressd/internal/providers/postal"
)

const maxRawAddressLen = 2048

// VerifyAddress charges one credit and returns the normalized address.
//
// Quota exhaustion is a 200 with status "quota_exceeded": existing billing
// integrations poll this endpoint and treat non-2xx as transport failure,
// so an empty balance must not look like an outage.
func (a *App) VerifyAddress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	raw := strings.TrimSpace(req.Address)
	if raw == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "address is required")
		return
	}
	if len(raw) > maxRawAddressLen {
		a.error(w, http.StatusBadRequest, "bad_request", "address is too long")
		return
	}

	clientID := a.currentClientID(r)
	result, err := a.Verifier.VerifyAddress(r.Context(), clientID, raw)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrQuotaExceeded):
			metrics.VerificationCounter.WithLabelValues("quota_exceeded").Inc()
			a.recordEvent(r.Context(), clientID, "verify", false, map[string]any{"reason": "quota_exceeded"})
			a.json(w, http.StatusOK, map[string]any{
				"status":            "quota_exceeded",
				"message":           "no remaining credits on this account",
				"remaining_credits": domain.NumericCredits(0),
			})
		case errors.Is(err, domain.ErrAccountDisabled):
			a.error(w, http.StatusForbidden, "account_disabled", "this account is disabled")
		case errors.Is(err, domain.ErrProviderFailure):
			metrics.VerificationCounter.WithLabelValues("provider_failure").Inc()
			metrics.RefundCounter.Inc()
			a.recordEvent(r.Context(), clientID, "verify", false, map[string]any{"reason": "provider_failure"})
			a.error(w, http.StatusBadGateway, "provider_failure", "address normalization is temporarily unavailable, no credit was charged")
		default:
			a.Logger.Error().Err(err).Str("client_id", clientID).Msg("verification failed")
			a.error(w, http.StatusInternalServerError, "internal_error", "verification failed")
		}
		return
	}

	metrics.VerificationCounter.WithLabelValues("ok").Inc()
	a.recordEvent(r.Context(), clientID, "verify", true, map[string]any{
		"pin_code":       result.Address.PINCode,
		"postal_checked": result.PostalCheck.Checked,
	})
	a.json(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"address":           result.Address,
		"postal_check":      result.PostalCheck,
		"remaining_credits": result.RemainingCredits,
	})
}

// PincodeLookup serves the free PIN directory proxy. No credit is charged
// and no session is required; the route is rate limited instead.
func (a *App) PincodeLookup(w http.ResponseWriter, r *http.Request) {
	pin := chi.URLParam(r, "pin")
	offices, err := a.Postal.Lookup(r.Context(), pin)
	if err != nil {
		switch {
		case errors.Is(err, postal.ErrNoRecord):
			a.error(w, http.StatusNotFound, "not_found", "no record for this pin code")
		case errors.Is(err, postal.ErrBadPIN):
			a.error(w, http.StatusBadRequest, "bad_request", "pin code must be six digits")
		default:
			a.Logger.Error().Err(err).Str("pin_code", pin).Msg("pin directory lookup failed")
			a.error(w, http.StatusBadGateway, "provider_failure", "pin directory is temporarily unavailable")
		}
		return
	}
	a.json(w, http.StatusOK, map[string]any{"pin_code": pin, "post_offices": offices})
}
