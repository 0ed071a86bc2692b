package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"addressd/internal/credit"
	"addressd/internal/domain"
	"addressd/internal/infra"
	"addressd/internal/infra/geoip"
	"addressd/internal/middleware"
	"addressd/internal/providers/postal"
	"addressd/internal/session"
	"addressd/internal/sqlinline"
	"addressd/internal/token"
	"addressd/internal/verify"
)

// App is the handler container; everything it holds is constructed once in
// cmd/api and shared by all requests.
type App struct {
	Config   *infra.Config
	Logger   zerolog.Logger
	SQL      infra.SQLExecutor
	Clients  domain.ClientRepository
	Messages domain.MessageRepository
	Sessions *session.Manager
	Ledger   *credit.Ledger
	Verifier *verify.Service
	Tokens   *token.Issuer
	Postal   postal.Directory
	GeoIP    geoip.CountryResolver
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

func (a *App) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (a *App) currentClientID(r *http.Request) string {
	return middleware.ClientIDFromContext(r.Context())
}

// recordEvent writes a usage event in the background. Auditing must never
// slow down or fail the request it describes.
func (a *App) recordEvent(_ context.Context, clientID, eventType string, success bool, properties map[string]any) {
	if a.SQL == nil {
		return
	}
	if properties == nil {
		properties = map[string]any{}
	}
	props, err := json.Marshal(properties)
	if err != nil {
		a.Logger.Error().Err(err).Str("event_type", eventType).Msg("usage event encode failed")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := a.SQL.Exec(ctx, sqlinline.QInsertUsageEvent, clientID, eventType, success, string(props)); err != nil {
			a.Logger.Error().Err(err).Str("event_type", eventType).Msg("usage event insert failed")
		}
	}()
}
