package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"addressd/internal/http/handlers"
	"addressd/internal/metrics"
	"addressd/internal/middleware"
)

// NewRouter builds the full route table. Client routes sit behind the
// live-session check, so an evicted session is rejected even while its
// token is still within its signed lifetime.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Logger,
	)
	r.Use(middleware.CORS([]string{app.Config.AllowedCORSOrigin}))

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Public, rate limited per IP.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))
		r.Post("/v1/login", app.Login)
		r.Post("/v1/session/terminate", app.TerminateSession)
		r.Post("/v1/logout", app.Logout)
		r.Post("/v1/heartbeat", app.Heartbeat)
		r.Get("/v1/pincode/{pin}", app.PincodeLookup)
		r.Post("/v1/admin/login", app.AdminLogin)
	})

	// Client routes: token must name the account's session of record.
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(app.Tokens, app.Clients))
		r.Get("/v1/me", app.Me)
		r.Post("/v1/verify-address", app.VerifyAddress)
		r.Route("/v1/messages", func(r chi.Router) {
			r.Get("/", app.ListMessages)
			r.Get("/unread-count", app.UnreadMessageCount)
			r.Post("/{id}/read", app.MarkMessageRead)
		})
	})

	// Admin routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(app.Tokens))
		r.Route("/v1/admin", func(r chi.Router) {
			r.Get("/usage", app.UsageSummary)
			r.Route("/clients", func(r chi.Router) {
				r.Post("/", app.CreateClient)
				r.Get("/", app.ListClients)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", app.GetClient)
					r.Patch("/", app.UpdateClient)
					r.Delete("/", app.DeleteClient)
					r.Put("/credits", app.SetCredits)
					r.Post("/credits/top-up", app.TopUpCredits)
					r.Post("/force-logout", app.ForceLogoutClient)
					r.Post("/messages", app.SendMessage)
					r.Get("/events", app.ClientEvents)
				})
			})
		})
	})

	return r
}
