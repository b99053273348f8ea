package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter builds the HTTP API. gatewayToken may be empty to trust the
// identity headers unconditionally.
func NewRouter(games *GameHandler, users *UserHandler, log *zap.Logger, gatewayToken string) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(log))
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(Gateway(gatewayToken))

		r.Route("/games", func(r chi.Router) {
			r.Get("/", games.ListGames)
			r.Get("/{id}", games.GetGame)
			r.Post("/{id}/apply", games.Apply)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/", games.CreateGame)
				r.Post("/{id}/start", games.StartGame)
				r.Post("/{id}/finish", games.FinishGame)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Patch("/", users.UpdateProfile)
			r.Get("/rankings", users.Rankings)
			r.Get("/applylist", users.ApplyList)
			r.Get("/{id}", users.GetUser)
		})
	})

	return r
}
