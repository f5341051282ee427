package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/crowdjuke/crowdjuke/internal/service"
)

// NewRouter wires the full HTTP surface. Session and entry routes sit under
// /api/v1; the health check stays unversioned for load balancers.
func NewRouter(h *HTTPHandler, sessions service.SessionService) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(JoinTokenMiddleware(sessions, h))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Post("/join", h.JoinSession)

			r.Route("/{sessionId}", func(r chi.Router) {
				r.Delete("/", h.EndSession)
				r.Get("/queue", h.GetQueue)
				r.Get("/state", h.GetState)
				r.Get("/quote", h.GetQuote)
				r.Post("/entries", h.AddEntry)

				r.Route("/playback", func(r chi.Router) {
					r.Post("/start", h.StartPlayback)
					r.Post("/next", h.AdvancePlayback)
					r.Post("/stop", h.StopPlayback)
				})
			})
		})

		r.Route("/entries/{entryId}", func(r chi.Router) {
			r.Post("/vote", h.Vote)
			r.Post("/bid", h.PlaceBid)
			r.Delete("/", h.CancelEntry)
		})

		r.Put("/venues/{venueId}/pricing", h.UpdatePricing)
	})

	return r
}
