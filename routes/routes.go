package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thisispsg/community-bot/handlers"
	"github.com/thisispsg/community-bot/middleware"
)

// Init assembles the admin HTTP server: health and metrics, dashboard
// endpoints, the live events websocket, and the JWT-gated worker API.
func Init(
	admin *handlers.AdminHandler,
	worker *handlers.WorkerHandler,
	ws *handlers.WebSocketHandler,
	workerJWTSecret string,
) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", admin.Healthz)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/map", admin.Map)
	router.Get("/ws", ws.Serve)

	router.Route("/api", func(r chi.Router) {
		r.Get("/registrations/pending", admin.PendingRegistrations)
		r.Get("/captures/queue", admin.CaptureQueue)
		r.Get("/audit", admin.AuditTrail)

		r.Route("/worker", func(r chi.Router) {
			r.Use(middleware.WorkerAuth(workerJWTSecret))
			r.Post("/captures/claim", worker.Claim)
			r.Post("/captures/{id}/complete", worker.Complete)
			r.Post("/captures/{id}/fail", worker.Fail)
		})
	})

	return router
}
