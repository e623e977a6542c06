package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"nutrilabel/internal/handlers"
	applog "nutrilabel/internal/log"
)

func newRouter(h *handlers.Handlers, origins []string) http.Handler {
	r := chi.NewRouter()
	applog.Debug(context.Background(), "registering http routes")

	r.Use(middleware.RequestID)
	r.Use(correlate)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: !allowsAny(origins),
		MaxAge:           300,
	}))

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/endpoints", handlers.Endpoints)

		// Credential routes never look at Authorization, so a stale token
		// cannot lock a client out of logging in again.
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/token", h.Token)
			r.With(h.Authenticate, handlers.RequireUser).Get("/users/me", h.Me)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)
			r.Use(h.RequireAnalyzeUser)
			r.Post("/analyze", h.Analyze)
			r.Get("/analyses/{requestID}", h.GetAnalysis)
			r.Get("/nutrition/logs/{date}", h.DailyLogs)
		})
	})

	applog.Debug(context.Background(), "routes registered", "count", len(handlers.Catalog))
	return r
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
