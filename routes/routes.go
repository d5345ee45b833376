package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Dosada05/pong-arena/handlers"
	"github.com/Dosada05/pong-arena/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	allowedOrigins []string,
	healthHandler *handlers.HealthHandler,
	tournamentHandler *handlers.TournamentHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler.CheckHandler)

	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Get("/ws/lobby", webSocketHandler.ServeLobby)
		r.Get("/ws/matches/{matchID}", webSocketHandler.ServeMatch)

		r.Route("/api/tournaments", func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(10 * time.Second))
			r.Get("/open", tournamentHandler.ListOpenHandler)
			r.Post("/", tournamentHandler.CreateHandler)
		})
	})
}
