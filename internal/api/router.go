package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// NewRouter assembles the HTTP surface: vehicle state, route definitions,
// and the health endpoints.
func NewRouter(vehicles *VehicleHandler, routes *RouteHandler, health *HealthHandler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", health.GetHealth)
	r.Get("/api/health/feed", health.GetFeedHealth)

	r.Get("/api/vehicles", vehicles.GetAllVehicles)
	r.Get("/api/vehicles/{vehicleID}", vehicles.GetVehicle)
	r.Post("/api/vehicles/{vehicleID}/reports", vehicles.PostReport)
	r.Post("/api/vehicles/{vehicleID}/board", vehicles.PostBoard)
	r.Post("/api/vehicles/{vehicleID}/leave", vehicles.PostLeave)

	r.Get("/api/routes", routes.GetAllRoutes)

	return r
}
