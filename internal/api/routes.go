package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/route"
)

// RouteSource defines the registry operations the route endpoints need.
type RouteSource interface {
	All() []*route.Route
}

// RouteHandler handles HTTP requests for route definitions.
type RouteHandler struct {
	routes RouteSource
	now    func() time.Time
}

// NewRouteHandler creates a new handler over the given registry.
func NewRouteHandler(routes RouteSource) *RouteHandler {
	return &RouteHandler{routes: routes, now: time.Now}
}

// routeView is a route definition plus whether it is in service right now.
type routeView struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Color           string         `json:"color"`
	ThresholdMeters float64        `json:"thresholdMeters"`
	Schedule        route.Schedule `json:"schedule"`
	Path            geo.Path       `json:"path"`
	Active          bool           `json:"active"`
}

// GetAllRoutesResponse is the JSON response structure for GET /api/routes.
type GetAllRoutesResponse struct {
	Routes      []routeView `json:"routes"`
	Count       int         `json:"count"`
	RetrievedAt time.Time   `json:"retrievedAt"`
}

// GetAllRoutes handles GET /api/routes.
func (h *RouteHandler) GetAllRoutes(w http.ResponseWriter, r *http.Request) {
	now := h.now()

	all := h.routes.All()
	views := make([]routeView, 0, len(all))
	for _, rt := range all {
		views = append(views, routeView{
			ID:              rt.ID,
			Name:            rt.Name,
			Color:           rt.Color,
			ThresholdMeters: rt.ThresholdMeters,
			Schedule:        rt.Schedule,
			Path:            rt.Path,
			Active:          rt.Active(now),
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	response := GetAllRoutesResponse{
		Routes:      views,
		Count:       len(views),
		RetrievedAt: now.UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
