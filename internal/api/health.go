package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/metrics"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
)

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FlowReader reports how many usable reports each source currently holds.
// Satisfied by the fleet engine.
type FlowReader interface {
	FreshReportCounts() map[model.ReportSource]int
}

// HealthHandler handles the liveness and feed-health endpoints.
type HealthHandler struct {
	store     Pinger
	engine    FlowReader
	baselines metrics.BaselineStore
	now       func() time.Time
}

// NewHealthHandler creates a new handler over the store, engine, and
// baseline store.
func NewHealthHandler(store Pinger, engine FlowReader, baselines metrics.BaselineStore) *HealthHandler {
	return &HealthHandler{store: store, engine: engine, baselines: baselines, now: time.Now}
}

// FeedHealthResponse is the JSON response structure for GET /api/health/feed.
type FeedHealthResponse struct {
	Sources   []metrics.Assessment `json:"sources"`
	CheckedAt time.Time            `json:"checkedAt"`
}

// GetHealth handles GET /health with a database connectivity test.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "error",
			"database":  "disconnected",
			"timestamp": h.now().UTC(),
			"error":     err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"database":  "connected",
		"timestamp": h.now().UTC(),
	})
}

// GetFeedHealth handles GET /api/health/feed. It grades each source's
// current report flow against the learned baseline for this hour of the
// week.
func (h *HealthHandler) GetFeedHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	now := h.now()
	counts := h.engine.FreshReportCounts()

	sources := []model.ReportSource{model.SourceSystem, model.SourceUser, model.SourceNetwork}
	assessments := make([]metrics.Assessment, 0, len(sources))
	for _, source := range sources {
		baseline, err := h.baselines.GetBaseline(ctx, source, now.Hour(), int(now.Weekday()))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(ErrorResponse{
				Error: "Failed to load report baselines",
			})
			return
		}
		assessments = append(assessments, metrics.Assess(source, baseline, counts[source]))
	}

	response := FeedHealthResponse{
		Sources:   assessments,
		CheckedAt: now.UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
