// Package api exposes the tracking engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/fleet"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
)

var validate = validator.New()

// VehicleEngine defines the engine operations the vehicle endpoints need.
type VehicleEngine interface {
	Read(vehicleID int64) (model.ResolvedState, error)
	List() []model.ResolvedState
	Update(ctx context.Context, vehicleID int64, report model.LocationReport) (model.ResolvedState, error)
	Board(ctx context.Context, vehicleID int64) (int, error)
	Leave(ctx context.Context, vehicleID int64) (int, error)
}

// VehicleHandler handles HTTP requests for vehicle state.
type VehicleHandler struct {
	engine VehicleEngine
}

// NewVehicleHandler creates a new handler over the given engine.
func NewVehicleHandler(engine VehicleEngine) *VehicleHandler {
	return &VehicleHandler{engine: engine}
}

// GetAllVehiclesResponse is the JSON response structure for GET /api/vehicles.
type GetAllVehiclesResponse struct {
	Vehicles    []model.ResolvedState `json:"vehicles"`
	Count       int                   `json:"count"`
	RetrievedAt time.Time             `json:"retrievedAt"`
}

// ErrorResponse is the JSON error response structure.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// reportRequest is the JSON body for POST /api/vehicles/{vehicleID}/reports.
// The server assigns the report identifier; clients only say where and when.
type reportRequest struct {
	Latitude  float64   `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64   `json:"longitude" validate:"min=-180,max=180"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Source    string    `json:"source" validate:"omitempty,oneof=user network"`
}

// congestionResponse is the JSON response for board and leave.
type congestionResponse struct {
	VehicleID  int64 `json:"vehicleId"`
	Congestion int   `json:"congestion"`
}

// GetAllVehicles handles GET /api/vehicles.
func (h *VehicleHandler) GetAllVehicles(w http.ResponseWriter, r *http.Request) {
	states := h.engine.List()

	response := GetAllVehiclesResponse{
		Vehicles:    states,
		Count:       len(states),
		RetrievedAt: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// GetVehicle handles GET /api/vehicles/{vehicleID}.
func (h *VehicleHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := vehicleIDParam(w, r)
	if !ok {
		return
	}

	state, err := h.engine.Read(vehicleID)
	if err != nil {
		writeEngineError(w, vehicleID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(state)
}

// PostReport handles POST /api/vehicles/{vehicleID}/reports.
func (h *VehicleHandler) PostReport(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := vehicleIDParam(w, r)
	if !ok {
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "Invalid JSON body",
		})
		return
	}
	if err := validate.Struct(req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "Invalid report",
			Details: map[string]interface{}{
				"validation": err.Error(),
			},
		})
		return
	}

	source := model.SourceUser
	if req.Source != "" {
		source = model.ReportSource(req.Source)
	}

	report := model.LocationReport{
		ID:        uuid.New(),
		Timestamp: req.Timestamp,
		Coordinate: geo.Coordinate{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		},
		Source: source,
	}

	state, err := h.engine.Update(r.Context(), vehicleID, report)
	if err != nil {
		writeEngineError(w, vehicleID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(state)
}

// PostBoard handles POST /api/vehicles/{vehicleID}/board.
func (h *VehicleHandler) PostBoard(w http.ResponseWriter, r *http.Request) {
	h.adjustCongestion(w, r, h.engine.Board)
}

// PostLeave handles POST /api/vehicles/{vehicleID}/leave.
func (h *VehicleHandler) PostLeave(w http.ResponseWriter, r *http.Request) {
	h.adjustCongestion(w, r, h.engine.Leave)
}

func (h *VehicleHandler) adjustCongestion(w http.ResponseWriter, r *http.Request, adjust func(context.Context, int64) (int, error)) {
	vehicleID, ok := vehicleIDParam(w, r)
	if !ok {
		return
	}

	count, err := adjust(r.Context(), vehicleID)
	if err != nil {
		writeEngineError(w, vehicleID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(congestionResponse{
		VehicleID:  vehicleID,
		Congestion: count,
	})
}

// vehicleIDParam parses the {vehicleID} path parameter. Negative values are
// legitimate: they identify anonymous clients.
func vehicleIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "vehicleID")
	vehicleID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "vehicleID must be an integer",
			Details: map[string]interface{}{
				"vehicleID": raw,
			},
		})
		return 0, false
	}
	return vehicleID, true
}

// writeEngineError maps engine errors onto HTTP statuses: rejected input is
// 400, unknown vehicles are 404, admissibility refusals are 409, and
// anything else is a 500 from the persistence layer.
func writeEngineError(w http.ResponseWriter, vehicleID int64, err error) {
	status := http.StatusInternalServerError
	message := "Failed to update vehicle"

	switch {
	case errors.Is(err, fleet.ErrBadVehicleID),
		errors.Is(err, fleet.ErrInvalidReport),
		errors.Is(err, fleet.ErrFutureTimestamp):
		status = http.StatusBadRequest
		message = "Invalid request"
	case errors.Is(err, fleet.ErrVehicleNotFound):
		status = http.StatusNotFound
		message = "Vehicle not found"
	case errors.Is(err, fleet.ErrOffRoute):
		status = http.StatusConflict
		message = "Report is not on any active route"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Details: map[string]interface{}{
			"vehicleID": vehicleID,
			"internal":  err.Error(),
		},
	})
}
