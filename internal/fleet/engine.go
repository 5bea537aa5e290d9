// Package fleet owns vehicle state: it merges location reports from the
// hardware feed, rider phones, and network estimates, resolves them into a
// single position per shuttle, tracks route membership and distance along
// the route, and counts onboard riders.
package fleet

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/route"
)

// Store is the slice of the record store the engine needs. Vehicle writes
// are whole-record: a record is never partially persisted.
type Store interface {
	PutVehicle(ctx context.Context, v *model.Vehicle) error
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
}

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	// Horizons give each report source its freshness window.
	Horizons Horizons
	// RouteRecency is how old a resolution may be before the vehicle is
	// treated as off its route.
	RouteRecency time.Duration
	// AnonymousRadiusMeters bounds proximity matching for reports that
	// arrive with a negative (anonymous) identifier.
	AnonymousRadiusMeters float64
}

// slot pairs a vehicle record with its lock. All read-modify-write cycles
// for a vehicle hold slot.mu; the record itself is replaced, never mutated,
// so a *model.Vehicle obtained under the lock stays safe to read after.
type slot struct {
	mu sync.Mutex
	v  *model.Vehicle
}

// Engine is the single owner of live vehicle state.
type Engine struct {
	store  Store
	routes *route.Registry

	horizons        Horizons
	routeRecency    time.Duration
	anonymousRadius float64

	mu    sync.RWMutex
	slots map[int64]*slot

	// sweepMu makes the periodic sweep single-flight.
	sweepMu sync.Mutex

	now func() time.Time
}

// NewEngine builds an engine around a store and a route registry.
func NewEngine(store Store, routes *route.Registry, opts Options) *Engine {
	if opts.Horizons.System <= 0 {
		opts.Horizons.System = 10 * time.Second
	}
	if opts.Horizons.Network <= 0 {
		opts.Horizons.Network = 5 * time.Second
	}
	if opts.Horizons.User <= 0 {
		opts.Horizons.User = model.UserReportTTL
	}
	if opts.RouteRecency <= 0 {
		opts.RouteRecency = 30 * time.Second
	}
	if opts.AnonymousRadiusMeters <= 0 {
		opts.AnonymousRadiusMeters = 10
	}

	return &Engine{
		store:           store,
		routes:          routes,
		horizons:        opts.Horizons,
		routeRecency:    opts.RouteRecency,
		anonymousRadius: opts.AnonymousRadiusMeters,
		slots:           make(map[int64]*slot),
		now:             time.Now,
	}
}

// Bootstrap loads persisted vehicles into memory and creates records for
// configured fleet IDs that do not exist yet.
func (e *Engine) Bootstrap(ctx context.Context, fleetIDs []int64) error {
	vehicles, err := e.store.ListVehicles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load vehicles: %w", err)
	}

	e.mu.Lock()
	for i := range vehicles {
		v := vehicles[i]
		e.slots[v.ID] = &slot{v: &v}
	}
	e.mu.Unlock()

	created := 0
	for _, id := range fleetIDs {
		if id == 0 {
			continue
		}
		if _, ok := e.slot(id); ok {
			continue
		}
		v := &model.Vehicle{ID: id, UpdatedAt: e.now()}
		if err := e.store.PutVehicle(ctx, v); err != nil {
			return fmt.Errorf("failed to create vehicle %d: %w", id, err)
		}
		e.insertSlot(v)
		created++
	}

	log.Printf("Engine: loaded %d vehicles, created %d from fleet config", len(vehicles), created)
	return nil
}

// Read returns the current fused state for a vehicle.
func (e *Engine) Read(vehicleID int64) (model.ResolvedState, error) {
	if vehicleID == 0 {
		return model.ResolvedState{}, ErrBadVehicleID
	}
	s, ok := e.slot(vehicleID)
	if !ok {
		return model.ResolvedState{}, ErrVehicleNotFound
	}

	s.mu.Lock()
	v := s.v
	s.mu.Unlock()

	return e.stateOf(v), nil
}

// List returns the fused state of every vehicle, ordered by identifier.
func (e *Engine) List() []model.ResolvedState {
	slots := e.snapshotSlots()

	states := make([]model.ResolvedState, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		v := s.v
		s.mu.Unlock()
		states = append(states, e.stateOf(v))
	}

	sort.Slice(states, func(i, j int) bool { return states[i].VehicleID < states[j].VehicleID })
	return states
}

// Update merges one location report into a vehicle's history and returns the
// fused state. Rider and network reports must land on a schedule-active
// route; the hardware feed bypasses that check because shuttles legitimately
// sit off route between runs.
func (e *Engine) Update(ctx context.Context, vehicleID int64, report model.LocationReport) (model.ResolvedState, error) {
	if vehicleID == 0 {
		return model.ResolvedState{}, ErrBadVehicleID
	}
	if err := report.Validate(); err != nil {
		return model.ResolvedState{}, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}

	now := e.now()
	if report.Timestamp.After(now.Add(model.ClockTolerance)) {
		return model.ResolvedState{}, ErrFutureTimestamp
	}

	actives := e.routes.ActiveAt(now)
	if report.Source != model.SourceSystem && !onAnyRoute(report.Coordinate, now, actives) {
		return model.ResolvedState{}, ErrOffRoute
	}

	s, err := e.slotFor(ctx, vehicleID, report.Coordinate, now)
	if err != nil {
		return model.ResolvedState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.v.Clone()
	next.Reports = append(next.Reports, report)
	advance(next, now, actives, e.horizons, e.routeRecency)
	next.UpdatedAt = now

	if err := e.store.PutVehicle(ctx, next); err != nil {
		return model.ResolvedState{}, fmt.Errorf("failed to persist vehicle %d: %w", next.ID, err)
	}
	s.v = next

	return e.stateOf(next), nil
}

// Board counts one rider onto the vehicle. A vehicle that has never seen a
// boarding starts from zero.
func (e *Engine) Board(ctx context.Context, vehicleID int64) (int, error) {
	return e.adjustCongestion(ctx, vehicleID, 1)
}

// Leave counts one rider off the vehicle. Without a known count a lone leave
// lands at zero, and the count never goes negative.
func (e *Engine) Leave(ctx context.Context, vehicleID int64) (int, error) {
	return e.adjustCongestion(ctx, vehicleID, -1)
}

func (e *Engine) adjustCongestion(ctx context.Context, vehicleID int64, delta int) (int, error) {
	if vehicleID == 0 {
		return 0, ErrBadVehicleID
	}
	s, ok := e.slot(vehicleID)
	if !ok {
		return 0, ErrVehicleNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.v.Clone()
	count := 0
	if next.Congestion != nil {
		count = *next.Congestion
	} else if delta < 0 {
		count = 1
	}
	count += delta
	if count < 0 {
		count = 0
	}
	next.Congestion = &count
	next.UpdatedAt = e.now()

	if err := e.store.PutVehicle(ctx, next); err != nil {
		return 0, fmt.Errorf("failed to persist vehicle %d: %w", next.ID, err)
	}
	s.v = next

	return count, nil
}

// FreshReportCounts returns how many usable reports each source currently
// holds across the fleet. Feeds the report-flow baselines and the health
// surface.
func (e *Engine) FreshReportCounts() map[model.ReportSource]int {
	now := e.now()
	counts := map[model.ReportSource]int{
		model.SourceSystem:  0,
		model.SourceUser:    0,
		model.SourceNetwork: 0,
	}

	for _, s := range e.snapshotSlots() {
		s.mu.Lock()
		reports := s.v.Reports
		s.mu.Unlock()

		for i := range reports {
			if fresh(&reports[i], now, e.horizons) {
				counts[reports[i].Source]++
			}
		}
	}
	return counts
}

// stateOf resolves a vehicle record into the caller-facing fused state.
// Safe on any record obtained under its slot lock: records are replaced,
// never mutated.
func (e *Engine) stateOf(v *model.Vehicle) model.ResolvedState {
	return model.ResolvedState{
		VehicleID:      v.ID,
		Location:       Resolve(v.Reports, e.now(), e.horizons),
		RouteID:        v.RouteID,
		DistanceMeters: v.DistanceMeters,
		Congestion:     v.Congestion,
	}
}

func (e *Engine) slot(id int64) (*slot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.slots[id]
	return s, ok
}

// insertSlot registers a vehicle record, returning the existing slot if a
// concurrent caller got there first.
func (e *Engine) insertSlot(v *model.Vehicle) *slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.slots[v.ID]; ok {
		return existing
	}
	s := &slot{v: v}
	e.slots[v.ID] = s
	return s
}

func (e *Engine) snapshotSlots() []*slot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	slots := make([]*slot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	return slots
}

// slotFor locates the record a report belongs to. Positive identifiers must
// already exist. Negative identifiers are anonymous clients: match the
// nearest vehicle whose resolved location sits within the anonymous radius,
// or fall back to a record keyed by the anonymous identifier itself.
func (e *Engine) slotFor(ctx context.Context, vehicleID int64, c geo.Coordinate, now time.Time) (*slot, error) {
	if vehicleID > 0 {
		s, ok := e.slot(vehicleID)
		if !ok {
			return nil, ErrVehicleNotFound
		}
		return s, nil
	}

	if s := e.matchByLocation(c, now); s != nil {
		return s, nil
	}

	if s, ok := e.slot(vehicleID); ok {
		return s, nil
	}

	v := &model.Vehicle{ID: vehicleID, UpdatedAt: now}
	if err := e.store.PutVehicle(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to create vehicle %d: %w", vehicleID, err)
	}
	log.Printf("Engine: created record for anonymous client %d", vehicleID)
	return e.insertSlot(v), nil
}

// matchByLocation finds the vehicle whose resolved location is closest to c
// within the anonymous radius. Distance ties fall to the lower vehicle ID.
func (e *Engine) matchByLocation(c geo.Coordinate, now time.Time) *slot {
	var best *slot
	bestDist := math.MaxFloat64
	bestID := int64(math.MaxInt64)

	for _, s := range e.snapshotSlots() {
		s.mu.Lock()
		v := s.v
		s.mu.Unlock()

		resolved := Resolve(v.Reports, now, e.horizons)
		if resolved == nil {
			continue
		}
		d := geo.Distance(resolved.Coordinate, c)
		if d > e.anonymousRadius {
			continue
		}
		if d < bestDist || (d == bestDist && v.ID < bestID) {
			best = s
			bestDist = d
			bestID = v.ID
		}
	}
	return best
}
