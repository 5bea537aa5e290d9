// Package store persists vehicle records, routes, and report baselines.
// Two backends share the same shape: an embedded SQLite file for
// single-node deployments and Postgres when DATABASE_URL points at a
// server.
package store

import (
	"context"
	"errors"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/metrics"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/route"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence surface shared by both backends. Vehicle rows
// are written whole: the engine treats a successful PutVehicle as the
// commit point for an in-memory record swap.
type Store interface {
	GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error)
	PutVehicle(ctx context.Context, v *model.Vehicle) error
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)

	PutRoute(ctx context.Context, r *route.Route) error
	ListRoutes(ctx context.Context) ([]route.Route, error)

	GetBaseline(ctx context.Context, source model.ReportSource, hourOfDay, dayOfWeek int) (*metrics.Baseline, error)
	PutBaseline(ctx context.Context, b *metrics.Baseline) error

	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open picks a backend: Postgres when databaseURL is set, otherwise SQLite
// at sqlitePath.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Store, error) {
	if databaseURL != "" {
		return OpenPostgres(ctx, databaseURL)
	}
	return OpenSQLite(sqlitePath)
}
