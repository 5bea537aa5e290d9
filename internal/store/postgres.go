package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/metrics"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/route"
)

// Postgres is the server-backed store used when DATABASE_URL is set.
// Postgres handles concurrent writers itself, so unlike the SQLite backend
// there is no write mutex here.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pgx pool to databaseURL.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Connected to Postgres database")
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Ping verifies the database connection is alive.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// EnsureSchema creates tables if they don't exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS vehicles (
			id              BIGINT PRIMARY KEY,
			route_id        TEXT,
			distance_meters DOUBLE PRECISION NOT NULL DEFAULT 0,
			congestion      INTEGER,
			reports         JSONB NOT NULL DEFAULT '[]',
			trail           JSONB NOT NULL DEFAULT '[]',
			updated_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS routes (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL DEFAULT '',
			color            TEXT NOT NULL DEFAULT '',
			threshold_meters DOUBLE PRECISION NOT NULL,
			schedule         JSONB NOT NULL DEFAULT '{}',
			path             JSONB NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS report_baselines (
			source       TEXT NOT NULL,
			hour_of_day  INTEGER NOT NULL,
			day_of_week  INTEGER NOT NULL,
			count_mean   DOUBLE PRECISION NOT NULL,
			count_stddev DOUBLE PRECISION NOT NULL,
			sample_count INTEGER NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (source, hour_of_day, day_of_week)
		)`,
	}

	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	log.Println("Database schema ensured")
	return nil
}

// GetVehicle loads one vehicle record. Returns ErrNotFound when the ID is
// unknown.
func (p *Postgres) GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error) {
	query := `
		SELECT id, route_id, distance_meters, congestion, reports, trail, updated_at
		FROM vehicles
		WHERE id = $1
	`

	v, err := scanVehiclePg(p.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicle %d: %w", id, err)
	}
	return v, nil
}

// PutVehicle upserts a whole vehicle record in a single row write.
func (p *Postgres) PutVehicle(ctx context.Context, v *model.Vehicle) error {
	reportsJSON, err := json.Marshal(v.Reports)
	if err != nil {
		return fmt.Errorf("failed to encode reports for vehicle %d: %w", v.ID, err)
	}
	trailJSON, err := json.Marshal(v.Trail)
	if err != nil {
		return fmt.Errorf("failed to encode trail for vehicle %d: %w", v.ID, err)
	}

	query := `
		INSERT INTO vehicles (id, route_id, distance_meters, congestion, reports, trail, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			route_id = EXCLUDED.route_id,
			distance_meters = EXCLUDED.distance_meters,
			congestion = EXCLUDED.congestion,
			reports = EXCLUDED.reports,
			trail = EXCLUDED.trail,
			updated_at = EXCLUDED.updated_at
	`

	_, err = p.pool.Exec(ctx, query,
		v.ID,
		v.RouteID,
		v.DistanceMeters,
		v.Congestion,
		reportsJSON,
		trailJSON,
		v.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vehicle %d: %w", v.ID, err)
	}
	return nil
}

// ListVehicles loads every vehicle record.
func (p *Postgres) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	query := `
		SELECT id, route_id, distance_meters, congestion, reports, trail, updated_at
		FROM vehicles
		ORDER BY id
	`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []model.Vehicle
	for rows.Next() {
		v, err := scanVehiclePg(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle row: %w", err)
		}
		vehicles = append(vehicles, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vehicle rows: %w", err)
	}
	return vehicles, nil
}

// PutRoute upserts a route definition.
func (p *Postgres) PutRoute(ctx context.Context, r *route.Route) error {
	scheduleJSON, err := json.Marshal(r.Schedule)
	if err != nil {
		return fmt.Errorf("failed to encode schedule for route %s: %w", r.ID, err)
	}
	pathJSON, err := json.Marshal(r.Path)
	if err != nil {
		return fmt.Errorf("failed to encode path for route %s: %w", r.ID, err)
	}

	query := `
		INSERT INTO routes (id, name, color, threshold_meters, schedule, path, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			color = EXCLUDED.color,
			threshold_meters = EXCLUDED.threshold_meters,
			schedule = EXCLUDED.schedule,
			path = EXCLUDED.path,
			updated_at = EXCLUDED.updated_at
	`

	_, err = p.pool.Exec(ctx, query,
		r.ID,
		r.Name,
		r.Color,
		r.ThresholdMeters,
		scheduleJSON,
		pathJSON,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert route %s: %w", r.ID, err)
	}
	return nil
}

// ListRoutes loads every persisted route definition.
func (p *Postgres) ListRoutes(ctx context.Context) ([]route.Route, error) {
	query := `
		SELECT id, name, color, threshold_meters, schedule, path
		FROM routes
		ORDER BY id
	`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var routes []route.Route
	for rows.Next() {
		var (
			r            route.Route
			scheduleJSON []byte
			pathJSON     []byte
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Color, &r.ThresholdMeters, &scheduleJSON, &pathJSON); err != nil {
			return nil, fmt.Errorf("failed to scan route row: %w", err)
		}
		if err := json.Unmarshal(scheduleJSON, &r.Schedule); err != nil {
			return nil, fmt.Errorf("failed to decode schedule for route %s: %w", r.ID, err)
		}
		if err := json.Unmarshal(pathJSON, &r.Path); err != nil {
			return nil, fmt.Errorf("failed to decode path for route %s: %w", r.ID, err)
		}
		routes = append(routes, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route rows: %w", err)
	}
	return routes, nil
}

// GetBaseline retrieves the learned baseline for a source, hour, and day.
// A missing cell returns (nil, nil).
func (p *Postgres) GetBaseline(ctx context.Context, source model.ReportSource, hourOfDay, dayOfWeek int) (*metrics.Baseline, error) {
	query := `
		SELECT source, hour_of_day, day_of_week, count_mean, count_stddev, sample_count
		FROM report_baselines
		WHERE source = $1 AND hour_of_day = $2 AND day_of_week = $3
	`

	var b metrics.Baseline
	err := p.pool.QueryRow(ctx, query, string(source), hourOfDay, dayOfWeek).Scan(
		&b.Source,
		&b.HourOfDay,
		&b.DayOfWeek,
		&b.CountMean,
		&b.CountStdDev,
		&b.SampleCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query baseline: %w", err)
	}
	return &b, nil
}

// PutBaseline upserts a baseline record.
func (p *Postgres) PutBaseline(ctx context.Context, b *metrics.Baseline) error {
	query := `
		INSERT INTO report_baselines (source, hour_of_day, day_of_week, count_mean, count_stddev, sample_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source, hour_of_day, day_of_week) DO UPDATE SET
			count_mean = EXCLUDED.count_mean,
			count_stddev = EXCLUDED.count_stddev,
			sample_count = EXCLUDED.sample_count,
			updated_at = EXCLUDED.updated_at
	`

	_, err := p.pool.Exec(ctx, query,
		string(b.Source),
		b.HourOfDay,
		b.DayOfWeek,
		b.CountMean,
		b.CountStdDev,
		b.SampleCount,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert baseline: %w", err)
	}
	return nil
}

type pgRowScanner interface {
	Scan(dest ...any) error
}

func scanVehiclePg(row pgRowScanner) (*model.Vehicle, error) {
	var (
		v           model.Vehicle
		reportsJSON []byte
		trailJSON   []byte
	)
	err := row.Scan(
		&v.ID,
		&v.RouteID,
		&v.DistanceMeters,
		&v.Congestion,
		&reportsJSON,
		&trailJSON,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(reportsJSON, &v.Reports); err != nil {
		return nil, fmt.Errorf("failed to decode reports for vehicle %d: %w", v.ID, err)
	}
	if err := json.Unmarshal(trailJSON, &v.Trail); err != nil {
		return nil, fmt.Errorf("failed to decode trail for vehicle %d: %w", v.ID, err)
	}

	return &v, nil
}
