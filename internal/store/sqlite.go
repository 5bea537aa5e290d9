package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/metrics"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/route"
)

// schemaSQL is the single source of truth for the SQLite schema.
// It is embedded at compile time from schema.sql.
//
//go:embed schema.sql
var schemaSQL string

// SQLite is the embedded single-file backend.
type SQLite struct {
	conn    *sql.DB
	writeMu sync.Mutex // Serializes writes; SQLite allows only one writer at a time
}

// OpenSQLite opens (and creates if needed) a SQLite database at path with
// WAL mode enabled.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time. A single connection plus the
	// write mutex prevents "database is locked" errors when the sweep runs
	// concurrently with report handling.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL", // Faster writes, still safe with WAL
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			log.Printf("Warning: failed to set %s: %v", pragma, err)
		}
	}

	log.Printf("Connected to SQLite database: %s", path)
	return &SQLite{conn: conn}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// EnsureSchema creates tables if they don't exist, using the embedded
// schema.sql as the single source of truth.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Println("Database schema ensured (from embedded schema.sql)")
	return nil
}

// GetVehicle loads one vehicle record. Returns ErrNotFound when the ID is
// unknown.
func (s *SQLite) GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error) {
	query := `
		SELECT id, route_id, distance_meters, congestion, reports, trail, updated_at
		FROM vehicles
		WHERE id = ?
	`

	v, err := scanVehicle(s.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicle %d: %w", id, err)
	}
	return v, nil
}

// PutVehicle upserts a whole vehicle record in a single row write.
func (s *SQLite) PutVehicle(ctx context.Context, v *model.Vehicle) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

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
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			route_id = excluded.route_id,
			distance_meters = excluded.distance_meters,
			congestion = excluded.congestion,
			reports = excluded.reports,
			trail = excluded.trail,
			updated_at = excluded.updated_at
	`

	_, err = s.conn.ExecContext(ctx, query,
		v.ID,
		v.RouteID,
		v.DistanceMeters,
		v.Congestion,
		string(reportsJSON),
		string(trailJSON),
		v.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vehicle %d: %w", v.ID, err)
	}
	return nil
}

// ListVehicles loads every vehicle record.
func (s *SQLite) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	query := `
		SELECT id, route_id, distance_meters, congestion, reports, trail, updated_at
		FROM vehicles
		ORDER BY id
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []model.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
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
func (s *SQLite) PutRoute(ctx context.Context, r *route.Route) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

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
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			threshold_meters = excluded.threshold_meters,
			schedule = excluded.schedule,
			path = excluded.path,
			updated_at = excluded.updated_at
	`

	_, err = s.conn.ExecContext(ctx, query,
		r.ID,
		r.Name,
		r.Color,
		r.ThresholdMeters,
		string(scheduleJSON),
		string(pathJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert route %s: %w", r.ID, err)
	}
	return nil
}

// ListRoutes loads every persisted route definition.
func (s *SQLite) ListRoutes(ctx context.Context) ([]route.Route, error) {
	query := `
		SELECT id, name, color, threshold_meters, schedule, path
		FROM routes
		ORDER BY id
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var routes []route.Route
	for rows.Next() {
		var (
			r            route.Route
			scheduleJSON string
			pathJSON     string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Color, &r.ThresholdMeters, &scheduleJSON, &pathJSON); err != nil {
			return nil, fmt.Errorf("failed to scan route row: %w", err)
		}
		if err := json.Unmarshal([]byte(scheduleJSON), &r.Schedule); err != nil {
			return nil, fmt.Errorf("failed to decode schedule for route %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(pathJSON), &r.Path); err != nil {
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
func (s *SQLite) GetBaseline(ctx context.Context, source model.ReportSource, hourOfDay, dayOfWeek int) (*metrics.Baseline, error) {
	query := `
		SELECT source, hour_of_day, day_of_week, count_mean, count_stddev, sample_count
		FROM report_baselines
		WHERE source = ? AND hour_of_day = ? AND day_of_week = ?
	`

	var b metrics.Baseline
	err := s.conn.QueryRowContext(ctx, query, string(source), hourOfDay, dayOfWeek).Scan(
		&b.Source,
		&b.HourOfDay,
		&b.DayOfWeek,
		&b.CountMean,
		&b.CountStdDev,
		&b.SampleCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query baseline: %w", err)
	}
	return &b, nil
}

// PutBaseline upserts a baseline record.
func (s *SQLite) PutBaseline(ctx context.Context, b *metrics.Baseline) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
		INSERT INTO report_baselines (source, hour_of_day, day_of_week, count_mean, count_stddev, sample_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, hour_of_day, day_of_week) DO UPDATE SET
			count_mean = excluded.count_mean,
			count_stddev = excluded.count_stddev,
			sample_count = excluded.sample_count,
			updated_at = excluded.updated_at
	`

	_, err := s.conn.ExecContext(ctx, query,
		string(b.Source),
		b.HourOfDay,
		b.DayOfWeek,
		b.CountMean,
		b.CountStdDev,
		b.SampleCount,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert baseline: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row rowScanner) (*model.Vehicle, error) {
	var (
		v           model.Vehicle
		reportsJSON string
		trailJSON   string
		updatedAt   string
	)
	err := row.Scan(
		&v.ID,
		&v.RouteID,
		&v.DistanceMeters,
		&v.Congestion,
		&reportsJSON,
		&trailJSON,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(reportsJSON), &v.Reports); err != nil {
		return nil, fmt.Errorf("failed to decode reports for vehicle %d: %w", v.ID, err)
	}
	if err := json.Unmarshal([]byte(trailJSON), &v.Trail); err != nil {
		return nil, fmt.Errorf("failed to decode trail for vehicle %d: %w", v.ID, err)
	}

	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for vehicle %d: %w", v.ID, err)
	}
	v.UpdatedAt = t

	return &v, nil
}
