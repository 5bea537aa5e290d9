package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the tracker service
type Config struct {
	// HTTP server
	HTTPPort       string
	AllowedOrigins []string

	// Persistence. DatabaseURL selects Postgres when set; otherwise the
	// SQLite file at DatabasePath is used.
	DatabasePath string
	DatabaseURL  string

	// Fleet
	FleetIDs []int64

	// Engine timing
	SweepInterval     time.Duration
	RouteRecency      time.Duration
	NetworkReportTTL  time.Duration
	AnonymousRadiusM  float64

	// Telemetry feed (disabled when FeedURL is empty)
	FeedURL          string
	FeedPollInterval time.Duration

	// Routes
	RoutesDir            string
	RouteRefreshInterval time.Duration

	// Network estimate ingest (disabled when AMQPURL is empty)
	AMQPURL   string
	AMQPQueue string

	// Report-flow baselines
	BaselineInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	return &Config{
		// HTTP server
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "*")),

		// Persistence
		DatabasePath: getEnv("SQLITE_DATABASE", "./data/tracker.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		// Fleet
		FleetIDs: parseIDs(getEnv("FLEET_IDS", "")),

		// Engine timing
		SweepInterval:    time.Duration(getEnvInt("SWEEP_INTERVAL_MS", 1000)) * time.Millisecond,
		RouteRecency:     time.Duration(getEnvInt("ROUTE_RECENCY_SECONDS", 30)) * time.Second,
		NetworkReportTTL: time.Duration(getEnvInt("NETWORK_REPORT_TTL_SECONDS", 5)) * time.Second,
		AnonymousRadiusM: float64(getEnvInt("ANON_MATCH_RADIUS_METERS", 10)),

		// Telemetry feed
		FeedURL:          getEnv("FEED_URL", ""),
		FeedPollInterval: time.Duration(getEnvInt("FEED_POLL_SECONDS", 10)) * time.Second,

		// Routes
		RoutesDir:            getEnv("ROUTES_DIR", "./data/routes"),
		RouteRefreshInterval: time.Duration(getEnvInt("ROUTE_REFRESH_SECONDS", 60)) * time.Second,

		// Network estimate ingest
		AMQPURL:   getEnv("AMQP_URL", ""),
		AMQPQueue: getEnv("AMQP_QUEUE", "shuttle.location.estimates"),

		// Report-flow baselines
		BaselineInterval: time.Duration(getEnvInt("BASELINE_INTERVAL_SECONDS", 60)) * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseIDs reads a comma-separated list of fleet vehicle IDs.
// Unparseable entries are dropped rather than failing startup.
func parseIDs(value string) []int64 {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		if id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
