package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/api"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/config"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/fleet"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/ingest"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/metrics"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/route"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/store"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/telemetry"
)

func main() {
	log.Println("Starting Shuttle Tracker Service...")

	// Load .env files from repository root
	// Load base .env first, then .env.local (which overrides for local development)
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local") // Overload forces override of existing values

	cfg := config.Load()
	log.Printf("Config loaded: sweep=%v, route_recency=%v, network_ttl=%v", cfg.SweepInterval, cfg.RouteRecency, cfg.NetworkReportTTL)

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Initialize Record Store
	// ═══════════════════════════════════════════════════════
	startupCtx := context.Background()

	db, err := store.Open(startupCtx, cfg.DatabaseURL, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open record store: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(startupCtx); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}
	log.Println("Record store initialized")

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Load Routes
	// ═══════════════════════════════════════════════════════
	registry := route.NewRegistry()
	if err := registry.LoadFrom(startupCtx, db); err != nil {
		log.Printf("Warning: failed to load persisted routes: %v", err)
		// Continue anyway - route files may still populate the registry
	}
	refreshRoutes(startupCtx, db, registry, cfg.RoutesDir)
	log.Printf("Routes loaded: %d registered", registry.Len())

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Initialize Tracking Engine
	// ═══════════════════════════════════════════════════════
	engine := fleet.NewEngine(db, registry, fleet.Options{
		Horizons: fleet.Horizons{
			Network: cfg.NetworkReportTTL,
		},
		RouteRecency:          cfg.RouteRecency,
		AnonymousRadiusMeters: cfg.AnonymousRadiusM,
	})

	if err := engine.Bootstrap(startupCtx, cfg.FleetIDs); err != nil {
		log.Fatalf("Failed to bootstrap tracking engine: %v", err)
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 4: Start Background Loops
	// ═══════════════════════════════════════════════════════
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Eviction and accrual sweep
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				engine.Sweep(ctx)
			case <-ctx.Done():
				log.Println("Sweep loop stopped")
				return
			}
		}
	}()

	// Route definition refresh
	go func() {
		ticker := time.NewTicker(cfg.RouteRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				refreshRoutes(ctx, db, registry, cfg.RoutesDir)
			case <-ctx.Done():
				log.Println("Route refresh loop stopped")
				return
			}
		}
	}()

	// Hardware feed polling
	if cfg.FeedURL != "" {
		poller := telemetry.NewPoller(engine, cfg.FeedURL)
		go func() {
			log.Println("Running initial feed poll...")
			pollFeed(ctx, poller)

			ticker := time.NewTicker(cfg.FeedPollInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					pollFeed(ctx, poller)
				case <-ctx.Done():
					log.Println("Feed polling loop stopped")
					return
				}
			}
		}()
	} else {
		log.Println("FEED_URL not set, hardware feed polling disabled")
	}

	// Network estimate ingest
	if cfg.AMQPURL != "" {
		consumer := ingest.NewConsumer(engine, cfg.AMQPURL, cfg.AMQPQueue)
		go func() {
			for {
				err := consumer.Run(ctx)
				if ctx.Err() != nil {
					log.Println("Ingest loop stopped")
					return
				}
				log.Printf("Ingest: consumer stopped: %v, restarting in 5s", err)
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
					log.Println("Ingest loop stopped")
					return
				}
			}
		}()
	} else {
		log.Println("AMQP_URL not set, network estimate ingest disabled")
	}

	// Report-flow baseline learning
	learner := metrics.NewLearner(db)
	go func() {
		ticker := time.NewTicker(cfg.BaselineInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				learner.Observe(ctx, time.Now(), engine.FreshReportCounts())
			case <-ctx.Done():
				log.Println("Baseline loop stopped")
				return
			}
		}
	}()

	// ═══════════════════════════════════════════════════════
	// PHASE 5: Start HTTP Server
	// ═══════════════════════════════════════════════════════
	vehicleHandler := api.NewVehicleHandler(engine)
	routeHandler := api.NewRouteHandler(registry)
	healthHandler := api.NewHealthHandler(db, engine, db)

	router := api.NewRouter(vehicleHandler, routeHandler, healthHandler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("API server starting on :%s", cfg.HTTPPort)
		log.Println("Vehicle endpoints:")
		log.Println("  GET  /api/vehicles")
		log.Println("  GET  /api/vehicles/{vehicleID}")
		log.Println("  POST /api/vehicles/{vehicleID}/reports")
		log.Println("  POST /api/vehicles/{vehicleID}/board")
		log.Println("  POST /api/vehicles/{vehicleID}/leave")
		log.Println("Route endpoints:")
		log.Println("  GET  /api/routes")
		log.Println("Health:")
		log.Println("  GET  /health (with database check)")
		log.Println("  GET  /api/health/feed")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// ═══════════════════════════════════════════════════════
	// PHASE 6: Graceful Shutdown
	// ═══════════════════════════════════════════════════════
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Give goroutines time to finish
	time.Sleep(100 * time.Millisecond)
	log.Println("Goodbye!")
}

// refreshRoutes re-reads the route definition directory, persisting and
// registering every parseable file. A missing directory is fine; routes may
// live only in the store.
func refreshRoutes(ctx context.Context, db store.Store, registry *route.Registry, dir string) {
	routes, err := route.LoadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		log.Printf("Routes: refresh failed: %v", err)
		return
	}

	for i := range routes {
		if err := db.PutRoute(ctx, &routes[i]); err != nil {
			log.Printf("Routes: failed to persist %s: %v", routes[i].ID, err)
			continue
		}
		registry.Upsert(routes[i])
	}
}

func pollFeed(ctx context.Context, poller *telemetry.Poller) {
	if err := poller.Poll(ctx); err != nil {
		log.Printf("Feed poll error: %v", err)
	}
}
