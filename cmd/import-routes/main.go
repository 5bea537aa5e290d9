package main

import (
	"context"
	"flag"
	"log"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/route"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/store"
)

// Imports YAML route definitions into the record store so the tracker can
// come up without the definition directory present.
func main() {
	// Command line flags
	dbPath := flag.String("db", "./data/tracker.db", "Path to SQLite database")
	databaseURL := flag.String("database-url", "", "Postgres connection URL (overrides -db)")
	routesDir := flag.String("routes-dir", "./data/routes", "Directory containing YAML route definitions")
	flag.Parse()

	ctx := context.Background()

	db, err := store.Open(ctx, *databaseURL, *dbPath)
	if err != nil {
		log.Fatalf("Failed to open record store: %v", err)
	}
	defer db.Close()

	// Ensure schema exists (creates tables if needed)
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	routes, err := route.LoadDir(*routesDir)
	if err != nil {
		log.Fatalf("Failed to read routes directory: %v", err)
	}
	if len(routes) == 0 {
		log.Fatalf("No route definitions found in %s", *routesDir)
	}

	imported, failed := 0, 0
	for i := range routes {
		r := &routes[i]
		log.Printf("Importing route '%s' (%s, %d path points)...", r.ID, r.Name, len(r.Path))

		if err := db.PutRoute(ctx, r); err != nil {
			log.Printf("ERROR importing %s: %v", r.ID, err)
			failed++
			continue
		}
		log.Printf("SUCCESS: %s imported", r.ID)
		imported++
	}

	log.Printf("Import complete! %d routes imported, %d failed", imported, failed)
}
