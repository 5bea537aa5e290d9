// Package telemetry polls the onboard hardware's GTFS-RT vehicle positions
// feed and turns each entity into a system-sourced location report.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
)

// Reporter accepts location reports for vehicles. Satisfied by the fleet
// engine.
type Reporter interface {
	Update(ctx context.Context, vehicleID int64, report model.LocationReport) (model.ResolvedState, error)
}

// Poller fetches the hardware feed and hands its positions to the engine.
type Poller struct {
	engine  Reporter
	feedURL string
	client  *http.Client
	now     func() time.Time
}

// NewPoller creates a poller against the given feed URL.
func NewPoller(engine Reporter, feedURL string) *Poller {
	return &Poller{
		engine:  engine,
		feedURL: feedURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

// Poll fetches the feed once and applies every usable entity. Entities the
// engine rejects are logged and skipped; one bad vehicle never blocks the
// rest of the fleet.
func (p *Poller) Poll(ctx context.Context) error {
	feed, err := p.fetchFeed(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch vehicle positions: %w", err)
	}

	reports := convertFeed(feed, p.now())
	if len(reports) == 0 {
		log.Println("Telemetry: no vehicle positions found")
		return nil
	}

	applied := 0
	for _, r := range reports {
		if _, err := p.engine.Update(ctx, r.vehicleID, r.report); err != nil {
			log.Printf("Telemetry: skipping report for vehicle %d: %v", r.vehicleID, err)
			continue
		}
		applied++
	}

	log.Printf("Telemetry: polled %d vehicles, applied %d", len(reports), applied)
	return nil
}

// feedReport pairs a converted report with the fleet identifier it targets.
type feedReport struct {
	vehicleID int64
	report    model.LocationReport
}

// convertFeed maps feed entities to location reports. Entities without a
// position are dropped silently; entities whose vehicle descriptor is not a
// numeric fleet identifier are dropped with a log line. Entities without
// their own timestamp take the poll time.
func convertFeed(feed *gtfs.FeedMessage, polledAt time.Time) []feedReport {
	var reports []feedReport
	for _, entity := range feed.Entity {
		if entity.Vehicle == nil {
			continue
		}
		vehicle := entity.Vehicle

		if vehicle.Position == nil || vehicle.Position.Latitude == nil || vehicle.Position.Longitude == nil {
			continue
		}

		if vehicle.Vehicle == nil || vehicle.Vehicle.Id == nil {
			continue
		}
		id, err := strconv.ParseInt(*vehicle.Vehicle.Id, 10, 64)
		if err != nil {
			log.Printf("Telemetry: skipping entity with non-numeric vehicle id %q", *vehicle.Vehicle.Id)
			continue
		}

		timestamp := polledAt
		if vehicle.Timestamp != nil {
			timestamp = time.Unix(int64(*vehicle.Timestamp), 0).UTC()
		}

		reports = append(reports, feedReport{
			vehicleID: id,
			report: model.LocationReport{
				ID:        uuid.New(),
				Timestamp: timestamp,
				Coordinate: geo.Coordinate{
					Latitude:  float64(*vehicle.Position.Latitude),
					Longitude: float64(*vehicle.Position.Longitude),
				},
				Source: model.SourceSystem,
			},
		})
	}
	return reports
}

// fetchFeed fetches and decodes the GTFS-RT feed.
func (p *Poller) fetchFeed(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("failed to parse protobuf: %w", err)
	}

	return feed, nil
}
