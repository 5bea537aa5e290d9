// Package ingest consumes network-derived location estimates from a message
// queue and feeds them to the fleet engine as network-sourced reports.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/fleet"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
)

// Reporter accepts location reports for vehicles. Satisfied by the fleet
// engine.
type Reporter interface {
	Update(ctx context.Context, vehicleID int64, report model.LocationReport) (model.ResolvedState, error)
}

// estimateMessage is the queue payload published by the network estimator.
type estimateMessage struct {
	VehicleID int64   `json:"vehicle_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp"`
}

// Consumer reads network estimates from one queue until its context ends.
type Consumer struct {
	engine Reporter
	url    string
	queue  string
}

// NewConsumer creates a consumer bound to a broker URL and queue name.
func NewConsumer(engine Reporter, url, queue string) *Consumer {
	return &Consumer{engine: engine, url: url, queue: queue}
}

// Run dials the broker, declares the queue, and consumes deliveries until
// ctx is cancelled or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	conn, ch, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer ch.Close()

	queue, err := ch.QueueDeclare(
		c.queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	msgs, err := ch.Consume(
		queue.Name,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	log.Printf("Ingest: consuming network estimates from queue %s", queue.Name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

// connect dials the broker with backoff. Brokers routinely come up after the
// service in a compose stack, so a refused dial gets retried.
func (c *Consumer) connect(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	const maxRetries = 10
	retryDelay := time.Second

	for attempt := 1; ; attempt++ {
		conn, err := amqp.Dial(c.url)
		if err == nil {
			ch, err := conn.Channel()
			if err != nil {
				conn.Close()
				return nil, nil, fmt.Errorf("failed to open channel: %w", err)
			}
			if err := ch.Qos(10, 0, false); err != nil {
				ch.Close()
				conn.Close()
				return nil, nil, fmt.Errorf("failed to set qos: %w", err)
			}
			return conn, ch, nil
		}

		if attempt == maxRetries {
			return nil, nil, fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, err)
		}
		log.Printf("Ingest: broker connection attempt %d/%d failed: %v", attempt, maxRetries, err)

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(retryDelay):
			retryDelay = time.Duration(float64(retryDelay) * 1.5)
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}
		}
	}
}

// handle applies one delivery and settles it. Estimates the engine rejects
// on policy grounds are acked away; payloads that can never succeed are
// nacked without requeue; only transient failures requeue.
func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	vehicleID, report, err := decodeEstimate(msg.Body)
	if err != nil {
		log.Printf("Ingest: dropping malformed estimate: %v", err)
		_ = msg.Nack(false, false)
		return
	}

	_, err = c.engine.Update(ctx, vehicleID, report)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, fleet.ErrOffRoute):
		log.Printf("Ingest: dropping off-route estimate for vehicle %d", vehicleID)
		_ = msg.Ack(false)
	case errors.Is(err, fleet.ErrVehicleNotFound):
		log.Printf("Ingest: dropping estimate for unknown vehicle %d", vehicleID)
		_ = msg.Ack(false)
	case errors.Is(err, fleet.ErrInvalidReport),
		errors.Is(err, fleet.ErrFutureTimestamp),
		errors.Is(err, fleet.ErrBadVehicleID):
		log.Printf("Ingest: dropping unusable estimate for vehicle %d: %v", vehicleID, err)
		_ = msg.Nack(false, false)
	default:
		log.Printf("Ingest: failed to apply estimate for vehicle %d, requeueing: %v", vehicleID, err)
		_ = msg.Nack(false, true)
	}
}

func decodeEstimate(body []byte) (int64, model.LocationReport, error) {
	var msg estimateMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return 0, model.LocationReport{}, fmt.Errorf("failed to parse estimate: %w", err)
	}
	if msg.VehicleID == 0 {
		return 0, model.LocationReport{}, errors.New("estimate missing vehicle_id")
	}

	timestamp, err := time.Parse(time.RFC3339, msg.Timestamp)
	if err != nil {
		return 0, model.LocationReport{}, fmt.Errorf("failed to parse estimate timestamp: %w", err)
	}

	return msg.VehicleID, model.LocationReport{
		ID:         uuid.New(),
		Timestamp:  timestamp,
		Coordinate: geo.Coordinate{Latitude: msg.Latitude, Longitude: msg.Longitude},
		Source:     model.SourceNetwork,
	}, nil
}
