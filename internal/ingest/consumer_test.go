package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/fleet"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
)

type stubReporter struct {
	err     error
	applied []int64
}

func (s *stubReporter) Update(_ context.Context, vehicleID int64, _ model.LocationReport) (model.ResolvedState, error) {
	if s.err != nil {
		return model.ResolvedState{}, s.err
	}
	s.applied = append(s.applied, vehicleID)
	return model.ResolvedState{VehicleID: vehicleID}, nil
}

// fakeAcknowledger records how a delivery was settled.
type fakeAcknowledger struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (f *fakeAcknowledger) Ack(_ uint64, _ bool) error { f.acked = true; return nil }
func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}
func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func estimateBody(vehicleID int64, lat, lng float64, ts time.Time) []byte {
	return []byte(fmt.Sprintf(
		`{"vehicle_id": %d, "latitude": %v, "longitude": %v, "timestamp": %q}`,
		vehicleID, lat, lng, ts.Format(time.RFC3339),
	))
}

func TestDecodeEstimate(t *testing.T) {
	at := time.Date(2026, time.August, 17, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		body    []byte
		wantID  int64
		wantErr bool
	}{
		{"valid estimate", estimateBody(7, 42.73, -73.68, at), 7, false},
		{"garbage payload", []byte("not json"), 0, true},
		{"missing vehicle id", []byte(`{"latitude": 42.73, "longitude": -73.68, "timestamp": "2026-08-17T12:00:00Z"}`), 0, true},
		{"bad timestamp", []byte(`{"vehicle_id": 7, "latitude": 42.73, "longitude": -73.68, "timestamp": "noon"}`), 0, true},
		{"missing timestamp", []byte(`{"vehicle_id": 7, "latitude": 42.73, "longitude": -73.68}`), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vehicleID, report, err := decodeEstimate(tt.body)
			if tt.wantErr {
				if err == nil {
					t.Fatal("decode succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decode returned error: %v", err)
			}
			if vehicleID != tt.wantID {
				t.Fatalf("vehicle id = %d, want %d", vehicleID, tt.wantID)
			}
			if report.Source != model.SourceNetwork {
				t.Fatalf("source = %q, want %q", report.Source, model.SourceNetwork)
			}
			if !report.Timestamp.Equal(at) {
				t.Fatalf("timestamp = %v, want %v", report.Timestamp, at)
			}
			if err := report.Validate(); err != nil {
				t.Fatalf("decoded report does not validate: %v", err)
			}
		})
	}
}

// TestHandleSettlement checks the ack/nack taxonomy: policy rejections are
// consumed, poison payloads are dropped without requeue, and only transient
// failures go back on the queue.
func TestHandleSettlement(t *testing.T) {
	at := time.Date(2026, time.August, 17, 12, 0, 0, 0, time.UTC)
	good := estimateBody(7, 42.73, -73.68, at)

	tests := []struct {
		name        string
		body        []byte
		engineErr   error
		wantAck     bool
		wantNack    bool
		wantRequeue bool
	}{
		{"applied estimate acks", good, nil, true, false, false},
		{"malformed payload nacks without requeue", []byte("not json"), nil, false, true, false},
		{"off-route estimate acks away", good, fleet.ErrOffRoute, true, false, false},
		{"unknown vehicle acks away", good, fleet.ErrVehicleNotFound, true, false, false},
		{"invalid report nacks without requeue", good, fleet.ErrInvalidReport, false, true, false},
		{"future timestamp nacks without requeue", good, fleet.ErrFutureTimestamp, false, true, false},
		{"persistence failure requeues", good, errors.New("failed to persist vehicle 7: disk full"), false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &stubReporter{err: tt.engineErr}
			c := NewConsumer(engine, "amqp://unused", "estimates")

			ack := &fakeAcknowledger{}
			c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: tt.body})

			if ack.acked != tt.wantAck {
				t.Fatalf("acked = %v, want %v", ack.acked, tt.wantAck)
			}
			if ack.nacked != tt.wantNack {
				t.Fatalf("nacked = %v, want %v", ack.nacked, tt.wantNack)
			}
			if ack.requeued != tt.wantRequeue {
				t.Fatalf("requeued = %v, want %v", ack.requeued, tt.wantRequeue)
			}
		})
	}
}

func TestHandleAppliesNetworkReport(t *testing.T) {
	at := time.Date(2026, time.August, 17, 12, 0, 0, 0, time.UTC)
	engine := &stubReporter{}
	c := NewConsumer(engine, "amqp://unused", "estimates")

	c.handle(context.Background(), amqp.Delivery{
		Acknowledger: &fakeAcknowledger{},
		Body:         estimateBody(7, 42.73, -73.68, at),
	})

	if len(engine.applied) != 1 || engine.applied[0] != 7 {
		t.Fatalf("applied = %v, want [7]", engine.applied)
	}
}
