// Package events carries ride lifecycle events to the audit stream.
// Emission is fire-and-forget: sinks log and count failures but never
// report them to the caller.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/halladj/vtc-sahra/internal/models"
)

const (
	RideCreated       = "ride.created"
	RideAccepted      = "ride.accepted"
	RideStatusChanged = "ride.status_changed"
	RideCancelled     = "ride.cancelled"
	RideReopened      = "ride.reopened"
	RideUpdated       = "ride.updated"
)

type RideEvent struct {
	Type        string            `json:"type"`
	RideID      string            `json:"ride_id"`
	PassengerID string            `json:"passenger_id"`
	DriverID    string            `json:"driver_id,omitempty"`
	Status      models.RideStatus `json:"status"`
	Price       int64             `json:"price"`
	ActorID     string            `json:"actor_id,omitempty"`
	Data        map[string]any    `json:"data,omitempty"`
	At          time.Time         `json:"at"`
}

// FromRide fills the ride fields of an event.
func FromRide(typ string, r *models.Ride, actorID string, at time.Time) RideEvent {
	return RideEvent{
		Type:        typ,
		RideID:      r.ID,
		PassengerID: r.PassengerID,
		DriverID:    r.DriverID,
		Status:      r.Status,
		Price:       r.Price,
		ActorID:     actorID,
		At:          at.UTC(),
	}
}

func Decode(b []byte) (RideEvent, error) {
	var ev RideEvent
	err := json.Unmarshal(b, &ev)
	return ev, err
}

type Sink interface {
	Emit(ctx context.Context, ev RideEvent)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, RideEvent) {}
