// Package dispatch offers new and re-opened rides to nearby available drivers.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/eta"
	"github.com/halladj/vtc-sahra/internal/geo"
	"github.com/halladj/vtc-sahra/internal/models"
	"github.com/halladj/vtc-sahra/internal/observability"
)

// Publisher delivers real-time events to addressable recipients and rooms.
//
// Delivery is at-most-once with no retry. Calls never block on the network
// and report nothing back: a recipient that is offline or slow simply misses
// the event, and the business operation that emitted it is unaffected.
type Publisher interface {
	Send(recipientID string, ev models.Event)
	Join(room, recipientID string)
	Broadcast(room string, ev models.Event)
	CloseRoom(room string)
}

// OfferRoom groups the drivers who were offered a ride.
func OfferRoom(rideID string) string { return "offers:" + rideID }

const (
	EventRideOffer = "ride_offer"
	EventRideTaken = "ride_taken"
)

const DefaultRadiusKm = 10.0

type Broadcaster struct {
	registry    geo.Registry
	pub         Publisher
	radiusKm    float64
	avgSpeedKmh float64
	logger      *slog.Logger
}

func NewBroadcaster(registry geo.Registry, pub Publisher, radiusKm, avgSpeedKmh float64, logger *slog.Logger) *Broadcaster {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = eta.DefaultSpeedKmh
	}
	return &Broadcaster{registry: registry, pub: pub, radiusKm: radiusKm, avgSpeedKmh: avgSpeedKmh, logger: logger}
}

// OnDriverAvailable records the driver's position; invalid coordinates are rejected.
func (b *Broadcaster) OnDriverAvailable(ctx context.Context, driverID string, lat, lng float64) error {
	const op = "dispatch.driver_available"
	if driverID == "" {
		return apperr.InvalidInput(op, "driver id is required")
	}
	if !geo.ValidCoord(lat, lng) {
		return apperr.InvalidInput(op, "coordinates out of range: lat=%v lng=%v", lat, lng)
	}
	if err := b.registry.Upsert(ctx, driverID, models.Coord{Lat: lat, Lng: lng}); err != nil {
		return apperr.Internal(op, err)
	}
	observability.DriversAvailable.Inc()
	b.logger.Debug("driver_available", "driver_id", driverID, "lat", lat, "lng", lng)
	return nil
}

func (b *Broadcaster) OnDriverDisconnect(ctx context.Context, driverID string) error {
	if err := b.registry.Remove(ctx, driverID); err != nil {
		return apperr.Internal("dispatch.driver_disconnect", err)
	}
	b.logger.Debug("driver_unavailable", "driver_id", driverID)
	return nil
}

// OfferRide sends every registered driver within the radius of the ride's
// origin an offer carrying that driver's own distance and ETA.
func (b *Broadcaster) OfferRide(ctx context.Context, ride *models.Ride) ([]models.RideOffer, error) {
	nearby, err := b.registry.Within(ctx, ride.Origin, b.radiusKm)
	if err != nil {
		b.logger.Error("dispatch_registry_failed", "ride_id", ride.ID, "error", err)
		return nil, apperr.Internal("dispatch.offer_ride", err)
	}
	room := OfferRoom(ride.ID)
	offers := make([]models.RideOffer, 0, len(nearby))
	for _, n := range nearby {
		offer := models.RideOffer{
			RideID:      ride.ID,
			DriverID:    n.DriverID,
			Type:        ride.Type,
			Origin:      ride.Origin,
			Destination: ride.Destination,
			Price:       ride.Price,
			DistanceKm:  n.DistanceKm,
			ETAMinutes:  eta.Minutes(n.DistanceKm, b.avgSpeedKmh),
		}
		b.pub.Join(room, n.DriverID)
		b.pub.Send(n.DriverID, models.Event{Type: EventRideOffer, Payload: offer})
		offers = append(offers, offer)
	}
	observability.OffersSent.Add(float64(len(offers)))
	observability.OfferFanout.Observe(float64(len(offers)))
	b.logger.Info("ride_offered", "ride_id", ride.ID, "drivers", len(offers), "radius_km", b.radiusKm)
	return offers, nil
}
