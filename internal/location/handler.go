// Package location relays in-ride GPS pings from the assigned driver to the
// ride's passenger. Pings are rate limited per driver, validated, and only
// relayed while the ride is ACCEPTED or ONGOING.
package location

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/geo"
	"github.com/halladj/vtc-sahra/internal/models"
	"github.com/halladj/vtc-sahra/internal/observability"
)

const (
	DefaultMinInterval  = 2 * time.Second
	EventDriverLocation = "driver_location"
)

// Code is reported back to the sending driver connection only.
type Code string

const (
	CodeInvalidLocation   Code = "INVALID_LOCATION"
	CodeRideNotFound      Code = "RIDE_NOT_FOUND"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeInvalidRideStatus Code = "INVALID_RIDE_STATUS"
	CodeInternal          Code = "INTERNAL_ERROR"
)

type StreamError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *StreamError) Error() string { return string(e.Code) + ": " + e.Message }

func streamErr(code Code, msg string) *StreamError {
	return &StreamError{Code: code, Message: msg}
}

// CodeOf returns the stream code of err, or "" when err is not a *StreamError.
func CodeOf(err error) Code {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

type RideReader interface {
	Get(ctx context.Context, id string) (*models.Ride, error)
}

// Sender delivers a point-to-point event; delivery is at most once.
type Sender interface {
	Send(recipientID string, ev models.Event)
}

type Handler struct {
	rides       RideReader
	out         Sender
	rate        RateStore
	minInterval time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.RWMutex
	lastSeen map[string]models.DriverLocation
}

func NewHandler(rides RideReader, out Sender, rate RateStore, minInterval time.Duration, logger *slog.Logger) *Handler {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if rate == nil {
		rate = NewMemoryRateStore()
	}
	return &Handler{
		rides:       rides,
		out:         out,
		rate:        rate,
		minInterval: minInterval,
		logger:      logger,
		now:         time.Now,
		lastSeen:    make(map[string]models.DriverLocation),
	}
}

// OnLocationUpdate returns the relayed payload, or nil with a nil error when
// the ping was dropped by the rate limiter.
func (h *Handler) OnLocationUpdate(ctx context.Context, driverID string, u models.LocationUpdate) (*models.RelayedLocation, error) {
	now := h.now()
	allowed, err := h.rate.Allow(ctx, driverID, now, h.minInterval)
	if err != nil {
		// A broken limiter must not stop the stream.
		h.logger.Warn("location_rate_store_failed", "driver_id", driverID, "error", err)
		allowed = true
	}
	if !allowed {
		observability.LocationUpdates.WithLabelValues("rate_limited").Inc()
		h.logger.Debug("location_dropped_rate_limited", "driver_id", driverID, "ride_id", u.RideID)
		return nil, nil
	}

	if err := validate(u); err != nil {
		return nil, h.reject(driverID, u.RideID, err)
	}

	ride, err := h.rides.Get(ctx, u.RideID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil, h.reject(driverID, u.RideID, streamErr(CodeRideNotFound, "ride not found"))
	case err != nil:
		h.logger.Error("location_ride_lookup_failed", "driver_id", driverID, "ride_id", u.RideID, "error", err)
		return nil, h.reject(driverID, u.RideID, streamErr(CodeInternal, "ride lookup failed"))
	}
	if ride.DriverID == "" || ride.DriverID != driverID {
		return nil, h.reject(driverID, u.RideID, streamErr(CodeUnauthorized, "not the assigned driver"))
	}
	if ride.Status != models.StatusAccepted && ride.Status != models.StatusOngoing {
		return nil, h.reject(driverID, u.RideID, streamErr(CodeInvalidRideStatus, "ride is "+string(ride.Status)))
	}

	if err := h.rate.Mark(ctx, driverID, now, h.minInterval); err != nil {
		h.logger.Warn("location_rate_store_failed", "driver_id", driverID, "error", err)
	}
	relayed := &models.RelayedLocation{LocationUpdate: u, DriverID: driverID, ServerTime: now.UTC()}
	h.out.Send(ride.PassengerID, models.Event{Type: EventDriverLocation, Payload: relayed})

	h.mu.Lock()
	h.lastSeen[driverID] = models.DriverLocation{DriverID: driverID, Loc: models.Coord{Lat: u.Lat, Lng: u.Lng}, LastSeen: now}
	h.mu.Unlock()

	observability.LocationUpdates.WithLabelValues("relayed").Inc()
	return relayed, nil
}

func (h *Handler) reject(driverID, rideID string, se *StreamError) error {
	observability.LocationUpdates.WithLabelValues("rejected").Inc()
	h.logger.Info("location_rejected", "driver_id", driverID, "ride_id", rideID, "code", se.Code)
	return se
}

// OnDriverDisconnect forgets the driver's rate-limit slot and last position.
func (h *Handler) OnDriverDisconnect(ctx context.Context, driverID string) {
	if err := h.rate.Forget(ctx, driverID); err != nil {
		h.logger.Warn("location_rate_store_failed", "driver_id", driverID, "error", err)
	}
	h.mu.Lock()
	delete(h.lastSeen, driverID)
	h.mu.Unlock()
}

// LastSeen returns the last relayed position of the driver.
func (h *Handler) LastSeen(driverID string) (models.DriverLocation, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	loc, ok := h.lastSeen[driverID]
	return loc, ok
}

func validate(u models.LocationUpdate) *StreamError {
	if u.RideID == "" {
		return streamErr(CodeInvalidLocation, "ride_id is required")
	}
	if !geo.ValidCoord(u.Lat, u.Lng) {
		return streamErr(CodeInvalidLocation, "coordinates out of range")
	}
	if u.Heading != nil && (math.IsNaN(*u.Heading) || *u.Heading < 0 || *u.Heading > 360) {
		return streamErr(CodeInvalidLocation, "heading must be within [0, 360]")
	}
	if u.Speed != nil && (math.IsNaN(*u.Speed) || *u.Speed < 0) {
		return streamErr(CodeInvalidLocation, "speed must not be negative")
	}
	if u.Accuracy != nil && (math.IsNaN(*u.Accuracy) || *u.Accuracy < 0) {
		return streamErr(CodeInvalidLocation, "accuracy must not be negative")
	}
	return nil
}
