// Package rides owns the ride state machine:
//
//	PENDING -> ACCEPTED -> ONGOING -> COMPLETED
//	any non-terminal state -> CANCELLED
//
// with one exception: a driver cancelling an ACCEPTED ride returns it to
// PENDING and it is offered again. Payment side effects run after the status
// commit and never roll it back.
package rides

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/dispatch"
	"github.com/halladj/vtc-sahra/internal/events"
	"github.com/halladj/vtc-sahra/internal/models"
	"github.com/halladj/vtc-sahra/internal/observability"
	"github.com/halladj/vtc-sahra/internal/payments"
	"github.com/halladj/vtc-sahra/internal/storage"
)

type Payments interface {
	ValidateBalance(ctx context.Context, driverID string, price int64) (bool, error)
	ProcessCommission(ctx context.Context, rideID, driverID string, price int64) (*models.Commission, error)
	ProcessCancellationPenalty(ctx context.Context, rideID, driverID string, price int64) payments.PenaltyResult
}

type Dispatcher interface {
	OfferRide(ctx context.Context, ride *models.Ride) ([]models.RideOffer, error)
}

// Passenger-facing real-time event types.
const (
	EventRideAccepted  = "ride_accepted"
	EventRideStatus    = "ride_status"
	EventRideCancelled = "ride_cancelled"
	EventRideReopened  = "ride_reopened"
)

type Service struct {
	Store    storage.RideStore
	Vehicles storage.VehicleRegistry
	Payments Payments
	Dispatch Dispatcher
	Notify   dispatch.Publisher
	Events   events.Sink
	Pricer   Pricer
	Logger   *slog.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) emit(ctx context.Context, typ string, r *models.Ride, actorID string, data map[string]any) {
	if s.Events == nil {
		return
	}
	ev := events.FromRide(typ, r, actorID, s.now())
	ev.Data = data
	s.Events.Emit(ctx, ev)
}

func (s *Service) notify(recipientID, typ string, payload any) {
	if s.Notify == nil || recipientID == "" {
		return
	}
	s.Notify.Send(recipientID, models.Event{Type: typ, Payload: payload})
}

// offer hands the ride to the dispatcher; failures are logged only.
func (s *Service) offer(ctx context.Context, r *models.Ride) {
	if s.Dispatch == nil {
		return
	}
	if _, err := s.Dispatch.OfferRide(ctx, r); err != nil {
		s.Logger.Warn("ride_dispatch_failed", "ride_id", r.ID, "error", err)
	}
}

// Create registers a PENDING ride for the passenger and offers it to nearby drivers.
func (s *Service) Create(ctx context.Context, passengerID string, p CreateParams) (*models.Ride, error) {
	const op = "rides.create"
	if passengerID == "" {
		return nil, apperr.InvalidInput(op, "passenger id is required")
	}
	if err := p.validate(op); err != nil {
		return nil, err
	}

	price := int64(0)
	if p.Price != nil {
		price = *p.Price
	} else {
		pricer := s.Pricer
		if pricer == nil {
			pricer = FlatFare(DefaultBaseFare)
		}
		price = pricer(p)
	}

	r := &models.Ride{
		ID:            uuid.NewString(),
		PassengerID:   passengerID,
		Type:          p.Type,
		Origin:        p.Origin,
		Destination:   p.Destination,
		Price:         price,
		Status:        models.StatusPending,
		SeatCount:     p.SeatCount,
		PackageWeight: p.PackageWeight,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.Store.Create(ctx, r); err != nil {
		return nil, storeErr(op, err)
	}

	observability.RidesCreated.WithLabelValues(string(r.Type)).Inc()
	s.Logger.Info("ride_created", "ride_id", r.ID, "passenger_id", passengerID, "type", r.Type, "price", r.Price)
	s.emit(ctx, events.RideCreated, r, passengerID, nil)
	s.offer(ctx, r)
	return r, nil
}

// Accept assigns a driver and vehicle to a PENDING ride. Of two concurrent
// accepts on the same ride exactly one wins; the other gets Conflict. So does
// an accept that raced a passenger edit, since the balance check saw the old price.
func (s *Service) Accept(ctx context.Context, rideID, driverID, vehicleID string) (*models.Ride, error) {
	const op = "rides.accept"
	if rideID == "" || driverID == "" || vehicleID == "" {
		return nil, apperr.InvalidInput(op, "ride, driver and vehicle ids are required")
	}
	r, err := s.Store.Get(ctx, rideID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if r.Status != models.StatusPending {
		return nil, apperr.Conflict(op, "ride %s is no longer available (%s)", rideID, r.Status)
	}

	owner, err := s.Vehicles.OwnerOf(ctx, vehicleID)
	if errors.Is(err, apperr.ErrNotFound) || (err == nil && owner != driverID) {
		return nil, apperr.Unauthorized(op, "vehicle %s does not belong to driver %s", vehicleID, driverID)
	}
	if err != nil {
		return nil, storeErr(op, err)
	}

	ok, err := s.Payments.ValidateBalance(ctx, driverID, r.Price)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if !ok {
		return nil, apperr.InsufficientBalance(op, "driver %s cannot cover the commission on %d", driverID, r.Price)
	}

	r.Status = models.StatusAccepted
	r.DriverID = driverID
	r.VehicleID = vehicleID
	if err := s.Store.Update(ctx, r, models.StatusPending); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict(op, "ride %s was taken or changed before the accept landed", rideID)
		}
		return nil, storeErr(op, err)
	}

	observability.RideTransition.WithLabelValues(string(models.StatusPending), string(models.StatusAccepted)).Inc()
	s.Logger.Info("ride_accepted", "ride_id", rideID, "driver_id", driverID, "vehicle_id", vehicleID)
	s.notify(r.PassengerID, EventRideAccepted, r)
	if s.Notify != nil {
		room := dispatch.OfferRoom(rideID)
		s.Notify.Broadcast(room, models.Event{Type: dispatch.EventRideTaken, Payload: map[string]string{"ride_id": rideID}})
		s.Notify.CloseRoom(room)
	}
	s.emit(ctx, events.RideAccepted, r, driverID, map[string]any{"vehicle_id": vehicleID})
	return r, nil
}

// UpdateStatus moves ACCEPTED -> ONGOING or ONGOING -> COMPLETED. Completion
// charges commission; a failed charge leaves the ride COMPLETED.
func (s *Service) UpdateStatus(ctx context.Context, rideID, actorID string, next models.RideStatus) (*models.Ride, error) {
	const op = "rides.update_status"
	r, err := s.Store.Get(ctx, rideID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if !isParticipant(r, actorID) {
		return nil, apperr.Unauthorized(op, "actor %s is not part of ride %s", actorID, rideID)
	}
	from := r.Status
	legal := (from == models.StatusAccepted && next == models.StatusOngoing) ||
		(from == models.StatusOngoing && next == models.StatusCompleted)
	if !legal {
		return nil, apperr.Conflict(op, "cannot move ride %s from %s to %s", rideID, from, next)
	}

	r.Status = next
	if err := s.Store.Update(ctx, r, from); err != nil {
		return nil, storeErr(op, err)
	}
	observability.RideTransition.WithLabelValues(string(from), string(next)).Inc()
	s.Logger.Info("ride_status_changed", "ride_id", rideID, "from", from, "to", next, "actor_id", actorID)

	data := map[string]any{"from": string(from)}
	if next == models.StatusCompleted {
		if c, err := s.Payments.ProcessCommission(ctx, r.ID, r.DriverID, r.Price); err != nil {
			data["commission_error"] = err.Error()
		} else {
			data["commission"] = c.Amount
		}
	}
	s.notify(r.PassengerID, EventRideStatus, r)
	if actorID != r.DriverID {
		s.notify(r.DriverID, EventRideStatus, r)
	}
	s.emit(ctx, events.RideStatusChanged, r, actorID, data)
	return r, nil
}

// CancelResult reports the ride after cancellation and, when the driver
// cancelled, the penalty outcome.
type CancelResult struct {
	Ride    *models.Ride            `json:"ride"`
	Penalty *payments.PenaltyResult `json:"penalty,omitempty"`
}

// Cancel ends a non-terminal ride. A passenger never pays a penalty. A driver
// cancelling an ACCEPTED ride sends it back to PENDING for re-dispatch.
func (s *Service) Cancel(ctx context.Context, rideID, actorID string) (*CancelResult, error) {
	const op = "rides.cancel"
	r, err := s.Store.Get(ctx, rideID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if r.Status.Terminal() {
		return nil, apperr.Conflict(op, "ride %s is already %s", rideID, r.Status)
	}

	from := r.Status
	switch {
	case actorID != "" && actorID == r.PassengerID:
		r.Status = models.StatusCancelled
		if err := s.Store.Update(ctx, r, from); err != nil {
			return nil, storeErr(op, err)
		}
		observability.RideTransition.WithLabelValues(string(from), string(r.Status)).Inc()
		s.Logger.Info("ride_cancelled", "ride_id", rideID, "by", "passenger", "from", from)
		s.notify(r.DriverID, EventRideCancelled, r)
		if from == models.StatusPending && s.Notify != nil {
			room := dispatch.OfferRoom(rideID)
			s.Notify.Broadcast(room, models.Event{Type: EventRideCancelled, Payload: map[string]string{"ride_id": rideID}})
			s.Notify.CloseRoom(room)
		}
		s.emit(ctx, events.RideCancelled, r, actorID, map[string]any{"from": string(from)})
		return &CancelResult{Ride: r}, nil

	case actorID != "" && actorID == r.DriverID:
		return s.cancelByDriver(ctx, r, actorID)
	}
	return nil, apperr.Unauthorized(op, "actor %s is not part of ride %s", actorID, rideID)
}

func (s *Service) cancelByDriver(ctx context.Context, r *models.Ride, driverID string) (*CancelResult, error) {
	const op = "rides.cancel"
	from := r.Status
	reopen := from == models.StatusAccepted
	if reopen {
		r.Status = models.StatusPending
		r.DriverID = ""
		r.VehicleID = ""
	} else {
		r.Status = models.StatusCancelled
	}
	if err := s.Store.Update(ctx, r, from); err != nil {
		return nil, storeErr(op, err)
	}
	observability.RideTransition.WithLabelValues(string(from), string(r.Status)).Inc()

	penalty := s.Payments.ProcessCancellationPenalty(ctx, r.ID, driverID, r.Price)
	data := map[string]any{
		"from":            string(from),
		"penalty_charged": penalty.PenaltyCharged,
		"penalty_partial": penalty.Partial,
	}

	if reopen {
		observability.RidesReopened.Inc()
		s.Logger.Info("ride_reopened", "ride_id", r.ID, "driver_id", driverID, "penalty", penalty.PenaltyCharged, "partial", penalty.Partial)
		s.notify(r.PassengerID, EventRideReopened, r)
		s.emit(ctx, events.RideReopened, r, driverID, data)
		s.offer(ctx, r)
	} else {
		s.Logger.Info("ride_cancelled", "ride_id", r.ID, "by", "driver", "from", from, "penalty", penalty.PenaltyCharged, "partial", penalty.Partial)
		s.notify(r.PassengerID, EventRideCancelled, r)
		s.emit(ctx, events.RideCancelled, r, driverID, data)
	}
	return &CancelResult{Ride: r, Penalty: &penalty}, nil
}

// Update changes a PENDING ride's details. Only the owning passenger may do it.
func (s *Service) Update(ctx context.Context, rideID, passengerID string, p UpdateParams) (*models.Ride, error) {
	const op = "rides.update"
	r, err := s.Store.Get(ctx, rideID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if r.PassengerID != passengerID {
		return nil, apperr.Unauthorized(op, "ride %s belongs to another passenger", rideID)
	}
	if r.Status != models.StatusPending {
		return nil, apperr.Conflict(op, "ride %s can only be changed while pending (%s)", rideID, r.Status)
	}
	if err := p.apply(op, r); err != nil {
		return nil, err
	}
	if err := s.Store.Update(ctx, r, models.StatusPending); err != nil {
		return nil, storeErr(op, err)
	}
	s.Logger.Info("ride_updated", "ride_id", rideID, "price", r.Price)
	s.emit(ctx, events.RideUpdated, r, passengerID, nil)
	return r, nil
}

// Get returns the ride to its passenger or assigned driver.
func (s *Service) Get(ctx context.Context, rideID, actorID string) (*models.Ride, error) {
	const op = "rides.get"
	r, err := s.Store.Get(ctx, rideID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if !isParticipant(r, actorID) {
		return nil, apperr.Unauthorized(op, "actor %s is not part of ride %s", actorID, rideID)
	}
	return r, nil
}

func isParticipant(r *models.Ride, actorID string) bool {
	return actorID != "" && (actorID == r.PassengerID || actorID == r.DriverID)
}

func storeErr(op string, err error) error {
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return err
	}
	return apperr.Internal(op, err)
}
