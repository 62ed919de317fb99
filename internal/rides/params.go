package rides

import (
	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/geo"
	"github.com/halladj/vtc-sahra/internal/models"
)

const DefaultBaseFare int64 = 50000

// Pricer computes a price in minor units when the caller does not supply one.
type Pricer func(p CreateParams) int64

// FlatFare prices every ride at base regardless of distance or type.
func FlatFare(base int64) Pricer {
	return func(CreateParams) int64 { return base }
}

type CreateParams struct {
	Type          models.RideType `json:"type"`
	Origin        models.Coord    `json:"origin"`
	Destination   models.Coord    `json:"destination"`
	Price         *int64          `json:"price,omitempty"`
	SeatCount     *int            `json:"seat_count,omitempty"`
	PackageWeight *float64        `json:"package_weight,omitempty"`
}

func (p CreateParams) validate(op string) error {
	if !p.Type.Valid() {
		return apperr.InvalidInput(op, "unknown ride type %q", p.Type)
	}
	if !geo.ValidCoord(p.Origin.Lat, p.Origin.Lng) || !geo.ValidCoord(p.Destination.Lat, p.Destination.Lng) {
		return apperr.InvalidInput(op, "origin and destination must be valid coordinates")
	}
	if p.Price != nil && *p.Price <= 0 {
		return apperr.InvalidInput(op, "price must be positive")
	}
	return validateExtras(op, p.Type, p.SeatCount, p.PackageWeight)
}

func validateExtras(op string, typ models.RideType, seats *int, weight *float64) error {
	switch typ {
	case models.RideSeatReserve:
		if seats == nil || *seats < 1 {
			return apperr.InvalidInput(op, "seat reservations need seat_count >= 1")
		}
	case models.RideDelivery:
		if weight == nil || *weight <= 0 {
			return apperr.InvalidInput(op, "deliveries need a positive package_weight")
		}
	}
	return nil
}

// UpdateParams holds the fields a passenger may change on a pending ride.
// Nil fields are left as they are. The ride type cannot change.
type UpdateParams struct {
	Origin        *models.Coord `json:"origin,omitempty"`
	Destination   *models.Coord `json:"destination,omitempty"`
	Price         *int64        `json:"price,omitempty"`
	SeatCount     *int          `json:"seat_count,omitempty"`
	PackageWeight *float64      `json:"package_weight,omitempty"`
}

func (p UpdateParams) apply(op string, r *models.Ride) error {
	next := r.Clone()
	if p.Origin != nil {
		if !geo.ValidCoord(p.Origin.Lat, p.Origin.Lng) {
			return apperr.InvalidInput(op, "origin must be a valid coordinate")
		}
		next.Origin = *p.Origin
	}
	if p.Destination != nil {
		if !geo.ValidCoord(p.Destination.Lat, p.Destination.Lng) {
			return apperr.InvalidInput(op, "destination must be a valid coordinate")
		}
		next.Destination = *p.Destination
	}
	if p.Price != nil {
		if *p.Price <= 0 {
			return apperr.InvalidInput(op, "price must be positive")
		}
		next.Price = *p.Price
	}
	if p.SeatCount != nil {
		next.SeatCount = p.SeatCount
	}
	if p.PackageWeight != nil {
		next.PackageWeight = p.PackageWeight
	}
	if err := validateExtras(op, next.Type, next.SeatCount, next.PackageWeight); err != nil {
		return err
	}
	*r = *next
	return nil
}
