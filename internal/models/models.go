package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type RideType string

const (
	RideRegular     RideType = "REGULAR"
	RideSeatReserve RideType = "SEAT_RESERVE"
	RideDelivery    RideType = "DELIVERY"
)

func (t RideType) Valid() bool {
	switch t {
	case RideRegular, RideSeatReserve, RideDelivery:
		return true
	}
	return false
}

type RideStatus string

const (
	StatusPending   RideStatus = "PENDING"
	StatusAccepted  RideStatus = "ACCEPTED"
	StatusOngoing   RideStatus = "ONGOING"
	StatusCompleted RideStatus = "COMPLETED"
	StatusCancelled RideStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active statuses count toward the one-active-ride-per-passenger rule.
func (s RideStatus) Active() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusOngoing
}

// Ride is persisted; Price is in minor currency units. Version counts stored
// writes and guards every update against a stale read.
type Ride struct {
	ID            string     `json:"id"`
	PassengerID   string     `json:"passenger_id"`
	DriverID      string     `json:"driver_id,omitempty"`
	VehicleID     string     `json:"vehicle_id,omitempty"`
	Type          RideType   `json:"type"`
	Origin        Coord      `json:"origin"`
	Destination   Coord      `json:"destination"`
	Price         int64      `json:"price"`
	Status        RideStatus `json:"status"`
	SeatCount     *int       `json:"seat_count,omitempty"`
	PackageWeight *float64   `json:"package_weight,omitempty"`
	Version       int64      `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Clone returns a deep copy so callers never share optional pointers.
func (r *Ride) Clone() *Ride {
	c := *r
	if r.SeatCount != nil {
		v := *r.SeatCount
		c.SeatCount = &v
	}
	if r.PackageWeight != nil {
		v := *r.PackageWeight
		c.PackageWeight = &v
	}
	return &c
}

type Wallet struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Balance int64  `json:"balance"`
}

type TxKind string

const (
	TxCredit TxKind = "CREDIT"
	TxDebit  TxKind = "DEBIT"
)

type Transaction struct {
	ID        string    `json:"id"`
	WalletID  string    `json:"wallet_id"`
	Kind      TxKind    `json:"kind"`
	Amount    int64     `json:"amount"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// Signed returns the amount with the sign the transaction applies to a balance.
func (t Transaction) Signed() int64 {
	if t.Kind == TxDebit {
		return -t.Amount
	}
	return t.Amount
}

type Commission struct {
	ID      string `json:"id"`
	RideID  string `json:"ride_id"`
	Percent string `json:"percent"`
	Amount  int64  `json:"amount"`
}

// DriverLocation is ephemeral registry state, never persisted.
type DriverLocation struct {
	DriverID string    `json:"driver_id"`
	Loc      Coord     `json:"loc"`
	LastSeen time.Time `json:"last_seen"`
}

// RideOffer is the personalized payload sent to one nearby driver.
type RideOffer struct {
	RideID      string   `json:"ride_id"`
	DriverID    string   `json:"driver_id"`
	Type        RideType `json:"type"`
	Origin      Coord    `json:"origin"`
	Destination Coord    `json:"destination"`
	Price       int64    `json:"price"`
	DistanceKm  float64  `json:"distance_km"`
	ETAMinutes  int      `json:"eta_minutes"`
}

// LocationUpdate is an in-ride GPS ping from the assigned driver.
type LocationUpdate struct {
	RideID   string   `json:"ride_id"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Heading  *float64 `json:"heading,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// RelayedLocation is what the passenger receives.
type RelayedLocation struct {
	LocationUpdate
	DriverID   string    `json:"driver_id"`
	ServerTime time.Time `json:"server_time"`
}

// Event is a real-time message addressed to a driver, a passenger or a room.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}
