package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/models"
)

const uniqueViolation = "23505"

// OpenPostgres opens a database/sql handle over lib/pq and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// PostgresStore keeps rides in the rides table. The partial unique index
// rides_one_active_per_passenger backs the one-active-ride rule.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(id, passenger_id, driver_id, vehicle_id, type, origin_lat, origin_lng, dest_lat, dest_lng, price, status, seat_count, package_weight, version, created_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		r.ID, r.PassengerID, nullString(r.DriverID), nullString(r.VehicleID), string(r.Type),
		r.Origin.Lat, r.Origin.Lng, r.Destination.Lat, r.Destination.Lng,
		r.Price, string(r.Status), nullInt(r.SeatCount), nullFloat(r.PackageWeight), r.Version, r.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperr.Conflict("storage.create_ride", "passenger %s already has an active ride", r.PassengerID)
	}
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Ride, error) {
	var (
		r                   models.Ride
		driverID, vehicleID sql.NullString
		rideType, status    string
		seats               sql.NullInt64
		weight              sql.NullFloat64
	)
	err := p.db.QueryRowContext(ctx, `SELECT id, passenger_id, driver_id, vehicle_id, type, origin_lat, origin_lng, dest_lat, dest_lng, price, status, seat_count, package_weight, version, created_at FROM rides WHERE id=$1`, id).
		Scan(&r.ID, &r.PassengerID, &driverID, &vehicleID, &rideType,
			&r.Origin.Lat, &r.Origin.Lng, &r.Destination.Lat, &r.Destination.Lng,
			&r.Price, &status, &seats, &weight, &r.Version, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("storage.get_ride", "ride %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select ride: %w", err)
	}
	r.DriverID = driverID.String
	r.VehicleID = vehicleID.String
	r.Type = models.RideType(rideType)
	r.Status = models.RideStatus(status)
	if seats.Valid {
		n := int(seats.Int64)
		r.SeatCount = &n
	}
	if weight.Valid {
		w := weight.Float64
		r.PackageWeight = &w
	}
	return &r, nil
}

func (p *PostgresStore) Update(ctx context.Context, r *models.Ride, from models.RideStatus) error {
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET driver_id=$1, vehicle_id=$2, origin_lat=$3, origin_lng=$4, dest_lat=$5, dest_lng=$6, price=$7, status=$8, seat_count=$9, package_weight=$10, version=version+1, updated_at=now() WHERE id=$11 AND status=$12 AND version=$13`,
		nullString(r.DriverID), nullString(r.VehicleID),
		r.Origin.Lat, r.Origin.Lng, r.Destination.Lat, r.Destination.Lng,
		r.Price, string(r.Status), nullInt(r.SeatCount), nullFloat(r.PackageWeight),
		r.ID, string(from), r.Version)
	if err != nil {
		return fmt.Errorf("update ride: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ride rows: %w", err)
	}
	if n == 1 {
		r.Version++
		return nil
	}
	cur, err := p.Get(ctx, r.ID)
	if err != nil {
		return err
	}
	if cur.Status != from {
		return apperr.Conflict("storage.update_ride", "ride %s is %s, expected %s", r.ID, cur.Status, from)
	}
	return apperr.Conflict("storage.update_ride", "ride %s changed since it was read", r.ID)
}

// PostgresVehicles reads vehicle ownership from the vehicles table.
type PostgresVehicles struct {
	db *sql.DB
}

func NewPostgresVehicles(db *sql.DB) *PostgresVehicles {
	return &PostgresVehicles{db: db}
}

func (p *PostgresVehicles) OwnerOf(ctx context.Context, vehicleID string) (string, error) {
	var owner string
	err := p.db.QueryRowContext(ctx, `SELECT driver_id FROM vehicles WHERE id=$1`, vehicleID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("storage.vehicle_owner", "vehicle %s not found", vehicleID)
	}
	if err != nil {
		return "", fmt.Errorf("select vehicle: %w", err)
	}
	return owner, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
