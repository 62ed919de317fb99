package storage

import (
	"context"
	"sync"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/models"
)

// RideStore defines persistence operations for rides. Rides are never deleted.
type RideStore interface {
	// Create fails with Conflict if the passenger already has an active ride.
	Create(ctx context.Context, r *models.Ride) error
	Get(ctx context.Context, id string) (*models.Ride, error)
	// Update persists r only if the stored status still equals from and the
	// stored version equals r.Version. On success r.Version is advanced.
	Update(ctx context.Context, r *models.Ride, from models.RideStatus) error
}

// VehicleRegistry answers who owns a vehicle. Registration itself lives elsewhere.
type VehicleRegistry interface {
	OwnerOf(ctx context.Context, vehicleID string) (string, error)
}

type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.Ride)}
}

func (m *MemoryStore) Create(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rides {
		if existing.PassengerID == r.PassengerID && existing.Status.Active() {
			return apperr.Conflict("storage.create_ride", "passenger %s already has active ride %s", r.PassengerID, existing.ID)
		}
	}
	if _, ok := m.rides[r.ID]; ok {
		return apperr.Conflict("storage.create_ride", "ride %s already exists", r.ID)
	}
	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, apperr.NotFound("storage.get_ride", "ride %s not found", id)
	}
	return r.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, r *models.Ride, from models.RideStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rides[r.ID]
	if !ok {
		return apperr.NotFound("storage.update_ride", "ride %s not found", r.ID)
	}
	if cur.Status != from {
		return apperr.Conflict("storage.update_ride", "ride %s is %s, expected %s", r.ID, cur.Status, from)
	}
	if cur.Version != r.Version {
		return apperr.Conflict("storage.update_ride", "ride %s changed since it was read", r.ID)
	}
	next := r.Clone()
	next.Version = cur.Version + 1
	m.rides[r.ID] = next
	r.Version = next.Version
	return nil
}

// MemoryVehicles maps vehicle id to owning driver id.
type MemoryVehicles struct {
	mu     sync.RWMutex
	owners map[string]string
}

func NewMemoryVehicles() *MemoryVehicles {
	return &MemoryVehicles{owners: make(map[string]string)}
}

func (v *MemoryVehicles) Register(vehicleID, driverID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.owners[vehicleID] = driverID
}

func (v *MemoryVehicles) OwnerOf(_ context.Context, vehicleID string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	owner, ok := v.owners[vehicleID]
	if !ok {
		return "", apperr.NotFound("storage.vehicle_owner", "vehicle %s not found", vehicleID)
	}
	return owner, nil
}
