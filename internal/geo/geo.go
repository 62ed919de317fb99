package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/halladj/vtc-sahra/internal/models"
)

// Registry is the ephemeral driver-location store read by the dispatcher.
// Entries older than the registry's TTL are evicted lazily on read.
type Registry interface {
	Upsert(ctx context.Context, driverID string, loc models.Coord) error
	Remove(ctx context.Context, driverID string) error
	Within(ctx context.Context, center models.Coord, radiusKm float64) ([]Nearby, error)
}

// Nearby is a registry hit with its great-circle distance to the query point.
type Nearby struct {
	models.DriverLocation
	DistanceKm float64
}

// ValidCoord reports whether lat/lng are within WGS84 bounds.
func ValidCoord(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Index is an in-memory Registry.
type Index struct {
	mu      sync.Mutex
	drivers map[string]models.DriverLocation
	ttl     time.Duration
	now     func() time.Time
}

func NewIndex(ttl time.Duration) *Index {
	return &Index{drivers: make(map[string]models.DriverLocation), ttl: ttl, now: time.Now}
}

func (g *Index) Upsert(_ context.Context, driverID string, loc models.Coord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drivers[driverID] = models.DriverLocation{DriverID: driverID, Loc: loc, LastSeen: g.now()}
	return nil
}

func (g *Index) Remove(_ context.Context, driverID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.drivers, driverID)
	return nil
}

// Within evicts stale entries and returns drivers inside radiusKm, nearest first.
// naive scan; in prod use geo-hash or H3
func (g *Index) Within(_ context.Context, center models.Coord, radiusKm float64) ([]Nearby, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := g.now().Add(-g.ttl)
	out := make([]Nearby, 0)
	for id, d := range g.drivers {
		if g.ttl > 0 && d.LastSeen.Before(cutoff) {
			delete(g.drivers, id)
			continue
		}
		dist := HaversineKm(center.Lat, center.Lng, d.Loc.Lat, d.Loc.Lng)
		if dist <= radiusKm {
			out = append(out, Nearby{DriverLocation: d, DistanceKm: dist})
		}
	}
	sortByDistance(out)
	return out, nil
}

// Len is the number of entries currently held, stale or not.
func (g *Index) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.drivers)
}

func sortByDistance(out []Nearby) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm == out[j].DistanceKm {
			return out[i].DriverID < out[j].DriverID
		}
		return out[i].DistanceKm < out[j].DistanceKm
	})
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	return Haversine(lat1, lon1, lat2, lon2) / 1000
}
