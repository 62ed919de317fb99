package geo

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/halladj/vtc-sahra/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKmKnownDistance(t *testing.T) {
	// one degree of latitude is ~111.19 km
	d := HaversineKm(0, 0, 1, 0)
	if math.Abs(d-111.19) > 0.05 {
		t.Fatalf("expected ~111.19 km, got %f", d)
	}
}

func TestValidCoord(t *testing.T) {
	cases := []struct {
		lat, lng float64
		ok       bool
	}{
		{36.7538, 3.0588, true},
		{90, 180, true},
		{-90, -180, true},
		{95, 3, false},
		{36, 181, false},
		{math.NaN(), 0, false},
	}
	for _, c := range cases {
		if got := ValidCoord(c.lat, c.lng); got != c.ok {
			t.Fatalf("ValidCoord(%v,%v) = %v", c.lat, c.lng, got)
		}
	}
}

func TestIndexWithinRadius(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(5 * time.Minute)
	_ = idx.Upsert(ctx, "near", models.Coord{Lat: 36.751, Lng: 3.051})
	_ = idx.Upsert(ctx, "far", models.Coord{Lat: 36.90, Lng: 3.20})

	got, err := idx.Within(ctx, models.Coord{Lat: 36.7538, Lng: 3.0588}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DriverID != "near" {
		t.Fatalf("expected only near driver, got %+v", got)
	}
	if got[0].DistanceKm <= 0 || got[0].DistanceKm > 1 {
		t.Fatalf("unexpected distance %f", got[0].DistanceKm)
	}
}

func TestIndexLazilyEvictsStale(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	idx := NewIndex(5 * time.Minute)
	idx.now = func() time.Time { return now }

	_ = idx.Upsert(ctx, "old", models.Coord{Lat: 36.75, Lng: 3.05})
	now = now.Add(4 * time.Minute)
	_ = idx.Upsert(ctx, "fresh", models.Coord{Lat: 36.75, Lng: 3.05})
	now = now.Add(2 * time.Minute)

	if idx.Len() != 2 {
		t.Fatalf("eviction must not happen before a read")
	}
	got, _ := idx.Within(ctx, models.Coord{Lat: 36.75, Lng: 3.05}, 1)
	if len(got) != 1 || got[0].DriverID != "fresh" {
		t.Fatalf("expected only fresh driver, got %+v", got)
	}
	if idx.Len() != 1 {
		t.Fatalf("stale entry should have been evicted, len=%d", idx.Len())
	}
}

func TestIndexRemove(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(time.Minute)
	_ = idx.Upsert(ctx, "d1", models.Coord{Lat: 1, Lng: 1})
	_ = idx.Remove(ctx, "d1")
	got, _ := idx.Within(ctx, models.Coord{Lat: 1, Lng: 1}, 10)
	if len(got) != 0 {
		t.Fatalf("expected empty registry, got %+v", got)
	}
}
