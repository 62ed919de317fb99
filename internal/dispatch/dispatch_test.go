package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/geo"
	"github.com/halladj/vtc-sahra/internal/logging"
	"github.com/halladj/vtc-sahra/internal/models"
)

type sent struct {
	to string
	ev models.Event
}

type fakePub struct {
	sent  []sent
	rooms map[string][]string
}

func newFakePub() *fakePub { return &fakePub{rooms: map[string][]string{}} }

func (f *fakePub) Send(to string, ev models.Event) { f.sent = append(f.sent, sent{to, ev}) }
func (f *fakePub) Join(room, id string)              { f.rooms[room] = append(f.rooms[room], id) }
func (f *fakePub) Broadcast(room string, ev models.Event) {
	for _, id := range f.rooms[room] {
		f.Send(id, ev)
	}
}
func (f *fakePub) CloseRoom(room string) { delete(f.rooms, room) }

func TestOfferRideOnlyWithinRadius(t *testing.T) {
	ctx := context.Background()
	pub := newFakePub()
	b := NewBroadcaster(geo.NewIndex(5*time.Minute), pub, 10, 30, logging.Discard())

	if err := b.OnDriverAvailable(ctx, "near", 36.751, 3.051); err != nil {
		t.Fatal(err)
	}
	if err := b.OnDriverAvailable(ctx, "far", 36.90, 3.20); err != nil {
		t.Fatal(err)
	}

	ride := &models.Ride{ID: "r1", Type: models.RideRegular, Origin: models.Coord{Lat: 36.7538, Lng: 3.0588}, Price: 50000}
	offers, err := b.OfferRide(ctx, ride)
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 || offers[0].DriverID != "near" {
		t.Fatalf("expected a single offer to near, got %+v", offers)
	}
	if len(pub.sent) != 1 || pub.sent[0].to != "near" || pub.sent[0].ev.Type != EventRideOffer {
		t.Fatalf("unexpected deliveries %+v", pub.sent)
	}
	if got := pub.rooms[OfferRoom("r1")]; len(got) != 1 || got[0] != "near" {
		t.Fatalf("offer room = %v", got)
	}
}

func TestOffersArePersonalized(t *testing.T) {
	ctx := context.Background()
	pub := newFakePub()
	b := NewBroadcaster(geo.NewIndex(5*time.Minute), pub, 10, 30, logging.Discard())
	_ = b.OnDriverAvailable(ctx, "a", 36.7538, 3.0588)
	_ = b.OnDriverAvailable(ctx, "b", 36.80, 3.10)

	offers, _ := b.OfferRide(ctx, &models.Ride{ID: "r1", Origin: models.Coord{Lat: 36.7538, Lng: 3.0588}})
	if len(offers) != 2 {
		t.Fatalf("expected two offers, got %d", len(offers))
	}
	if offers[0].DriverID != "a" || offers[0].DistanceKm != 0 || offers[0].ETAMinutes != 0 {
		t.Fatalf("unexpected first offer %+v", offers[0])
	}
	second := offers[1]
	if second.DistanceKm <= offers[0].DistanceKm {
		t.Fatalf("offers should differ per driver: %+v", offers)
	}
	want := geo.HaversineKm(36.7538, 3.0588, 36.80, 3.10)
	if second.DistanceKm != want {
		t.Fatalf("distance = %f, want %f", second.DistanceKm, want)
	}
	if second.ETAMinutes == 0 {
		t.Fatalf("expected a non-zero ETA for %f km", second.DistanceKm)
	}
	for _, s := range pub.sent {
		if s.ev.Payload.(models.RideOffer).DriverID != s.to {
			t.Fatalf("offer for %s delivered to %s", s.ev.Payload.(models.RideOffer).DriverID, s.to)
		}
	}
}

func TestOnDriverAvailableRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	idx := geo.NewIndex(time.Minute)
	b := NewBroadcaster(idx, newFakePub(), 10, 30, logging.Discard())
	for _, c := range [][2]float64{{91, 0}, {0, -181}} {
		if err := b.OnDriverAvailable(ctx, "d1", c[0], c[1]); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %v, got %v", c, err)
		}
	}
	if idx.Len() != 0 {
		t.Fatal("invalid ping must not reach the registry")
	}
}

func TestDisconnectRemovesDriver(t *testing.T) {
	ctx := context.Background()
	pub := newFakePub()
	b := NewBroadcaster(geo.NewIndex(time.Minute), pub, 10, 30, logging.Discard())
	_ = b.OnDriverAvailable(ctx, "d1", 36.75, 3.05)
	_ = b.OnDriverDisconnect(ctx, "d1")

	offers, _ := b.OfferRide(ctx, &models.Ride{ID: "r1", Origin: models.Coord{Lat: 36.75, Lng: 3.05}})
	if len(offers) != 0 || len(pub.sent) != 0 {
		t.Fatalf("disconnected driver received an offer")
	}
}
