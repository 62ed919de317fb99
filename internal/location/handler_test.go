package location

import (
	"context"
	"testing"
	"time"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/logging"
	"github.com/halladj/vtc-sahra/internal/models"
)

type fakeRides map[string]*models.Ride

func (f fakeRides) Get(_ context.Context, id string) (*models.Ride, error) {
	r, ok := f[id]
	if !ok {
		return nil, apperr.NotFound("fake.get", "ride %s not found", id)
	}
	return r.Clone(), nil
}

type outbox struct {
	to  []string
	evs []models.Event
}

func (o *outbox) Send(to string, ev models.Event) {
	o.to = append(o.to, to)
	o.evs = append(o.evs, ev)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestHandler(rides fakeRides) (*Handler, *outbox, *clock) {
	out := &outbox{}
	c := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	h := NewHandler(rides, out, NewMemoryRateStore(), 2*time.Second, logging.Discard())
	h.now = c.now
	return h, out, c
}

func ongoing() fakeRides {
	return fakeRides{
		"r1": {ID: "r1", PassengerID: "p1", DriverID: "d1", Status: models.StatusOngoing},
		"r2": {ID: "r2", PassengerID: "p2", DriverID: "d1", Status: models.StatusCompleted},
		"r3": {ID: "r3", PassengerID: "p3", Status: models.StatusPending},
	}
}

func ptr(f float64) *float64 { return &f }

func TestRelaysToPassengerOnly(t *testing.T) {
	h, out, _ := newTestHandler(ongoing())
	got, err := h.OnLocationUpdate(context.Background(), "d1", models.LocationUpdate{RideID: "r1", Lat: 36.7538, Lng: 3.0588, Heading: ptr(90)})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.DriverID != "d1" || got.ServerTime.IsZero() {
		t.Fatalf("unexpected relay %+v", got)
	}
	if len(out.to) != 1 || out.to[0] != "p1" || out.evs[0].Type != EventDriverLocation {
		t.Fatalf("unexpected deliveries %v", out.to)
	}
	if loc, ok := h.LastSeen("d1"); !ok || loc.Loc.Lat != 36.7538 {
		t.Fatalf("last seen = %+v %v", loc, ok)
	}
}

func TestRejections(t *testing.T) {
	cases := []struct {
		name   string
		driver string
		update models.LocationUpdate
		want   Code
	}{
		{"latitude out of range", "d1", models.LocationUpdate{RideID: "r1", Lat: 95, Lng: 3}, CodeInvalidLocation},
		{"heading out of range", "d1", models.LocationUpdate{RideID: "r1", Lat: 36, Lng: 3, Heading: ptr(361)}, CodeInvalidLocation},
		{"negative speed", "d1", models.LocationUpdate{RideID: "r1", Lat: 36, Lng: 3, Speed: ptr(-1)}, CodeInvalidLocation},
		{"unknown ride", "d1", models.LocationUpdate{RideID: "nope", Lat: 36, Lng: 3}, CodeRideNotFound},
		{"not the driver", "d2", models.LocationUpdate{RideID: "r1", Lat: 36, Lng: 3}, CodeUnauthorized},
		{"no driver yet", "d1", models.LocationUpdate{RideID: "r3", Lat: 36, Lng: 3}, CodeUnauthorized},
		{"completed ride", "d1", models.LocationUpdate{RideID: "r2", Lat: 36, Lng: 3}, CodeInvalidRideStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, out, _ := newTestHandler(ongoing())
			got, err := h.OnLocationUpdate(context.Background(), tc.driver, tc.update)
			if got != nil || CodeOf(err) != tc.want {
				t.Fatalf("got %v %v, want code %s", got, err, tc.want)
			}
			if len(out.to) != 0 {
				t.Fatalf("nothing should be relayed, got %v", out.to)
			}
		})
	}
}

func TestRateLimitDropsSilently(t *testing.T) {
	ctx := context.Background()
	h, out, c := newTestHandler(ongoing())
	u := models.LocationUpdate{RideID: "r1", Lat: 36.7538, Lng: 3.0588}

	if _, err := h.OnLocationUpdate(ctx, "d1", u); err != nil {
		t.Fatal(err)
	}
	c.t = c.t.Add(1500 * time.Millisecond)
	got, err := h.OnLocationUpdate(ctx, "d1", u)
	if got != nil || err != nil {
		t.Fatalf("expected silent drop, got %v %v", got, err)
	}
	c.t = c.t.Add(500 * time.Millisecond)
	if got, err := h.OnLocationUpdate(ctx, "d1", u); got == nil || err != nil {
		t.Fatalf("expected relay after interval, got %v %v", got, err)
	}
	if len(out.to) != 2 {
		t.Fatalf("deliveries = %d", len(out.to))
	}
}

func TestRejectedPingDoesNotConsumeSlot(t *testing.T) {
	ctx := context.Background()
	h, _, _ := newTestHandler(ongoing())
	if _, err := h.OnLocationUpdate(ctx, "d1", models.LocationUpdate{RideID: "r1", Lat: 95}); CodeOf(err) != CodeInvalidLocation {
		t.Fatalf("err = %v", err)
	}
	if got, err := h.OnLocationUpdate(ctx, "d1", models.LocationUpdate{RideID: "r1", Lat: 36.7538, Lng: 3.0588}); got == nil || err != nil {
		t.Fatalf("valid ping should relay, got %v %v", got, err)
	}
}

func TestDisconnectClearsState(t *testing.T) {
	ctx := context.Background()
	h, _, _ := newTestHandler(ongoing())
	u := models.LocationUpdate{RideID: "r1", Lat: 36.7538, Lng: 3.0588}
	if _, err := h.OnLocationUpdate(ctx, "d1", u); err != nil {
		t.Fatal(err)
	}
	h.OnDriverDisconnect(ctx, "d1")
	if _, ok := h.LastSeen("d1"); ok {
		t.Fatal("last seen should be cleared")
	}
	if got, err := h.OnLocationUpdate(ctx, "d1", u); got == nil || err != nil {
		t.Fatalf("rate limit should be reset, got %v %v", got, err)
	}
}
