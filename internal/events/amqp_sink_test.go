package events

import (
	"context"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/halladj/vtc-sahra/internal/logging"
)

// gatedPublisher blocks every publish until release is closed.
type gatedPublisher struct {
	started chan struct{}
	release chan struct{}

	mu   sync.Mutex
	keys []string
}

func (g *gatedPublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, _ amqp.Publishing) error {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys = append(g.keys, key)
	return nil
}

func TestAMQPEmitNeverWaitsOnBroker(t *testing.T) {
	pub := &gatedPublisher{started: make(chan struct{}, 1), release: make(chan struct{})}
	sink := newAMQPSink(pub, "ride_topic", 1, logging.Discard())
	ev := RideEvent{Type: RideCreated, RideID: "r1", At: time.Now()}

	sink.Emit(context.Background(), ev)
	select {
	case <-pub.started:
	case <-time.After(time.Second):
		t.Fatal("first event was never published")
	}

	// the broker is stuck; one event fits the queue, the next is dropped
	start := time.Now()
	ev.Type = RideAccepted
	sink.Emit(context.Background(), ev)
	ev.Type = RideCancelled
	sink.Emit(context.Background(), ev)
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("emit blocked on a stuck broker")
	}

	close(pub.release)
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	sink.Emit(context.Background(), ev)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.keys) != 2 || pub.keys[0] != RideCreated || pub.keys[1] != RideAccepted {
		t.Fatalf("published %v", pub.keys)
	}
}
