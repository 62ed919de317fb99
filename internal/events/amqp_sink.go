package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/halladj/vtc-sahra/internal/observability"
)

const (
	amqpQueueSize      = 256
	amqpPublishTimeout = 2 * time.Second
)

// amqpPublisher is the part of *amqp.Channel the sink publishes through.
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type amqpMessage struct {
	key    string
	rideID string
	msg    amqp.Publishing
}

// AMQPSink publishes events to a topic exchange with the event type as routing
// key. Emit only enqueues; a single goroutine publishes, and events that find
// the queue full are dropped and counted.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	pub      amqpPublisher
	exchange string
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan amqpMessage
	done   chan struct{}
}

func NewAMQPSink(url, exchange string, logger *slog.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", exchange, err)
	}
	a := newAMQPSink(ch, exchange, amqpQueueSize, logger)
	a.conn, a.ch = conn, ch
	return a, nil
}

func newAMQPSink(pub amqpPublisher, exchange string, queueSize int, logger *slog.Logger) *AMQPSink {
	a := &AMQPSink{
		pub:      pub,
		exchange: exchange,
		logger:   logger,
		queue:    make(chan amqpMessage, queueSize),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AMQPSink) Emit(_ context.Context, ev RideEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		a.logger.Error("ride_event_encode_failed", "type", ev.Type, "ride_id", ev.RideID, "error", err)
		return
	}
	m := amqpMessage{key: ev.Type, rideID: ev.RideID, msg: amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    ev.RideID + ":" + ev.Type,
		Timestamp:    ev.At,
		Body:         body,
	}}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- m:
	default:
		observability.EventsPublished.WithLabelValues("amqp", "dropped").Inc()
		a.logger.Warn("ride_event_dropped", "type", ev.Type, "ride_id", ev.RideID, "reason", "queue full")
	}
}

func (a *AMQPSink) run() {
	defer close(a.done)
	for m := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), amqpPublishTimeout)
		err := a.pub.PublishWithContext(ctx, a.exchange, m.key, false, false, m.msg)
		cancel()
		if err != nil {
			observability.EventsPublished.WithLabelValues("amqp", "error").Inc()
			a.logger.Warn("ride_event_publish_failed", "type", m.key, "ride_id", m.rideID, "error", err)
			continue
		}
		observability.EventsPublished.WithLabelValues("amqp", "ok").Inc()
	}
}

// Close stops accepting events, drains the queue and closes the connection.
func (a *AMQPSink) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done

	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
