package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/halladj/vtc-sahra/internal/events"
	"github.com/halladj/vtc-sahra/internal/logging"
	"github.com/halladj/vtc-sahra/internal/models"
)

// fakeRecorder fails the first failN calls.
type fakeRecorder struct {
	failN    int
	calls    int
	recorded []events.RideEvent
}

func (f *fakeRecorder) Record(_ context.Context, ev events.RideEvent) error {
	f.calls++
	if f.calls <= f.failN {
		return errors.New("insert fail")
	}
	f.recorded = append(f.recorded, ev)
	return nil
}

// fakeSource serves msgs then cancels the loop.
type fakeSource struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (f *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func sampleEvent() events.RideEvent {
	return events.RideEvent{Type: events.RideAccepted, RideID: "r1", DriverID: "d1", Status: models.StatusAccepted, At: time.Now().UTC()}
}

func TestRecordWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeRecorder{failN: 2}
	start := time.Now()
	if err := recordWithRetry(context.Background(), f, sampleEvent(), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 || len(f.recorded) != 1 {
		t.Fatalf("calls=%d recorded=%d", f.calls, len(f.recorded))
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected doubling backoff between attempts")
	}
}

func TestRecordWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeRecorder{failN: 5}
	if err := recordWithRetry(context.Background(), f, sampleEvent(), 3, time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("calls = %d", f.calls)
	}
}

func TestRunRecordsAndCommitsEveryMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	good, _ := json.Marshal(sampleEvent())
	src := &fakeSource{
		msgs:   []kafka.Message{{Offset: 1, Value: good}, {Offset: 2, Value: []byte("garbage")}, {Offset: 3, Value: good}},
		cancel: cancel,
	}
	rec := &fakeRecorder{}

	run(ctx, src, rec, 3, time.Millisecond, logging.Discard())

	if len(rec.recorded) != 2 {
		t.Fatalf("recorded = %d", len(rec.recorded))
	}
	if len(src.committed) != 3 {
		t.Fatalf("invalid messages must be committed too, got %v", src.committed)
	}
}
