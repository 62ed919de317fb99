package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
)

// Recorder persists ride events for audit.
type Recorder interface {
	Record(ctx context.Context, ev RideEvent) error
}

// Key identifies an event across redeliveries.
func Key(ev RideEvent) string {
	return ev.RideID + ":" + ev.Type + ":" + strconv.FormatInt(ev.At.UnixNano(), 10)
}

// PostgresRecorder appends to ride_events. Redelivered events are ignored.
type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (p *PostgresRecorder) Record(ctx context.Context, ev RideEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode ride event: %w", err)
	}
	var actor sql.NullString
	if ev.ActorID != "" {
		actor = sql.NullString{String: ev.ActorID, Valid: true}
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO ride_events (event_key, type, ride_id, actor_id, status, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_key) DO NOTHING
	`, Key(ev), ev.Type, ev.RideID, actor, string(ev.Status), payload, ev.At)
	if err != nil {
		return fmt.Errorf("insert ride event %s: %w", ev.RideID, err)
	}
	return nil
}
