package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/halladj/vtc-sahra/internal/config"
	"github.com/halladj/vtc-sahra/internal/events"
	"github.com/halladj/vtc-sahra/internal/logging"
	"github.com/halladj/vtc-sahra/internal/storage"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total ride event messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	eventsRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_events_recorded_total",
		Help: "Total ride events written to the audit table",
	})
	recordErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_record_errors_total",
		Help: "Total ride events that could not be written after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, eventsRecorded, recordErrors)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		slog.Error("invalid consumer configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("ride-event-auditor", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenPostgres(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("postgres_connect_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	recorder := events.NewPostgresRecorder(db)

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "postgres not ready", 503)
				return
			}
			w.WriteHeader(200)
			_, _ = w.Write([]byte("ready"))
		})
		logger.Info("metrics_listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics_server_stopped", "error", err)
		}
	}()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 1, MaxBytes: 10e6})
	defer func() { _ = r.Close() }()

	logger.Info("consumer_started", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)
	run(ctx, r, recorder, cfg.Retries, cfg.RetryDelay, logger)
	logger.Info("consumer_stopped")
}

// MessageSource is the subset of *kafka.Reader the loop needs.
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// run commits each message only after it is recorded or known to be
// unrecordable, so a crash redelivers at most the in-flight message.
func run(ctx context.Context, src MessageSource, rec events.Recorder, attempts int, delay time.Duration, logger *slog.Logger) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := src.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka_read_error", "error", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()

		ev, err := events.Decode(m.Value)
		if err != nil || ev.RideID == "" || ev.Type == "" {
			msgsInvalid.Inc()
			logger.Warn("invalid_message", "offset", m.Offset, "partition", m.Partition, "error", err)
		} else if err := recordWithRetry(ctx, rec, ev, attempts, delay); err != nil {
			if ctx.Err() != nil {
				return
			}
			recordErrors.Inc()
			logger.Error("record_failed", "ride_id", ev.RideID, "type", ev.Type, "error", err)
		} else {
			eventsRecorded.Inc()
		}

		if err := src.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			logger.Warn("kafka_commit_error", "offset", m.Offset, "error", err)
		}
	}
}

// recordWithRetry retries with doubling delay.
func recordWithRetry(ctx context.Context, rec events.Recorder, ev events.RideEvent, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = rec.Record(ctx, ev); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if !sleep(ctx, delay) {
			return errors.Join(err, ctx.Err())
		}
		delay *= 2
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
