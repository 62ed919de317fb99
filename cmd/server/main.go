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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/halladj/vtc-sahra/internal/auth"
	"github.com/halladj/vtc-sahra/internal/config"
	"github.com/halladj/vtc-sahra/internal/dispatch"
	"github.com/halladj/vtc-sahra/internal/events"
	"github.com/halladj/vtc-sahra/internal/geo"
	httpapi "github.com/halladj/vtc-sahra/internal/http"
	"github.com/halladj/vtc-sahra/internal/ledger"
	"github.com/halladj/vtc-sahra/internal/location"
	"github.com/halladj/vtc-sahra/internal/logging"
	"github.com/halladj/vtc-sahra/internal/payments"
	"github.com/halladj/vtc-sahra/internal/realtime"
	"github.com/halladj/vtc-sahra/internal/rides"
	"github.com/halladj/vtc-sahra/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid server configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("vtc-api", cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("server_exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := auth.NewVerifier(cfg.JWTSecret, time.Hour)
	if err != nil {
		return err
	}

	var (
		ready       []httpapi.ReadyCheck
		rideStore   storage.RideStore
		vehicles    storage.VehicleRegistry
		ledgerStore ledger.Store
	)
	if cfg.PGDSN != "" {
		db, err := storage.OpenPostgres(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.RunMigrations {
			if err := storage.Migrate(ctx, db, logger); err != nil {
				return err
			}
		}
		pool, err := pgxpool.New(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		rideStore = storage.NewPostgresStore(db)
		vehicles = storage.NewPostgresVehicles(db)
		ledgerStore = ledger.NewPostgresStore(pool)
		ready = append(ready,
			httpapi.ReadyCheck{Name: "rides_db", Check: db.PingContext},
			httpapi.ReadyCheck{Name: "ledger_db", Check: pool.Ping},
		)
	} else {
		logger.Warn("using_memory_stores", "reason", "PG_DSN not set")
		rideStore = storage.NewMemoryStore()
		vehicles = seedVehicles(cfg.MemoryVehicles, logger)
		ledgerStore = ledger.NewMemoryStore()
	}

	var (
		registry geo.Registry
		rate     location.RateStore
	)
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		registry = geo.NewRedisGeo(rc, cfg.RedisGeoKey, cfg.DriverLocationTTL)
		rate = location.NewRedisRateStore(rc, "location:last:")
		ready = append(ready, httpapi.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return rc.Ping(ctx).Err() }})
	} else {
		registry = geo.NewIndex(cfg.DriverLocationTTL)
		rate = location.NewMemoryRateStore()
	}

	sink, closeSink, err := openSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	l := ledger.New(ledgerStore, logger)
	engine := payments.NewEngine(l, cfg.CommissionPercent, cfg.CancellationPenaltyPercent, logger)
	var topUps *payments.TopUps
	if cfg.StripeAPIKey != "" {
		topUps = payments.NewTopUps(payments.NewStripeGateway(cfg.StripeAPIKey), l, cfg.Currency, logger)
	}

	hub := realtime.NewHub(logger)
	broadcaster := dispatch.NewBroadcaster(registry, hub, cfg.DispatchRadiusKm, cfg.AvgSpeedKmh, logger)
	svc := &rides.Service{
		Store:    rideStore,
		Vehicles: vehicles,
		Payments: engine,
		Dispatch: broadcaster,
		Notify:   hub,
		Events:   sink,
		Pricer:   rides.FlatFare(cfg.BaseFare),
		Logger:   logger,
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Rides:    svc,
		Ledger:   l,
		TopUps:   topUps,
		Dispatch: broadcaster,
		Location: location.NewHandler(rideStore, hub, rate, cfg.LocationMinInterval, logger),
		Hub:      hub,
		Auth:     verifier,
		Ready:    ready,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening", "addr", cfg.HTTPAddr, "events_backend", cfg.EventsBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// seedVehicles fills the in-memory registry from MEMORY_VEHICLES. Without it
// no vehicle is known and every accept fails.
func seedVehicles(owners map[string]string, logger *slog.Logger) *storage.MemoryVehicles {
	v := storage.NewMemoryVehicles()
	for vehicleID, driverID := range owners {
		v.Register(vehicleID, driverID)
	}
	if len(owners) == 0 {
		logger.Warn("no_vehicles_registered", "reason", "MEMORY_VEHICLES not set, accepts will be rejected")
	} else {
		logger.Info("vehicles_seeded", "count", len(owners))
	}
	return v
}

// openSink picks the ride event backend. A missing broker list downgrades
// kafka to a no-op sink rather than failing startup.
func openSink(cfg config.ServerConfig, logger *slog.Logger) (events.Sink, func(), error) {
	switch cfg.EventsBackend {
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			logger.Warn("ride_events_disabled", "reason", "KAFKA_BROKERS not set")
			return events.Nop{}, func() {}, nil
		}
		k := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		return k, func() { _ = k.Close() }, nil
	case "amqp":
		a, err := events.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return nil, nil, err
		}
		return a, func() { _ = a.Close() }, nil
	default:
		return events.Nop{}, func() {}, nil
	}
}
