package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CommissionPercent.String() != "0.1" {
		t.Fatalf("commission default = %s", cfg.CommissionPercent)
	}
	if cfg.DispatchRadiusKm != 10 || cfg.DriverLocationTTL != 5*time.Minute || cfg.LocationMinInterval != 2*time.Second {
		t.Fatalf("unexpected dispatch defaults: %+v", cfg)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("COMMISSION_PERCENT", "0.15")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("DISPATCH_RADIUS_KM", "7.5")
	t.Setenv("EVENTS_BACKEND", "AMQP")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CommissionPercent.String() != "0.15" {
		t.Fatalf("commission = %s", cfg.CommissionPercent)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.DispatchRadiusKm != 7.5 || cfg.EventsBackend != "amqp" {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("COMMISSION_PERCENT", "1.5")
	t.Setenv("HTTP_READ_TIMEOUT", "soon")
	t.Setenv("BASE_FARE", "0")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"COMMISSION_PERCENT", "HTTP_READ_TIMEOUT", "BASE_FARE"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadServerConfigMemoryVehicles(t *testing.T) {
	t.Setenv("MEMORY_VEHICLES", "v1:d1, v2 : d2")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.MemoryVehicles) != 2 || cfg.MemoryVehicles["v1"] != "d1" || cfg.MemoryVehicles["v2"] != "d2" {
		t.Fatalf("vehicles = %v", cfg.MemoryVehicles)
	}

	t.Setenv("MEMORY_VEHICLES", "v1:d1,broken")
	if _, err := LoadServerConfig(); err == nil || !strings.Contains(err.Error(), "MEMORY_VEHICLES") {
		t.Fatalf("expected MEMORY_VEHICLES error, got %v", err)
	}
}

func TestLoadConsumerConfigRequiresDSN(t *testing.T) {
	t.Setenv("PG_DSN", "")
	if _, err := LoadConsumerConfig(); err == nil {
		t.Fatal("expected missing PG_DSN error")
	}
	t.Setenv("PG_DSN", "postgres://localhost/rides")
	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.KafkaTopic != "ride-events" {
		t.Fatalf("topic = %s", cfg.KafkaTopic)
	}
}
