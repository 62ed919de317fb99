package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ServerConfig captures all tunable parameters for the API process.
// Values are loaded from environment variables with defaults so the binary
// runs locally on in-memory stores without any infrastructure.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	EventsBackend string
	KafkaBrokers  []string
	KafkaTopic    string
	AMQPURL       string
	AMQPExchange  string

	PGDSN string
	// MemoryVehicles maps vehicle id to driver id for the in-memory registry
	// used when PG_DSN is unset. Format: "veh1:drv1,veh2:drv2".
	MemoryVehicles map[string]string

	StripeAPIKey string
	Currency     string

	JWTSecret string

	CommissionPercent          decimal.Decimal
	CancellationPenaltyPercent decimal.Decimal
	BaseFare                   int64

	DispatchRadiusKm    float64
	DriverLocationTTL   time.Duration
	AvgSpeedKmh         float64
	LocationMinInterval time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:                   ":8080",
		ReadTimeout:                5 * time.Second,
		WriteTimeout:               10 * time.Second,
		IdleTimeout:                120 * time.Second,
		ShutdownTimeout:            15 * time.Second,
		RedisGeoKey:                "drivers_geo",
		EventsBackend:              "kafka",
		KafkaTopic:                 "ride-events",
		AMQPExchange:               "ride_topic",
		Currency:                   "dzd",
		CommissionPercent:          decimal.RequireFromString("0.10"),
		CancellationPenaltyPercent: decimal.RequireFromString("0.05"),
		BaseFare:                   50000,
		DispatchRadiusKm:           10,
		DriverLocationTTL:          5 * time.Minute,
		AvgSpeedKmh:                30,
		LocationMinInterval:        2 * time.Second,
		LogLevel:                   "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if v := os.Getenv("EVENTS_BACKEND"); v != "" {
		cfg.EventsBackend = strings.ToLower(strings.TrimSpace(v))
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	cfg.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	setStringFromEnv(&cfg.AMQPExchange, "AMQP_EXCHANGE")

	cfg.PGDSN = os.Getenv("PG_DSN")
	if v := os.Getenv("MEMORY_VEHICLES"); v != "" {
		cfg.MemoryVehicles = parseVehicles(v, &errs)
	}
	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")
	setStringFromEnv(&cfg.Currency, "CURRENCY")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	setPercentFromEnv(&cfg.CommissionPercent, "COMMISSION_PERCENT", &errs)
	setPercentFromEnv(&cfg.CancellationPenaltyPercent, "CANCELLATION_PENALTY_PERCENT", &errs)
	setInt64FromEnv(&cfg.BaseFare, "BASE_FARE", &errs)

	setFloatFromEnv(&cfg.DispatchRadiusKm, "DISPATCH_RADIUS_KM", &errs)
	setDurationFromEnv(&cfg.DriverLocationTTL, "DRIVER_LOCATION_TTL", &errs)
	setFloatFromEnv(&cfg.AvgSpeedKmh, "AVG_SPEED_KMH", &errs)
	setDurationFromEnv(&cfg.LocationMinInterval, "LOCATION_MIN_INTERVAL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.BaseFare <= 0 {
		errs = append(errs, fmt.Errorf("BASE_FARE must be > 0"))
	}
	if cfg.DispatchRadiusKm <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_RADIUS_KM must be > 0"))
	}
	if cfg.AvgSpeedKmh <= 0 {
		errs = append(errs, fmt.Errorf("AVG_SPEED_KMH must be > 0"))
	}
	switch cfg.EventsBackend {
	case "kafka", "amqp", "none":
	default:
		errs = append(errs, fmt.Errorf("EVENTS_BACKEND must be one of kafka, amqp, none"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig configures the ride event auditor.
type ConsumerConfig struct {
	MetricsAddr  string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
	PGDSN        string
	Retries      int
	RetryDelay   time.Duration
	LogLevel     string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr:  ":2112",
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "ride-events",
		KafkaGroup:   "ride-events-auditor",
		Retries:      3,
		RetryDelay:   200 * time.Millisecond,
		LogLevel:     "info",
	}
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	cfg.PGDSN = os.Getenv("PG_DSN")
	setIntFromEnv(&cfg.Retries, "CONSUMER_RETRIES", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "CONSUMER_RETRY_DELAY", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.PGDSN == "" {
		errs = append(errs, fmt.Errorf("PG_DSN is required"))
	}
	if cfg.Retries <= 0 {
		errs = append(errs, fmt.Errorf("CONSUMER_RETRIES must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setInt64FromEnv(target *int64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

// setPercentFromEnv parses a fraction such as "0.10"; it must lie in [0,1].
func setPercentFromEnv(target *decimal.Decimal, key string, errs *[]error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		*errs = append(*errs, fmt.Errorf("%s must be within [0,1]", key))
		return
	}
	*target = d
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

// parseVehicles reads "vehicle:driver" pairs separated by commas.
func parseVehicles(v string, errs *[]error) map[string]string {
	out := make(map[string]string)
	for _, pair := range splitAndTrim(v) {
		vehicle, driver, ok := strings.Cut(pair, ":")
		vehicle, driver = strings.TrimSpace(vehicle), strings.TrimSpace(driver)
		if !ok || vehicle == "" || driver == "" {
			*errs = append(*errs, fmt.Errorf("invalid MEMORY_VEHICLES entry %q, want vehicle:driver", pair))
			continue
		}
		out[vehicle] = driver
	}
	return out
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
