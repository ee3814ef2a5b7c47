package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "onboarding/pkg/platform/strings"
)

// Config is everything the server reads from its environment.
type Config struct {
	OpsAddr   string
	LogLevel  string
	RulesPath string
	// SealKey is the 32-byte secretbox key for stored vendor responses.
	SealKey []byte

	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig
	Vendors   VendorConfig
	Tracing   TracingConfig
}

// DatabaseConfig selects the store. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig backs the scheduler lease. An empty URL uses an in-process lease.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig is where transition notifications go. No brokers disables the relay.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	RelayInterval time.Duration
}

type SchedulerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	LeaseTTL    time.Duration
}

type VendorConfig struct {
	// Identity and Business name the sandbox vendors to register, in waterfall order.
	Identity          []string
	Business          []string
	Timeout           time.Duration
	RateLimit         float64
	Burst             int
	FailureThreshold  int
	Cooldown          time.Duration
	IncodeMaxAttempts int
}

type TracingConfig struct {
	Enabled     bool
	ServiceName string
}

// devSealKey is only used when SEAL_KEY is unset.
var devSealKey = []byte("dev-seal-key-change-in-production")[:32]

// FromEnv builds the Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		OpsAddr:   env("OPS_ADDR", ":9090"),
		LogLevel:  env("LOG_LEVEL", "info"),
		RulesPath: os.Getenv("RULES_PATH"),
		SealKey:   devSealKey,
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       envList("KAFKA_BROKERS"),
			Topic:         env("KAFKA_TOPIC", "onboarding.workflow-events"),
			RelayInterval: envDuration("OUTBOX_RELAY_INTERVAL", time.Second),
		},
		Scheduler: SchedulerConfig{
			Interval:    envDuration("SCHEDULER_INTERVAL", 5*time.Second),
			BatchSize:   envInt("SCHEDULER_BATCH_SIZE", 100),
			Concurrency: envInt("SCHEDULER_CONCURRENCY", 8),
			LeaseTTL:    envDuration("SCHEDULER_LEASE_TTL", 30*time.Second),
		},
		Vendors: VendorConfig{
			Identity:          envNames("IDENTITY_VENDORS", "idology,experian"),
			Business:          envNames("BUSINESS_VENDORS", "middesk,lexis"),
			Timeout:           envDuration("VENDOR_TIMEOUT", 30*time.Second),
			RateLimit:         envFloat("VENDOR_RATE_LIMIT", 20),
			Burst:             envInt("VENDOR_BURST", 5),
			FailureThreshold:  envInt("VENDOR_FAILURE_THRESHOLD", 5),
			Cooldown:          envDuration("VENDOR_COOLDOWN", 30*time.Second),
			IncodeMaxAttempts: envInt("INCODE_MAX_ATTEMPTS", 3),
		},
		Tracing: TracingConfig{
			Enabled:     os.Getenv("TRACING_ENABLED") == "true",
			ServiceName: env("OTEL_SERVICE_NAME", "onboarding"),
		},
	}

	if raw := os.Getenv("SEAL_KEY"); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("decode SEAL_KEY: %w", err)
		}
		if len(key) != 32 {
			return Config{}, fmt.Errorf("SEAL_KEY must be 32 bytes, got %d", len(key))
		}
		cfg.SealKey = key
	}
	return cfg, nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}

func envList(key string) []string {
	return platformstrings.DedupeAndTrim(strings.Split(os.Getenv(key), ","))
}

func envNames(key, fallback string) []string {
	return platformstrings.DedupeAndTrimLower(strings.Split(env(key, fallback), ","))
}
