/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	DBLogQueries  bool
	JWTSigningKey string

	RedisAddr     string // empty disables cache, distributed locks and redis fan-out
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	NATSURL     string // empty disables NATS publication
	NATSSubject string // pattern with one %s for the event id

	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string // empty disables snapshot archiving
	S3Endpoint        string // For S3-compatible services (MinIO, etc.)
	S3UsePathStyle    bool

	StoreTimeout   time.Duration
	PublishTimeout time.Duration
	LockTimeout    time.Duration
	LockLease      time.Duration

	GenerateRate  float64 // generate requests per second per process, 0 disables limiting
	GenerateBurst int

	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	DefaultSetupTime     int
	DefaultHeatDuration  int
	DefaultBreakDuration int
	DefaultDayStart      string

	InstanceID string
}

// Load reads configuration from the environment. Outside production a .env
// file in the working directory is loaded first; real environment variables
// always win over it.
func Load() (*Config, error) {
	if !strings.EqualFold(getEnvAny([]string{"ATHLEON_ENV", "ENVIRONMENT"}, "development"), "production") {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{
		Environment:   getEnvAny([]string{"ATHLEON_ENV", "ENVIRONMENT"}, "development"),
		HTTPBind:      getEnvAny([]string{"ATHLEON_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"ATHLEON_HTTP_PORT", "PORT"}, 8080),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"ATHLEON_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:         getEnvAny([]string{"ATHLEON_DB_DSN", "DATABASE_URL"}, ""),
		DBLogQueries:  getEnvBoolAny([]string{"ATHLEON_DB_LOG_QUERIES"}, false),
		JWTSigningKey: getEnvAny([]string{"ATHLEON_JWT_SIGNING_KEY", "JWT_SIGNING_KEY"}, ""),

		RedisAddr:     getEnvAny([]string{"ATHLEON_REDIS_ADDR", "REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"ATHLEON_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"ATHLEON_REDIS_DB"}, 0),
		CacheTTL:      getEnvDurationAny([]string{"ATHLEON_CACHE_TTL"}, 10*time.Minute),

		NATSURL:     getEnvAny([]string{"ATHLEON_NATS_URL", "NATS_URL"}, ""),
		NATSSubject: getEnvAny([]string{"ATHLEON_NATS_SUBJECT"}, "athleon.schedules.%s"),

		S3AccessKeyID:     getEnvAny([]string{"ATHLEON_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"ATHLEON_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"ATHLEON_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"ATHLEON_S3_BUCKET", "SCHEDULE_ARCHIVE_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"ATHLEON_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"ATHLEON_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		StoreTimeout:   getEnvDurationAny([]string{"ATHLEON_STORE_TIMEOUT"}, 5*time.Second),
		PublishTimeout: getEnvDurationAny([]string{"ATHLEON_PUBLISH_TIMEOUT"}, 2*time.Second),
		LockTimeout:    getEnvDurationAny([]string{"ATHLEON_LOCK_TIMEOUT"}, 3*time.Second),
		LockLease:      getEnvDurationAny([]string{"ATHLEON_LOCK_LEASE"}, 15*time.Second),

		GenerateRate:  getEnvFloatAny([]string{"ATHLEON_GENERATE_RATE"}, 2),
		GenerateBurst: getEnvIntAny([]string{"ATHLEON_GENERATE_BURST"}, 5),

		TracingEnabled:    getEnvBoolAny([]string{"ATHLEON_TRACING_ENABLED", "TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"ATHLEON_OTLP_ENDPOINT", "OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"ATHLEON_TRACING_SAMPLE_RATE"}, 1.0),

		DefaultSetupTime:     getEnvIntAny([]string{"ATHLEON_DEFAULT_SETUP_TIME"}, 10),
		DefaultHeatDuration:  getEnvIntAny([]string{"ATHLEON_DEFAULT_HEAT_DURATION"}, 20),
		DefaultBreakDuration: getEnvIntAny([]string{"ATHLEON_DEFAULT_BREAK_DURATION"}, 5),
		DefaultDayStart:      getEnvAny([]string{"ATHLEON_DEFAULT_DAY_START"}, "08:00"),

		InstanceID: getEnvAny([]string{"ATHLEON_INSTANCE_ID", "HOSTNAME"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("ATHLEON_DB_DSN or DATABASE_URL must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("ATHLEON_JWT_SIGNING_KEY or JWT_SIGNING_KEY must be provided")
	}

	if cfg.StoreTimeout <= 0 || cfg.PublishTimeout <= 0 || cfg.LockTimeout <= 0 {
		return nil, fmt.Errorf("store, publish and lock timeouts must be positive")
	}

	if cfg.DefaultHeatDuration <= 0 || cfg.DefaultSetupTime < 0 || cfg.DefaultBreakDuration < 0 {
		return nil, fmt.Errorf("invalid default durations: heat %d, setup %d, break %d",
			cfg.DefaultHeatDuration, cfg.DefaultSetupTime, cfg.DefaultBreakDuration)
	}

	if _, err := models.ParseClock(cfg.DefaultDayStart); err != nil {
		return nil, fmt.Errorf("ATHLEON_DEFAULT_DAY_START: %w", err)
	}

	if strings.EqualFold(cfg.Environment, "production") && len(cfg.JWTSigningKey) < 32 {
		return nil, fmt.Errorf("ATHLEON_JWT_SIGNING_KEY must be at least 32 bytes in production")
	}

	return cfg, nil
}

// HTTPAddr returns the listen address for the API server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go duration strings ("5s") or whole seconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed
			}
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return def
}
