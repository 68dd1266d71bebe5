package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Supported storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	ServiceName          string
	Port                 string
	LogLevel             string
	JWTSecret            string
	CORSAllowedOrigins   []string
	StoreDriver          string
	DBURL                string
	MongoURI             string
	MongoDB              string
	RedisAddr            string
	RedisPassword        string
	LockTTLMillis        int
	NATSURL              string
	OTLPEndpoint         string
	ReadTimeoutSecs      int
	WriteTimeoutSecs     int
	IdleTimeoutSecs      int
	RequestTimeoutSecs   int
	DBMaxConns           int
	DBMinConns           int
	DBMaxIdleSecs        int
	DBMaxLifeSecs        int
	DBConnTimeoutSecs    int
	DBStatementCache     int
	ProjectionAttempts   int
	ReconcileSweepSecs   int
	ReconcileConcurrency int
	ReconcileQueueSize   int
}

// Load reads configuration from environment variables, applying defaults and validation.
// A .env file in the working directory is honoured when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ServiceName:          getEnv("SERVICE_NAME", "movie-ratings"),
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		CORSAllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		StoreDriver:          strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DBURL:                os.Getenv("DB_URL"),
		MongoURI:             os.Getenv("MONGO_URI"),
		MongoDB:              getEnv("MONGO_DB", "movies"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		LockTTLMillis:        getEnvInt("LOCK_TTL_MS", 5000),
		NATSURL:              os.Getenv("NATS_URL"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ReadTimeoutSecs:      getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs:     getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:      getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		RequestTimeoutSecs:   getEnvInt("REQUEST_TIMEOUT_SECS", 10),
		DBMaxConns:           getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:           getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:        getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:        getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs:    getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:     getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
		ProjectionAttempts:   getEnvInt("PROJECTION_MAX_ATTEMPTS", 3),
		ReconcileSweepSecs:   getEnvInt("RECONCILE_SWEEP_SECS", 300),
		ReconcileConcurrency: getEnvInt("RECONCILE_CONCURRENCY", 4),
		ReconcileQueueSize:   getEnvInt("RECONCILE_QUEUE_SIZE", 1024),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DBURL == "" {
			return Config{}, fmt.Errorf("DB_URL is required for STORE_DRIVER=%s", DriverPostgres)
		}
	case DriverMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required for STORE_DRIVER=%s", DriverMongo)
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER must be one of %s, %s, %s", DriverPostgres, DriverMongo, DriverMemory)
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.LockTTLMillis <= 0 {
		return Config{}, fmt.Errorf("LOCK_TTL_MS must be positive")
	}
	if cfg.ProjectionAttempts <= 0 {
		return Config{}, fmt.Errorf("PROJECTION_MAX_ATTEMPTS must be positive")
	}
	if cfg.ReconcileSweepSecs < 0 {
		return Config{}, fmt.Errorf("RECONCILE_SWEEP_SECS must be non-negative")
	}
	if cfg.ReconcileConcurrency <= 0 {
		return Config{}, fmt.Errorf("RECONCILE_CONCURRENCY must be positive")
	}
	if cfg.ReconcileQueueSize <= 0 {
		return Config{}, fmt.Errorf("RECONCILE_QUEUE_SIZE must be positive")
	}
	if cfg.RequestTimeoutSecs <= 0 {
		return Config{}, fmt.Errorf("REQUEST_TIMEOUT_SECS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
