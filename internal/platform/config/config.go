package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration for both the HTTP server and
// the batch importer.
type Config struct {
	Addr          string
	DatabaseDSN   string
	RedisURL      string
	JWTSigningKey string

	// ImporterBatchSize bounds the in-flight set of concurrent per-row
	// operations for feeds whose rows are independent.
	ImporterBatchSize int

	// ImporterLockTTL is the lease duration of the per-feed run lock.
	ImporterLockTTL time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:              getenv("PUBREC_ADDR", ":8080"),
		DatabaseDSN:       os.Getenv("PUBREC_DB_DSN"),
		RedisURL:          os.Getenv("PUBREC_REDIS_URL"),
		JWTSigningKey:     getenv("PUBREC_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ImporterBatchSize: 10,
		ImporterLockTTL:   30 * time.Minute,
	}
	if raw := os.Getenv("PUBREC_IMPORTER_BATCH_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.ImporterBatchSize = n
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
