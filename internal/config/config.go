// Package config loads runtime settings from environment variables.
package config

import (
	"os"
	"strconv"
	"time"

	"zvision/internal/auth"
	"zvision/internal/pipeline"
)

// Config holds all runtime settings
type Config struct {
	HTTPAddr         string
	DBPath           string
	SnapshotDir      string
	SnapshotMax      int
	DetectorEndpoint string

	Detection pipeline.GlobalConfig
	Reconnect pipeline.ReconnectConfig
	Auth      auth.Config

	EventRetention time.Duration
	SweepInterval  time.Duration
}

// Load reads the configuration from the environment, falling back to
// defaults suitable for local development
func Load() Config {
	detection := pipeline.DefaultGlobalConfig()
	detection.Confidence = getEnvAsFloat("DETECTION_CONFIDENCE", detection.Confidence)
	detection.IdleInterval = getEnvAsDuration("DETECTION_IDLE_INTERVAL", detection.IdleInterval)
	detection.ActiveInterval = getEnvAsDuration("DETECTION_ACTIVE_INTERVAL", detection.ActiveInterval)
	detection.DebounceMisses = getEnvAsInt("DETECTION_DEBOUNCE_MISSES", detection.DebounceMisses)
	detection.SnapshotInterval = getEnvAsDuration("SNAPSHOT_INTERVAL", detection.SnapshotInterval)

	reconnect := pipeline.DefaultReconnectConfig()
	reconnect.MaxAttempts = getEnvAsInt("RECONNECT_MAX_ATTEMPTS", reconnect.MaxAttempts)
	reconnect.Delay = getEnvAsDuration("RECONNECT_DELAY", reconnect.Delay)
	reconnect.MaxDelay = getEnvAsDuration("RECONNECT_MAX_DELAY", reconnect.MaxDelay)

	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DBPath:           getEnv("DB_PATH", "zvision.db"),
		SnapshotDir:      getEnv("SNAPSHOT_DIR", "snapshots"),
		SnapshotMax:      getEnvAsInt("SNAPSHOT_MAX_PER_CAMERA", 100),
		DetectorEndpoint: getEnv("DETECTOR_ENDPOINT", "http://localhost:8000"),
		Detection:        detection,
		Reconnect:        reconnect,
		Auth: auth.Config{
			Enabled:   getEnvAsBool("AUTH_ENABLED", false),
			Username:  getEnv("AUTH_USERNAME", "admin"),
			Password:  getEnv("AUTH_PASSWORD", ""),
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTExpiry: getEnvAsDuration("JWT_EXPIRY", 24*time.Hour),
		},
		EventRetention: getEnvAsDuration("EVENT_RETENTION", 30*24*time.Hour),
		SweepInterval:  getEnvAsDuration("SWEEP_INTERVAL", time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float32) float32 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
