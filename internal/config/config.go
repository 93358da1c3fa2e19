package config

import (
	"os"
	"strconv"
	"time"
)

// Config is assembled from the environment; godotenv loads .env in main.
type Config struct {
	Port     string
	LogLevel string

	DatabaseURL string
	AMQPURL     string

	SweepInterval time.Duration
	// ReservationTTL of 0 disables auto-release of abandoned holds.
	ReservationTTL time.Duration
}

func Load() Config {
	return Config{
		Port:           getEnv("PORT", "3000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AMQPURL:        os.Getenv("AMQP_URL"),
		SweepInterval:  getMinutes("SWEEP_INTERVAL_MINUTES", 5),
		ReservationTTL: getMinutes("RESERVATION_TTL_MINUTES", 0),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getMinutes(key string, fallback int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return time.Duration(fallback) * time.Minute
}
