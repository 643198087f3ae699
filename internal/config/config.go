// Package config loads runtime settings from the environment, with a .env
// file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything the binaries need from the environment.
type Config struct {
	// BrokerURL is the websocket endpoint of the room broker.
	BrokerURL string
	// RESTBase is the base URL of the request/response collaborator.
	RESTBase string
	// ListenAddr is where the dev broker serves HTTP and websocket.
	ListenAddr string
	// PostgresDSN selects the gorm-backed stores; empty means in-memory.
	PostgresDSN string

	ReconnectDelay time.Duration
	MaxReconnects  int
}

// Load reads .env if present, then the environment. Missing keys fall back
// to localhost defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		BrokerURL:      getenv("BROKER_URL", "ws://localhost:8080/ws"),
		RESTBase:       getenv("REST_BASE", "http://localhost:8080"),
		ListenAddr:     getenv("LISTEN_ADDR", ":8080"),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		ReconnectDelay: getduration("RECONNECT_DELAY", 2*time.Second),
		MaxReconnects:  getint("MAX_RECONNECTS", 5),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
