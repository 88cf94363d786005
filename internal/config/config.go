// Package config loads process configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"triwhist/internal/engine"
)

// Config is everything the process needs to join a table.
type Config struct {
	// Seat is the local player identity, 1 to 3.
	Seat engine.Seat
	// ListenAddr is where the transport accepts inbound connections.
	ListenAddr string
	// AdvertiseAddr is the dial address put into offers; defaults to
	// ListenAddr when empty.
	AdvertiseAddr string
	// ExtraAddrs are alternate dial addresses relayed to peers as
	// connection candidates, comma separated in the environment.
	ExtraAddrs []string
	// Table namespaces signaling keys so multiple games share a Redis.
	Table string
	// Secret signs session tokens; all three peers must share it.
	Secret string

	RedisURL    string
	PostgresDSN string // optional, empty disables score history
	StorePath   string

	LogLevel string
	// Debug shortens connection timeouts for local testing.
	Debug bool
}

// Load reads the environment, preferring an existing .env file.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	seatNum, err := strconv.Atoi(getenv("TRIWHIST_SEAT", "1"))
	if err != nil {
		return nil, fmt.Errorf("parse TRIWHIST_SEAT: %w", err)
	}
	seat := engine.Seat(seatNum - 1)
	if !seat.Valid() {
		return nil, fmt.Errorf("TRIWHIST_SEAT must be 1 to 3, got %d", seatNum)
	}

	cfg := &Config{
		Seat:          seat,
		ListenAddr:    getenv("TRIWHIST_LISTEN_ADDR", ":8080"),
		AdvertiseAddr: os.Getenv("TRIWHIST_ADVERTISE_ADDR"),
		ExtraAddrs:    splitList(os.Getenv("TRIWHIST_EXTRA_ADDRS")),
		Table:         getenv("TRIWHIST_TABLE", "triwhist"),
		Secret:        os.Getenv("TRIWHIST_SECRET"),
		RedisURL:      getenv("REDIS_URL", "redis://localhost:6379/0"),
		PostgresDSN:   os.Getenv("DATABASE_URL"),
		StorePath:     getenv("TRIWHIST_STORE_PATH", "triwhist.db"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		Debug:         os.Getenv("TRIWHIST_DEBUG") == "1",
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("TRIWHIST_SECRET is required")
	}
	if cfg.AdvertiseAddr == "" {
		cfg.AdvertiseAddr = "ws://localhost" + cfg.ListenAddr
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
