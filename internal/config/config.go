package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup from the environment. A .env file, when
// present, is loaded first but never overrides real environment values.
type Config struct {
	Port        string
	DatabaseURL string
	NATSURL     string
	SandboxCmd  string
	LogLevel    string

	// Session tuning. Zero values fall back to defaults.
	ClientBuffer int
	WriteTimeout time.Duration
}

func Load() (Config, error) {
	// Missing .env is fine; env vars may come from the real environment.
	_ = godotenv.Load()

	cfg := Config{
		Port:         getenv("PORT", "8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		NATSURL:      os.Getenv("NATS_URL"),
		SandboxCmd:   getenv("SANDBOX_CMD", "python3 sandbox.py"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		ClientBuffer: 8,
		WriteTimeout: 3 * time.Second,
	}

	if v := os.Getenv("CLIENT_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid CLIENT_BUFFER %q", v)
		}
		cfg.ClientBuffer = n
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
