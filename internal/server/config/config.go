// Package config loads server settings from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// DatabaseDSN is the Postgres connection string. Empty selects the
	// in-memory repository (development only; nothing survives a restart).
	DatabaseDSN string

	// JWTSecret verifies bearer tokens minted by the auth provider.
	JWTSecret string

	LogLevel    string
	Environment string
}

func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	c := &Config{
		Addr:        getEnv("ANCHORED_ADDR", ":8080"),
		DatabaseDSN: getEnv("ANCHORED_DATABASE_DSN", ""),
		JWTSecret:   getEnv("ANCHORED_JWT_SECRET", ""),
		LogLevel:    getEnv("ANCHORED_LOG_LEVEL", "info"),
		Environment: getEnv("ANCHORED_ENV", "development"),
	}

	if c.JWTSecret == "" {
		return nil, fmt.Errorf("ANCHORED_JWT_SECRET is required")
	}
	return c, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
