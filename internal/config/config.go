package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the orgdir server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Tokens   TokenConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	CacheTTL time.Duration
}

// TokenConfig controls token issuance and the per-token request budget.
type TokenConfig struct {
	DefaultLimit int
	Window       time.Duration
	MaxPerUser   int
}

// Load reads configuration from environment variables and returns a validated
// Config. A .env file in the working directory is applied first if present.
// Returns an error with a descriptive message if any required value is
// missing or invalid.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("ORGDIR_PORT", 8080),
			Env:  envString("ORGDIR_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			CacheTTL: envDuration("REDIS_CACHE_TTL", 5*time.Minute),
		},
		Tokens: TokenConfig{
			DefaultLimit: envInt("TOKEN_DEFAULT_LIMIT", 100),
			Window:       envDuration("TOKEN_WINDOW", time.Hour),
			MaxPerUser:   envInt("TOKEN_MAX_PER_USER", 5),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Tokens.DefaultLimit <= 0 {
		return fmt.Errorf("TOKEN_DEFAULT_LIMIT must be positive, got %d", c.Tokens.DefaultLimit)
	}
	if c.Tokens.Window <= 0 {
		return fmt.Errorf("TOKEN_WINDOW must be positive, got %s", c.Tokens.Window)
	}
	if c.Tokens.MaxPerUser <= 0 {
		return fmt.Errorf("TOKEN_MAX_PER_USER must be positive, got %d", c.Tokens.MaxPerUser)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
