// Package config loads runtime settings from an optional YAML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends selectable with STORE.
const (
	// StorePostgres keeps ladder state in PostgreSQL.
	StorePostgres = "postgres"
	// StoreMemory keeps ladder state in process memory; it is lost on exit.
	StoreMemory = "memory"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

// DSN builds a libpq-compatible connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// LogConfig selects the zap level ("debug", "info", ...) and encoding
// ("json" or "console").
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full application configuration.
type Config struct {
	Port     string         `yaml:"port"`
	Store    string         `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`

	// GatewayToken, when set, must be presented as a bearer token on every
	// request except the health check.
	GatewayToken string `yaml:"gateway_token"`

	RatingK       float64       `yaml:"rating_k"`
	StartInterval time.Duration `yaml:"start_interval"`

	// Users are created at startup when missing. Only the YAML file can
	// list them.
	Users []SeedUser `yaml:"users"`
}

// SeedUser is one entry of the startup user list.
type SeedUser struct {
	ID                string `yaml:"id"`
	Nickname          string `yaml:"nickname"`
	Email             string `yaml:"email"`
	ProfilePictureURL string `yaml:"profile_picture_url"`
	PPI               int    `yaml:"ppi"`
	Tickets           int    `yaml:"tickets"`
}

func defaults() *Config {
	return &Config{
		Port:  "8080",
		Store: StorePostgres,
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			Name:     "ladder",
			SSLMode:  "disable",
			MaxConns: 20,
		},
		Log:           LogConfig{Level: "info", Format: "json"},
		RatingK:       24,
		StartInterval: time.Minute,
	}
}

// Load reads .env (if present), then the YAML file named by LADDER_CONFIG
// (if set), then environment overrides, and validates the result.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := defaults()
	if path := env("LADDER_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.Store, "STORE")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSLMODE")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.GatewayToken, "GATEWAY_TOKEN")

	if v := env("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("DB_MAX_CONNS: %w", err)
		}
		c.Database.MaxConns = int32(n)
	}
	if v := env("RATING_K"); v != "" {
		k, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATING_K: %w", err)
		}
		c.RatingK = k
	}
	if v := env("START_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("START_INTERVAL: %w", err)
		}
		c.StartInterval = d
	}
	return nil
}

func (c *Config) validate() error {
	c.Store = strings.ToLower(c.Store)
	if c.Store != StorePostgres && c.Store != StoreMemory {
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.RatingK <= 0 {
		return errors.New("RATING_K must be positive")
	}
	if c.Database.MaxConns < 1 {
		return errors.New("DB_MAX_CONNS must be positive")
	}
	// zero disables the auto-start worker
	if c.StartInterval < 0 {
		return errors.New("START_INTERVAL must not be negative")
	}
	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		if u.ID == "" || u.Nickname == "" || u.Email == "" {
			return fmt.Errorf("users[%d]: id, nickname and email are required", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("users[%d]: duplicate id %q", i, u.ID)
		}
		if u.PPI < 0 || u.Tickets < 0 {
			return fmt.Errorf("users[%d]: ppi and tickets must not be negative", i)
		}
		seen[u.ID] = true
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}
