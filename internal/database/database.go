package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"odds-server/internal/odds"
)

var (
	ErrNotFound  = errors.New("match not found")
	ErrCodeTaken = errors.New("match code already in use")
)

// Service is the match document store. Update merges a patch one top-level
// field at a time; nested objects are replaced, never deep-merged.
type Service interface {
	Create(ctx context.Context, code, description, challengerName string) (*odds.Match, error)
	GetByCode(ctx context.Context, code string) (*odds.Match, error)
	Exists(ctx context.Context, code string) (bool, error)
	Update(ctx context.Context, code string, patch odds.Patch) (*odds.Match, error)
	GetAll(ctx context.Context) ([]*odds.Match, error)
	GetCompleted(ctx context.Context) ([]*odds.Match, error)
	Delete(ctx context.Context, code string) (bool, error)
	Count(ctx context.Context) (int, error)

	// Health returns a map of health status information.
	Health(ctx context.Context) map[string]string

	Close() error
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
	RedisURL    string
}

// ConfigFromEnv reads the store settings the same way the server did before
// flags existed: DATABASE_URL and REDIS_URL pick their backend automatically.
func ConfigFromEnv() Config {
	cfg := Config{
		Driver:      os.Getenv("ODDS_STORE"),
		SQLitePath:  os.Getenv("ODDS_SQLITE_PATH"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
	}
	if cfg.Driver == "" {
		switch {
		case cfg.DatabaseURL != "":
			cfg.Driver = DriverPostgres
		case cfg.RedisURL != "":
			cfg.Driver = DriverRedis
		default:
			cfg.Driver = DriverMemory
		}
	}
	return cfg
}

// New opens the backend named by cfg.Driver.
func New(ctx context.Context, cfg Config) (Service, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = "odds.db"
		}
		return OpenSQLite(path)
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("postgres store requires a database url")
		}
		return OpenPostgres(ctx, cfg.DatabaseURL)
	case DriverRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("redis store requires a redis url")
		}
		return OpenRedis(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func completedAt(m *odds.Match) *time.Time {
	if m.GameResult == nil {
		return nil
	}
	t := m.GameResult.CompletedAt
	return &t
}
