package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"odds-server/internal/database"
	"odds-server/internal/server"
)

type Config struct {
	bind          string
	port          int
	store         string
	sqlitePath    string
	databaseURL   string
	redisURL      string
	storeTimeout  time.Duration
	publicURL     string
	rateLimit     int
	staleAfter    time.Duration
	sweepInterval time.Duration
	verbose       bool
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.store {
	case database.DriverMemory, database.DriverSQLite:
	case database.DriverPostgres:
		if c.databaseURL == "" {
			return errors.New("--store=postgres requires --database-url (env: DATABASE_URL)")
		}
	case database.DriverRedis:
		if c.redisURL == "" {
			return errors.New("--store=redis requires --redis-url (env: REDIS_URL)")
		}
	default:
		return fmt.Errorf("unknown store %q (memory, sqlite, postgres, redis)", c.store)
	}
	if c.rateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %d", c.rateLimit)
	}
	return nil
}

func (c *Config) databaseConfig() database.Config {
	return database.Config{
		Driver:      c.store,
		SQLitePath:  c.sqlitePath,
		DatabaseURL: c.databaseURL,
		RedisURL:    c.redisURL,
	}
}

func (c *Config) serverConfig() server.Config {
	return server.Config{
		Bind:          c.bind,
		Port:          c.port,
		PublicURL:     c.publicURL,
		StoreTimeout:  c.storeTimeout,
		RateLimit:     c.rateLimit,
		RateWindow:    time.Minute,
		StaleAfter:    c.staleAfter,
		SweepInterval: c.sweepInterval,
		Verbose:       c.verbose,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ODDS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "odds-server",
		Short: "HTTP API for two-player odds challenges.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	// Unprefixed variables the server has always honoured.
	env := database.ConfigFromEnv()
	port := 8080
	if p, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
		port = p
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: ODDS_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", port, "port to listen on (env: ODDS_PORT, PORT)")
	fs.StringVar(&cfg.store, "store", env.Driver, "match store: memory, sqlite, postgres or redis (env: ODDS_STORE)")
	fs.StringVar(&cfg.sqlitePath, "sqlite-path", "odds.db", "sqlite database file (env: ODDS_SQLITE_PATH)")
	fs.StringVar(&cfg.databaseURL, "database-url", env.DatabaseURL, "postgres connection url (env: ODDS_DATABASE_URL, DATABASE_URL)")
	fs.StringVar(&cfg.redisURL, "redis-url", env.RedisURL, "redis connection url (env: ODDS_REDIS_URL, REDIS_URL)")
	fs.DurationVar(&cfg.storeTimeout, "store-timeout", 5*time.Second, "timeout for a single store call (env: ODDS_STORE_TIMEOUT)")
	fs.StringVar(&cfg.publicURL, "public-url", "", "base url encoded in share QR codes; derived from the request if empty (env: ODDS_PUBLIC_URL)")
	fs.IntVar(&cfg.rateLimit, "rate-limit", 60, "mutating requests per client per minute, 0 to disable (env: ODDS_RATE_LIMIT)")
	fs.DurationVar(&cfg.staleAfter, "stale-after", 0, "delete unfinished matches older than this, 0 to keep forever (env: ODDS_STALE_AFTER)")
	fs.DurationVar(&cfg.sweepInterval, "sweep-interval", 10*time.Minute, "how often to look for stale matches (env: ODDS_SWEEP_INTERVAL)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "log every request (env: ODDS_VERBOSE)")

	if env.SQLitePath != "" {
		_ = fs.Set("sqlite-path", env.SQLitePath)
	}

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
