package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-co-op/gocron/v2"

	"odds-server/internal/database"
)

type Config struct {
	Bind         string
	Port         int
	PublicURL    string
	StoreTimeout time.Duration

	// RateLimit is the number of mutating requests a client may make per
	// RateWindow. Zero disables the limiter.
	RateLimit  int
	RateWindow time.Duration

	// StaleAfter > 0 enables the sweeper for unfinished matches.
	StaleAfter    time.Duration
	SweepInterval time.Duration

	Verbose bool
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

type Server struct {
	cfg       Config
	store     database.Service
	matches   *MatchManager
	limiter   *RateLimiter
	scheduler gocron.Scheduler
}

func NewServer(cfg Config, store database.Service) (*Server, *http.Server, error) {
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}

	s := &Server{
		cfg:     cfg,
		store:   store,
		matches: NewMatchManager(store, cfg.StoreTimeout),
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	}

	if err := s.startScheduler(); err != nil {
		return nil, nil, err
	}

	// Declare Server config
	server := &http.Server{
		Addr:         cfg.addr(),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, server, nil
}

// Shutdown stops background jobs and closes the store. The HTTP server is
// shut down by the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if s.scheduler != nil {
		if err := s.scheduler.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop scheduler: %w", err))
		}
	}

	done := make(chan error, 1)
	go func() { done <- s.store.Close() }()

	select {
	case err := <-done:
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Println("Store closed")
	return nil
}
