package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const limiterCleanupInterval = time.Minute

// newScheduler is swapped in tests to observe the scheduler lifecycle.
var newScheduler = gocron.NewScheduler

func (s *Server) startScheduler() error {
	if s.limiter == nil && s.cfg.StaleAfter <= 0 {
		return nil
	}

	sched, err := newScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if s.limiter != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(limiterCleanupInterval),
			gocron.NewTask(s.limiter.Cleanup),
		)
		if err != nil {
			_ = sched.Shutdown()
			return fmt.Errorf("failed to schedule limiter cleanup: %w", err)
		}
	}

	if s.cfg.StaleAfter > 0 {
		_, err = sched.NewJob(
			gocron.DurationJob(s.cfg.SweepInterval),
			gocron.NewTask(s.sweepStale),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return fmt.Errorf("failed to schedule stale sweep: %w", err)
		}
		log.Printf("Sweeper: removing unfinished matches older than %s every %s",
			s.cfg.StaleAfter, s.cfg.SweepInterval)
	}

	sched.Start()
	s.scheduler = sched
	return nil
}

// sweepStale deletes unfinished matches older than the configured age.
func (s *Server) sweepStale() {
	deleted, err := s.matches.SweepStale(context.Background(), s.cfg.StaleAfter)
	if err != nil {
		log.Printf("[Sweeper] failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("[Sweeper] deleted %d stale matches", deleted)
	}
}
