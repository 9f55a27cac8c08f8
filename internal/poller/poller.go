package poller

import (
	"context"
	"log"
	"time"

	"odds-server/internal/odds"
)

const DefaultInterval = 2 * time.Second

// ShouldPoll reports whether a player in role is still waiting on the other
// side. Nobody polls a completed match.
func ShouldPoll(m *odds.Match, role odds.Role) bool {
	if m.IsCompleted() {
		return false
	}

	switch role {
	case odds.RoleChallenger:
		if m.Max == nil {
			return true
		}
		return m.HasResponded(odds.RoleChallenger) && !m.HasResponded(odds.RoleChallengee)
	case odds.RoleChallengee:
		return m.HasResponded(odds.RoleChallengee) && !m.HasResponded(odds.RoleChallenger)
	}
	return false
}

type Fetcher interface {
	FetchMatch(ctx context.Context, code string) (*odds.Match, error)
}

// Poller re-fetches a match on a fixed interval until the caller's role has
// nothing left to wait for.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
}

func New(fetcher Fetcher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{fetcher: fetcher, interval: interval}
}

// Watch fetches code immediately and then once per interval, handing every
// snapshot to onUpdate. It returns the last snapshot once ShouldPoll is
// false, or ctx's error if cancelled first. Failed fetches are logged and
// retried on the next tick.
func (p *Poller) Watch(ctx context.Context, code string, role odds.Role, onUpdate func(*odds.Match)) (*odds.Match, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last *odds.Match
	for {
		match, err := p.fetcher.FetchMatch(ctx, code)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			log.Printf("Poll %s failed: %v", code, err)
		} else {
			last = match
			if onUpdate != nil {
				onUpdate(match)
			}
			if !ShouldPoll(match, role) {
				return match, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
