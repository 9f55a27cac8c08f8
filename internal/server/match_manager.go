package server

import (
	"cmp"
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"time"

	"odds-server/internal/api"
	"odds-server/internal/database"
	"odds-server/internal/odds"
)

const defaultStoreTimeout = 5 * time.Second

// MatchManager runs the match state machine against the store. Every
// read-validate-write sequence on a code runs under that code's lock.
type MatchManager struct {
	store        database.Service
	locks        *codeLocks
	storeTimeout time.Duration
	now          func() time.Time
	newCode      func() string
}

func NewMatchManager(store database.Service, storeTimeout time.Duration) *MatchManager {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &MatchManager{
		store:        store,
		locks:        newCodeLocks(),
		storeTimeout: storeTimeout,
		now:          time.Now,
		newCode:      randomMatchCode,
	}
}

// storeContext bounds a store call. Requests run to completion, so the
// caller's cancellation is dropped and only the timeout applies.
func (mm *MatchManager) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), mm.storeTimeout)
}

// storeError maps a store failure onto the error taxonomy.
func storeError(message string, err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return odds.NotFoundf("Odds not found")
	}
	return odds.StoreUnavailable(message, err)
}

// CreateMatch stores a new match under a fresh code with the challenger as
// its only player.
func (mm *MatchManager) CreateMatch(ctx context.Context, description, challengerName string) (*odds.Match, error) {
	description = strings.TrimSpace(description)
	challengerName = strings.TrimSpace(challengerName)

	if description == "" || challengerName == "" {
		return nil, odds.Validationf("Description and challenger name are required")
	}
	if err := ValidateDescription(description); err != nil {
		return nil, err
	}
	if err := ValidateName(challengerName); err != nil {
		return nil, err
	}

	ctx, cancel := mm.storeContext(ctx)
	defer cancel()

	for {
		code, err := GenerateMatchCode(ctx, mm.newCode, mm.store.Exists)
		if err != nil {
			return nil, storeError("Failed to generate odds code", err)
		}

		match, err := mm.store.Create(ctx, code, description, challengerName)
		if errors.Is(err, database.ErrCodeTaken) {
			// lost a race for this code between Exists and Create
			continue
		}
		if err != nil {
			return nil, storeError("Failed to generate odds code", err)
		}

		log.Printf("Match %s created by %s", match.Code, match.Challenger.Name)
		return match, nil
	}
}

// FetchMatch loads the match for code. Malformed codes are reported as not found.
func (mm *MatchManager) FetchMatch(ctx context.Context, code string) (*odds.Match, error) {
	code = NormalizeMatchCode(code)
	if err := ValidateMatchCode(code); err != nil {
		return nil, odds.NotFoundf("Odds not found")
	}

	ctx, cancel := mm.storeContext(ctx)
	defer cancel()

	match, err := mm.store.GetByCode(ctx, code)
	if err != nil {
		return nil, storeError("Failed to fetch odds", err)
	}
	return match, nil
}

// SetCeiling records the challengee and the odds ceiling. Any call after the
// first fails with a conflict, whatever its payload.
func (mm *MatchManager) SetCeiling(ctx context.Context, code string, max int, challengeeName string) (*odds.Match, error) {
	code = NormalizeMatchCode(code)
	challengeeName = strings.TrimSpace(challengeeName)

	if err := ValidateMatchCode(code); err != nil {
		return nil, odds.NotFoundf("Odds not found")
	}

	unlock := mm.locks.Lock(code)
	defer unlock()

	ctx, cancel := mm.storeContext(ctx)
	defer cancel()

	existing, err := mm.store.GetByCode(ctx, code)
	if err != nil {
		return nil, storeError("Failed to update max value", err)
	}

	// the state machine reports an already-set ceiling before judging the payload
	patch, err := odds.SetCeiling(existing, max, challengeeName)
	if err != nil {
		return nil, err
	}
	if err := ValidateName(challengeeName); err != nil {
		return nil, err
	}

	updated, err := mm.store.Update(ctx, code, patch)
	if err != nil {
		return nil, storeError("Failed to update max value", err)
	}

	log.Printf("Match %s: %s set max to %d", code, challengeeName, max)
	return updated, nil
}

// SubmitResponse records role's number and completes the match once both
// players have answered.
func (mm *MatchManager) SubmitResponse(ctx context.Context, code string, value int, role odds.Role) (*odds.Match, error) {
	code = NormalizeMatchCode(code)
	if err := ValidateMatchCode(code); err != nil {
		return nil, odds.NotFoundf("Odds not found")
	}

	unlock := mm.locks.Lock(code)
	defer unlock()

	ctx, cancel := mm.storeContext(ctx)
	defer cancel()

	existing, err := mm.store.GetByCode(ctx, code)
	if err != nil {
		return nil, storeError("Failed to submit response", err)
	}

	patch, err := odds.SubmitResponse(existing, value, role, mm.now())
	if err != nil {
		return nil, err
	}

	updated, err := mm.store.Update(ctx, code, patch)
	if err != nil {
		return nil, storeError("Failed to submit response", err)
	}

	if result := updated.GameResult; result != nil {
		log.Printf("Match %s completed: %d vs %d, %s wins",
			code, result.ChallengerResponse, result.ChallengeeResponse, result.Winner)
	} else {
		log.Printf("Match %s: %s responded", code, role)
	}
	return updated, nil
}

// ListCompleted returns finished matches, most recently completed first.
func (mm *MatchManager) ListCompleted(ctx context.Context) ([]*odds.Match, error) {
	ctx, cancel := mm.storeContext(ctx)
	defer cancel()

	completed, err := mm.store.GetCompleted(ctx)
	if err != nil {
		return nil, storeError("Failed to fetch completed odds", err)
	}
	if completed == nil {
		completed = []*odds.Match{}
	}

	slices.SortFunc(completed, func(a, b *odds.Match) int {
		if c := b.GameResult.CompletedAt.Compare(a.GameResult.CompletedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return completed, nil
}

// Stats counts stored matches and wins per side.
func (mm *MatchManager) Stats(ctx context.Context) (api.MatchStats, error) {
	ctx, cancel := mm.storeContext(ctx)
	defer cancel()

	all, err := mm.store.GetAll(ctx)
	if err != nil {
		return api.MatchStats{}, storeError("Failed to fetch odds", err)
	}

	stats := api.MatchStats{Total: len(all)}
	for _, m := range all {
		if m.GameResult == nil {
			continue
		}
		stats.Completed++
		switch m.GameResult.Winner {
		case odds.WinnerChallenger:
			stats.ChallengerWins++
		case odds.WinnerChallengee:
			stats.ChallengeeWins++
		}
	}
	return stats, nil
}

// SweepStale deletes matches that were never finished and are older than
// olderThan. Completed matches are kept forever.
func (mm *MatchManager) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx, cancel := mm.storeContext(ctx)
	defer cancel()

	all, err := mm.store.GetAll(ctx)
	if err != nil {
		return 0, storeError("Failed to fetch odds", err)
	}

	cutoff := mm.now().Add(-olderThan)
	deleted := 0
	for _, m := range all {
		if m.IsCompleted() || !m.CreatedAt.Before(cutoff) {
			continue
		}

		ok, err := mm.deleteIfIncomplete(ctx, m.Code)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

func (mm *MatchManager) deleteIfIncomplete(ctx context.Context, code string) (bool, error) {
	unlock := mm.locks.Lock(code)
	defer unlock()

	// re-read under the lock; a response may have completed it meanwhile
	current, err := mm.store.GetByCode(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeError("Failed to fetch odds", err)
	}
	if current.IsCompleted() {
		return false, nil
	}

	deleted, err := mm.store.Delete(ctx, code)
	if err != nil {
		return false, storeError("Failed to delete odds", err)
	}
	return deleted, nil
}
