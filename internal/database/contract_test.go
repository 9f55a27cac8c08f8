package database

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odds-server/internal/odds"
)

// runStoreContract exercises the behaviour every backend must share.
// newStore must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Service) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		assert := assert.New(t)
		s := newStore(t)

		created, err := s.Create(ctx, "AB12", "Eat a chili", "Alice")
		require.NoError(t, err)
		assert.Equal("AB12", created.Code)
		assert.Equal("Eat a chili", created.Description)
		assert.Equal("Alice", created.Challenger.Name)
		assert.Nil(created.Challenger.Response)
		assert.Nil(created.Challengee)
		assert.Nil(created.Max)
		assert.Nil(created.GameResult)
		assert.False(created.CreatedAt.IsZero())

		loaded, err := s.GetByCode(ctx, "AB12")
		require.NoError(t, err)
		assert.Equal(created, loaded)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Create(ctx, "AB12", "first", "Alice")
		require.NoError(t, err)

		_, err = s.Create(ctx, "AB12", "second", "Mallory")
		assert.ErrorIs(t, err, ErrCodeTaken)

		loaded, err := s.GetByCode(ctx, "AB12")
		require.NoError(t, err)
		assert.Equal(t, "first", loaded.Description)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetByCode(ctx, "ZZ99")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Exists", func(t *testing.T) {
		s := newStore(t)

		exists, err := s.Exists(ctx, "AB12")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = s.Create(ctx, "AB12", "dare", "Alice")
		require.NoError(t, err)

		exists, err = s.Exists(ctx, "AB12")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("UpdateShallowMerge", func(t *testing.T) {
		assert := assert.New(t)
		s := newStore(t)

		_, err := s.Create(ctx, "AB12", "dare", "Alice")
		require.NoError(t, err)

		updated, err := s.Update(ctx, "AB12", odds.Patch{
			Max:        odds.Int(10),
			Challengee: &odds.Challengee{Name: "Bob"},
		})
		require.NoError(t, err)
		assert.Equal(10, *updated.Max)
		assert.Equal("Bob", updated.Challengee.Name)
		assert.Equal("Alice", updated.Challenger.Name)

		// a nested object replaces the stored one wholesale
		updated, err = s.Update(ctx, "AB12", odds.Patch{
			Challengee: &odds.Challengee{Response: odds.Int(3)},
		})
		require.NoError(t, err)
		assert.Equal("", updated.Challengee.Name)
		assert.Equal(3, *updated.Challengee.Response)
		assert.Equal(10, *updated.Max)

		loaded, err := s.GetByCode(ctx, "AB12")
		require.NoError(t, err)
		assert.Equal(updated, loaded)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Update(ctx, "ZZ99", odds.Patch{Max: odds.Int(3)})
		assert.ErrorIs(t, err, ErrNotFound)

		exists, err := s.Exists(ctx, "ZZ99")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("GetCompleted", func(t *testing.T) {
		assert := assert.New(t)
		s := newStore(t)

		for _, code := range []string{"AA00", "BB11", "CC22"} {
			_, err := s.Create(ctx, code, "dare", "Alice")
			require.NoError(t, err)
		}

		completedAt := odds.Timestamp(time.Now())
		for _, code := range []string{"AA00", "CC22"} {
			_, err := s.Update(ctx, code, odds.Patch{
				GameResult: &odds.GameResult{
					Winner:             odds.WinnerChallengee,
					ChallengerResponse: 1,
					ChallengeeResponse: 2,
					CompletedAt:        completedAt,
				},
			})
			require.NoError(t, err)
		}

		completed, err := s.GetCompleted(ctx)
		require.NoError(t, err)
		assert.Equal([]string{"AA00", "CC22"}, codesOf(completed))
		for _, m := range completed {
			assert.True(completedAt.Equal(m.GameResult.CompletedAt))
		}

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		assert.Equal([]string{"AA00", "BB11", "CC22"}, codesOf(all))
	})

	t.Run("DeleteAndCount", func(t *testing.T) {
		assert := assert.New(t)
		s := newStore(t)

		for _, code := range []string{"AA00", "BB11"} {
			_, err := s.Create(ctx, code, "dare", "Alice")
			require.NoError(t, err)
		}

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(2, count)

		deleted, err := s.Delete(ctx, "AA00")
		require.NoError(t, err)
		assert.True(deleted)

		deleted, err = s.Delete(ctx, "AA00")
		require.NoError(t, err)
		assert.False(deleted)

		count, err = s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(1, count)

		_, err = s.GetByCode(ctx, "AA00")
		assert.ErrorIs(err, ErrNotFound)
	})

	t.Run("Health", func(t *testing.T) {
		s := newStore(t)

		health := s.Health(ctx)
		assert.Equal(t, "up", health["status"])
		assert.NotEmpty(t, health["driver"])
	})
}

func codesOf(matches []*odds.Match) []string {
	codes := make([]string, 0, len(matches))
	for _, m := range matches {
		codes = append(codes, m.Code)
	}
	sort.Strings(codes)
	return codes
}
