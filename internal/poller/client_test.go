package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odds-server/internal/database"
	"odds-server/internal/odds"
	"odds-server/internal/server"
)

func setupClient(t *testing.T) *Client {
	t.Helper()

	s, _, err := server.NewServer(server.Config{}, database.NewMemory())
	require.NoError(t, err)

	ts := httptest.NewServer(s.RegisterRoutes())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown(context.Background())
	})
	return NewClient(ts.URL+"/", ts.Client())
}

func TestClient_PlaysAMatch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	c := setupClient(t)

	created, err := c.CreateMatch(ctx, "Sing in public", "Alice")
	require.NoError(err)
	assert.Len(created.Code, 4)

	ceiling, err := c.SetCeiling(ctx, created.Code, 4, "Bob")
	require.NoError(err)
	assert.Equal(4, ceiling.Max)

	_, err = c.SubmitResponse(ctx, created.Code, 2, "Alice", odds.RoleChallenger)
	require.NoError(err)

	// the challenger's watch returns once the challengee answers
	done := make(chan *odds.Match, 1)
	go func() {
		m, err := New(c, 10*time.Millisecond).Watch(ctx, created.Code, odds.RoleChallenger, nil)
		assert.NoError(err)
		done <- m
	}()

	result, err := c.SubmitResponse(ctx, created.Code, 1, "Bob", odds.RoleChallengee)
	require.NoError(err)
	require.NotNil(result.GameResult)
	assert.Equal(odds.WinnerChallengee, result.GameResult.Winner)

	select {
	case m := <-done:
		require.NotNil(m)
		assert.True(m.IsCompleted())
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not finish")
	}

	completed, err := c.ListCompleted(ctx)
	require.NoError(err)
	require.Len(completed, 1)
	assert.Equal(created.Code, completed[0].Code)
}

func TestClient_MapsErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c := setupClient(t)

	_, err := c.FetchMatch(ctx, "ZZ99")
	assert.ErrorIs(err, odds.ErrNotFound)

	_, err = c.CreateMatch(ctx, "", "Alice")
	assert.ErrorIs(err, odds.ErrValidation)

	created, err := c.CreateMatch(ctx, "dare", "Alice")
	assert.NoError(err)
	_, err = c.SetCeiling(ctx, created.Code, 3, "Bob")
	assert.NoError(err)
	_, err = c.SetCeiling(ctx, created.Code, 3, "Bob")
	assert.ErrorIs(err, &odds.Error{Kind: odds.KindConflict, Reason: odds.ReasonAlreadySet})
}

func TestDecodeError(t *testing.T) {
	assert := assert.New(t)

	assert.ErrorIs(decodeError(http.StatusTooManyRequests, nil), ErrRateLimited)
	assert.ErrorIs(decodeError(http.StatusNotFound, []byte("404 page not found")), odds.ErrNotFound)
	assert.ErrorIs(decodeError(http.StatusBadGateway, nil), odds.ErrStoreUnavailable)

	err := decodeError(http.StatusConflict, []byte(`{"error":"Match is already completed","code":"CONFLICT","reason":"COMPLETED"}`))
	assert.ErrorIs(err, &odds.Error{Kind: odds.KindConflict, Reason: odds.ReasonCompleted})
	assert.Equal("Match is already completed", err.Error())
}
