package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odds-server/internal/api"
	"odds-server/internal/database"
	"odds-server/internal/odds"
)

func setupTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()

	store := database.NewMemory()
	s, _, err := NewServer(cfg, store)
	require.NoError(t, err)
	s.matches.newCode = sequenceCodes("AB12", "CD34", "EF56")

	ts := httptest.NewServer(s.RegisterRoutes())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown(context.Background())
	})
	return s, ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeError(t *testing.T, data []byte) api.ErrorMessage {
	t.Helper()
	var msg api.ErrorMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestIndexHandler(t *testing.T) {
	_, ts := setupTestServer(t, Config{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Odds server"}`, string(body))

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_FullMatch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	_, ts := setupTestServer(t, Config{})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/odds", api.CreateMatchRequest{
		Description:    "Eat a chili",
		ChallengerName: "Alice",
	})
	require.Equal(http.StatusCreated, resp.StatusCode, string(body))
	assert.NotEmpty(resp.Header.Get("X-Request-ID"))

	var created api.CreateMatchResponse
	require.NoError(json.Unmarshal(body, &created))
	assert.Equal("AB12", created.Code)
	assert.Equal("Alice", created.Challenger.Name)
	assert.False(created.CreatedAt.IsZero())

	resp, body = doJSON(t, http.MethodPut, ts.URL+"/odds/AB12/max", api.SetCeilingRequest{
		Max:            odds.Int(10),
		ChallengeeName: "Bob",
	})
	require.Equal(http.StatusOK, resp.StatusCode, string(body))
	var ceiling api.SetCeilingResponse
	require.NoError(json.Unmarshal(body, &ceiling))
	assert.Equal(10, ceiling.Max)
	assert.Equal("Bob", ceiling.Challengee.Name)

	yes, no := true, false
	resp, body = doJSON(t, http.MethodPut, ts.URL+"/odds/AB12/response", api.SubmitResponseRequest{
		Response: odds.Int(7), PlayerName: "Alice", IsChallenger: &yes,
	})
	require.Equal(http.StatusOK, resp.StatusCode, string(body))
	var first api.SubmitResponseResponse
	require.NoError(json.Unmarshal(body, &first))
	assert.Nil(first.GameResult)
	assert.NotContains(string(body), "gameResult")

	resp, body = doJSON(t, http.MethodPut, ts.URL+"/odds/AB12/response", api.SubmitResponseRequest{
		Response: odds.Int(7), PlayerName: "Bob", IsChallenger: &no,
	})
	require.Equal(http.StatusOK, resp.StatusCode, string(body))
	var second api.SubmitResponseResponse
	require.NoError(json.Unmarshal(body, &second))
	require.NotNil(second.GameResult)
	assert.Equal(odds.WinnerChallenger, second.GameResult.Winner)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/odds/AB12", nil)
	require.Equal(http.StatusOK, resp.StatusCode)
	var match odds.Match
	require.NoError(json.Unmarshal(body, &match))
	assert.Equal("Eat a chili", match.Description)
	assert.Equal(10, *match.Max)
	assert.NotNil(match.GameResult)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/odds/completed", nil)
	require.Equal(http.StatusOK, resp.StatusCode)
	var completed []odds.Match
	require.NoError(json.Unmarshal(body, &completed))
	require.Len(completed, 1)
	assert.Equal("AB12", completed[0].Code)
}

func TestRoutes_ListCompletedEmpty(t *testing.T) {
	_, ts := setupTestServer(t, Config{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/odds/completed", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestRoutes_Errors(t *testing.T) {
	_, ts := setupTestServer(t, Config{})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/odds", api.CreateMatchRequest{Description: "dare", ChallengerName: "Alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	yes := true
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   odds.ErrorKind
	}{
		{"malformed json", http.MethodPost, "/odds", `{"description":`, http.StatusBadRequest, odds.KindValidation},
		{"wrong json type", http.MethodPost, "/odds", `{"description": 5, "challengerName": "A"}`, http.StatusBadRequest, odds.KindValidation},
		{"missing challenger", http.MethodPost, "/odds", api.CreateMatchRequest{Description: "dare"}, http.StatusBadRequest, odds.KindValidation},
		{"unknown match", http.MethodGet, "/odds/ZZ99", nil, http.StatusNotFound, odds.KindNotFound},
		{"missing max", http.MethodPut, "/odds/AB12/max", api.SetCeilingRequest{ChallengeeName: "Bob"}, http.StatusBadRequest, odds.KindValidation},
		{"zero max", http.MethodPut, "/odds/AB12/max", api.SetCeilingRequest{Max: odds.Int(0), ChallengeeName: "Bob"}, http.StatusBadRequest, odds.KindValidation},
		{"ceiling on unknown", http.MethodPut, "/odds/ZZ99/max", api.SetCeilingRequest{Max: odds.Int(3), ChallengeeName: "Bob"}, http.StatusNotFound, odds.KindNotFound},
		{"response before max", http.MethodPut, "/odds/AB12/response", api.SubmitResponseRequest{Response: odds.Int(1), PlayerName: "Alice", IsChallenger: &yes}, http.StatusBadRequest, odds.KindValidation},
		{"response without role", http.MethodPut, "/odds/AB12/response", api.SubmitResponseRequest{Response: odds.Int(1), PlayerName: "Alice"}, http.StatusBadRequest, odds.KindValidation},
		{"response string value", http.MethodPut, "/odds/AB12/response", `{"response":"1","playerName":"A","isChallenger":true}`, http.StatusBadRequest, odds.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, tt.method, ts.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			msg := decodeError(t, body)
			assert.Equal(t, string(tt.code), msg.Code)
			assert.NotEmpty(t, msg.Error)
		})
	}
}

func TestRoutes_Conflicts(t *testing.T) {
	_, ts := setupTestServer(t, Config{})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/odds", api.CreateMatchRequest{Description: "dare", ChallengerName: "Alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/odds/AB12/max", api.SetCeilingRequest{Max: odds.Int(5), ChallengeeName: "Bob"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	repeats := map[string]any{
		"new ceiling":  api.SetCeilingRequest{Max: odds.Int(6), ChallengeeName: "Bob"},
		"missing max":  api.SetCeilingRequest{ChallengeeName: "Carol"},
		"zero max":     api.SetCeilingRequest{Max: odds.Int(0), ChallengeeName: "Carol"},
		"missing name": api.SetCeilingRequest{Max: odds.Int(6)},
		"empty body":   `{}`,
	}
	for name, payload := range repeats {
		t.Run("ceiling "+name, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodPut, ts.URL+"/odds/AB12/max", payload)
			assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
			msg := decodeError(t, body)
			assert.Equal(t, string(odds.KindConflict), msg.Code)
			assert.Equal(t, odds.ReasonAlreadySet, msg.Reason)
		})
	}

	yes := true
	req := api.SubmitResponseRequest{Response: odds.Int(2), PlayerName: "Alice", IsChallenger: &yes}
	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/odds/AB12/response", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPut, ts.URL+"/odds/AB12/response", req)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, odds.ReasonAlreadyResponded, decodeError(t, body).Reason)
}

func TestRoutes_RateLimit(t *testing.T) {
	_, ts := setupTestServer(t, Config{RateLimit: 2, RateWindow: time.Minute})

	req := api.CreateMatchRequest{Description: "dare", ChallengerName: "Alice"}
	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/odds", req)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/odds", req)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, body).Code)

	// reads are never limited
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/odds/AB12", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoutes_QRCode(t *testing.T) {
	assert := assert.New(t)
	_, ts := setupTestServer(t, Config{PublicURL: "https://odds.example.com/"})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/odds", api.CreateMatchRequest{Description: "dare", ChallengerName: "Alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/odds/AB12/qr", nil)
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal("image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(body))
	assert.NoError(err)
	assert.Equal(qrSize, img.Bounds().Dx())

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/odds/ZZ99/qr", nil)
	assert.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestMatchURL(t *testing.T) {
	assert := assert.New(t)

	s := &Server{cfg: Config{PublicURL: "https://odds.example.com/"}}
	r := httptest.NewRequest(http.MethodGet, "http://internal:8080/odds/AB12/qr", nil)
	assert.Equal("https://odds.example.com/AB12", s.matchURL(r, "AB12"))

	s = &Server{}
	assert.Equal("http://internal:8080/AB12", s.matchURL(r, "AB12"))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal("https://internal:8080/AB12", s.matchURL(r, "AB12"))
}

// downStore reports itself unhealthy.
type downStore struct {
	database.Service
}

func (downStore) Health(ctx context.Context) map[string]string {
	return map[string]string{"status": "down", "error": "connection refused"}
}

func TestHealthHandler(t *testing.T) {
	assert := assert.New(t)
	_, ts := setupTestServer(t, Config{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(http.StatusOK, resp.StatusCode)

	var health api.HealthResponse
	assert.NoError(json.Unmarshal(body, &health))
	assert.Equal("up", health.Store["status"])
	assert.Equal("memory", health.Store["driver"])
	if assert.NotNil(health.Stats) {
		assert.Equal(0, health.Stats.Total)
	}

	down := &Server{cfg: Config{}, store: downStore{database.NewMemory()}}
	down.matches = NewMatchManager(down.store, time.Second)
	rec := httptest.NewRecorder()
	down.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(http.StatusServiceUnavailable, rec.Code)
	assert.Contains(rec.Body.String(), "connection refused")
}

func TestWriteError_UnknownErrorIs500(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, io.ErrUnexpectedEOF)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	writeError(rec, odds.StoreUnavailable("Failed to fetch odds", context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(odds.KindStoreUnavailable), decodeError(t, rec.Body.Bytes()).Code)
}
