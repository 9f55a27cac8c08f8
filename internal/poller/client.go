package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"odds-server/internal/api"
	"odds-server/internal/odds"
)

var ErrRateLimited = errors.New("rate limited by server")

// Client talks to an odds server over HTTP. Error responses come back as
// *odds.Error so callers can match them with errors.Is.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) CreateMatch(ctx context.Context, description, challengerName string) (*api.CreateMatchResponse, error) {
	var resp api.CreateMatchResponse
	err := c.do(ctx, http.MethodPost, "/odds", api.CreateMatchRequest{
		Description:    description,
		ChallengerName: challengerName,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) FetchMatch(ctx context.Context, code string) (*odds.Match, error) {
	var match odds.Match
	if err := c.do(ctx, http.MethodGet, matchPath(code), nil, &match); err != nil {
		return nil, err
	}
	return &match, nil
}

func (c *Client) SetCeiling(ctx context.Context, code string, max int, challengeeName string) (*api.SetCeilingResponse, error) {
	var resp api.SetCeilingResponse
	err := c.do(ctx, http.MethodPut, matchPath(code)+"/max", api.SetCeilingRequest{
		Max:            odds.Int(max),
		ChallengeeName: challengeeName,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SubmitResponse(ctx context.Context, code string, value int, playerName string, role odds.Role) (*api.SubmitResponseResponse, error) {
	isChallenger := role == odds.RoleChallenger

	var resp api.SubmitResponseResponse
	err := c.do(ctx, http.MethodPut, matchPath(code)+"/response", api.SubmitResponseRequest{
		Response:     odds.Int(value),
		PlayerName:   playerName,
		IsChallenger: &isChallenger,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListCompleted(ctx context.Context) ([]*odds.Match, error) {
	var completed []*odds.Match
	if err := c.do(ctx, http.MethodGet, "/odds/completed", nil, &completed); err != nil {
		return nil, err
	}
	return completed, nil
}

func matchPath(code string) string {
	return "/odds/" + url.PathEscape(code)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError rebuilds the server's error from its JSON body, falling back
// to the status code when the body is not an error document.
func decodeError(status int, data []byte) error {
	if status == http.StatusTooManyRequests {
		return ErrRateLimited
	}

	var msg api.ErrorMessage
	_ = json.Unmarshal(data, &msg)
	if msg.Error == "" {
		msg.Error = http.StatusText(status)
	}

	kind := odds.ErrorKind(msg.Code)
	switch kind {
	case odds.KindValidation, odds.KindNotFound, odds.KindConflict, odds.KindStoreUnavailable:
	default:
		switch status {
		case http.StatusBadRequest:
			kind = odds.KindValidation
		case http.StatusNotFound:
			kind = odds.KindNotFound
		case http.StatusConflict:
			kind = odds.KindConflict
		default:
			kind = odds.KindStoreUnavailable
		}
	}

	return &odds.Error{Kind: kind, Reason: msg.Reason, Message: msg.Error}
}
