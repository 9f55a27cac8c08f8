// Package api holds the JSON documents exchanged between the odds server and
// its clients.
package api

import (
	"time"

	"odds-server/internal/odds"
)

// ============================================================================
// ERROR RESPONSES
// ============================================================================
type ErrorMessage struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ============================================================================
// CREATE MATCH (POST /odds)
// ============================================================================
type CreateMatchRequest struct {
	Description    string `json:"description"`
	ChallengerName string `json:"challengerName"`
}

type CreateMatchResponse struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Challenger  odds.Challenger `json:"challenger"`
	CreatedAt   time.Time       `json:"createdAt"`
	Message     string          `json:"message,omitempty"`
}

// ============================================================================
// SET CEILING (PUT /odds/{code}/max)
// ============================================================================
type SetCeilingRequest struct {
	Max            *int   `json:"max"`
	ChallengeeName string `json:"challengeeName"`
}

type SetCeilingResponse struct {
	Code       string           `json:"code"`
	Max        int              `json:"max"`
	Challengee *odds.Challengee `json:"challengee"`
	Message    string           `json:"message,omitempty"`
}

// ============================================================================
// SUBMIT RESPONSE (PUT /odds/{code}/response)
// ============================================================================
type SubmitResponseRequest struct {
	Response     *int   `json:"response"`
	PlayerName   string `json:"playerName"`
	IsChallenger *bool  `json:"isChallenger"`
}

type SubmitResponseResponse struct {
	Code       string           `json:"code"`
	Challenger odds.Challenger  `json:"challenger"`
	Challengee *odds.Challengee `json:"challengee,omitempty"`
	GameResult *odds.GameResult `json:"gameResult,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// ============================================================================
// HEALTH (GET /health)
// ============================================================================

// MatchStats summarizes every stored match.
type MatchStats struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	ChallengerWins int `json:"challengerWins"`
	ChallengeeWins int `json:"challengeeWins"`
}

type HealthResponse struct {
	Store map[string]string `json:"store"`
	Stats *MatchStats       `json:"stats,omitempty"`
}
