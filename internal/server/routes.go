package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/skip2/go-qrcode"

	"odds-server/internal/api"
	"odds-server/internal/odds"
)

const qrSize = 320

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.indexHandler)
	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("POST /odds", s.rateLimit(s.createMatchHandler))
	mux.HandleFunc("GET /odds/completed", s.listCompletedHandler)
	mux.HandleFunc("GET /odds/{code}", s.fetchMatchHandler)
	mux.HandleFunc("PUT /odds/{code}/max", s.rateLimit(s.setCeilingHandler))
	mux.HandleFunc("PUT /odds/{code}/response", s.rateLimit(s.submitResponseHandler))
	mux.HandleFunc("GET /odds/{code}/qr", s.qrHandler)

	return s.requestLogger(s.corsMiddleware(mux))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

// writeError renders err with the status its kind maps to.
func writeError(w http.ResponseWriter, err error) {
	var oddsErr *odds.Error
	if !errors.As(err, &oddsErr) {
		log.Printf("Unexpected error: %v", err)
		writeJSON(w, http.StatusInternalServerError, api.ErrorMessage{Error: "Internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch oddsErr.Kind {
	case odds.KindValidation:
		status = http.StatusBadRequest
	case odds.KindNotFound:
		status = http.StatusNotFound
	case odds.KindConflict:
		status = http.StatusConflict
	case odds.KindStoreUnavailable:
		log.Printf("Store unavailable: %v", err)
	}

	writeJSON(w, status, api.ErrorMessage{
		Error:  oddsErr.Message,
		Code:   string(oddsErr.Kind),
		Reason: oddsErr.Reason,
	})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return odds.Validationf("Invalid request body")
	}
	return nil
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Odds server"})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := api.HealthResponse{Store: s.store.Health(r.Context())}

	if health.Store["status"] != "up" {
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}

	if stats, err := s.matches.Stats(r.Context()); err == nil {
		health.Stats = &stats
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) createMatchHandler(w http.ResponseWriter, r *http.Request) {
	var req api.CreateMatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	match, err := s.matches.CreateMatch(r.Context(), req.Description, req.ChallengerName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, api.CreateMatchResponse{
		Code:        match.Code,
		Description: match.Description,
		Challenger:  match.Challenger,
		CreatedAt:   match.CreatedAt,
		Message:     "Odds code generated successfully",
	})
}

func (s *Server) fetchMatchHandler(w http.ResponseWriter, r *http.Request) {
	match, err := s.matches.FetchMatch(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func (s *Server) setCeilingHandler(w http.ResponseWriter, r *http.Request) {
	var req api.SetCeilingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	// payload checks happen in the manager so a repeat call always conflicts
	max := 0
	if req.Max != nil {
		max = *req.Max
	}

	match, err := s.matches.SetCeiling(r.Context(), r.PathValue("code"), max, req.ChallengeeName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.SetCeilingResponse{
		Code:       match.Code,
		Max:        *match.Max,
		Challengee: match.Challengee,
		Message:    "Max value updated successfully",
	})
}

func (s *Server) submitResponseHandler(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitResponseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Response == nil || strings.TrimSpace(req.PlayerName) == "" || req.IsChallenger == nil {
		writeError(w, odds.Validationf("Response, player name, and role are required"))
		return
	}

	role := odds.RoleFromFlag(*req.IsChallenger)
	match, err := s.matches.SubmitResponse(r.Context(), r.PathValue("code"), *req.Response, role)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.SubmitResponseResponse{
		Code:       match.Code,
		Challenger: match.Challenger,
		Challengee: match.Challengee,
		GameResult: match.GameResult,
		Message:    "Response submitted successfully",
	})
}

func (s *Server) listCompletedHandler(w http.ResponseWriter, r *http.Request) {
	completed, err := s.matches.ListCompleted(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completed)
}

// qrHandler renders a PNG QR code pointing at the shareable match page.
func (s *Server) qrHandler(w http.ResponseWriter, r *http.Request) {
	match, err := s.matches.FetchMatch(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}

	png, err := qrcode.Encode(s.matchURL(r, match.Code), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

// matchURL is the page players open to join code. Without a configured
// public URL it is derived from the request.
func (s *Server) matchURL(r *http.Request, code string) string {
	base := strings.TrimSuffix(s.cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/" + code
}
