package server

import (
	"log"
	"net"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"odds-server/internal/api"
	"odds-server/internal/odds"
)

const (
	maxNameLength        = 40
	maxDescriptionLength = 280
)

// RateLimiter implements per-client rate limiting using a sliding window algorithm
// Why sliding window: Prevents burst attacks while allowing consistent legitimate traffic
type RateLimiter struct {
	maxRequests int                    // Maximum requests allowed per window
	window      time.Duration          // Time window for rate limiting
	requests    map[string][]time.Time // client key -> timestamps of recent requests
	mu          sync.Mutex             // Protects concurrent access to requests map
}

// NewRateLimiter creates a new rate limiter
// maxRequests: number of requests allowed per window
// window: duration of the sliding window (e.g., 1 second for 10 req/sec)
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow checks if a client may make another request
// Returns true if allowed, false if rate limited
func (r *RateLimiter) Allow(clientKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	timestamps := r.requests[clientKey]

	// Remove timestamps outside the window
	validTimestamps := make([]time.Time, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			validTimestamps = append(validTimestamps, ts)
		}
	}

	if len(validTimestamps) >= r.maxRequests {
		r.requests[clientKey] = validTimestamps
		return false
	}

	validTimestamps = append(validTimestamps, now)
	r.requests[clientKey] = validTimestamps
	return true
}

// Cleanup removes clients with no requests inside the window
// Called periodically by the server so idle clients don't pile up
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window)

	for clientKey, timestamps := range r.requests {
		allOld := true
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				allOld = false
				break
			}
		}
		if allOld {
			delete(r.requests, clientKey)
		}
	}
}

func (r *RateLimiter) clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// ValidateName checks player name requirements
func ValidateName(name string) error {
	if name == "" {
		return odds.Validationf("Name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return odds.Validationf("Name too long (max %d characters)", maxNameLength)
	}
	return nil
}

func ValidateDescription(description string) error {
	if description == "" {
		return odds.Validationf("Description cannot be empty")
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return odds.Validationf("Description too long (max %d characters)", maxDescriptionLength)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// requestLogger tags every request with an X-Request-ID and, in verbose
// mode, logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if s.cfg.Verbose {
			log.Printf("%s %s %s -> %d in %s [%s]",
				clientIP(r), r.Method, r.URL.Path, rec.status,
				time.Since(start).Round(time.Microsecond), requestID)
		}
	})
}

// rateLimit rejects mutating requests from a client over its budget.
func (s *Server) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
			writeJSON(w, http.StatusTooManyRequests, api.ErrorMessage{
				Error: "Too many requests, slow down",
				Code:  "RATE_LIMITED",
			})
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" && net.ParseIP(ip) != nil {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
