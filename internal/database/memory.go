package database

import (
	"context"
	"strconv"
	"sync"
	"time"

	"odds-server/internal/odds"
)

// Memory keeps matches in a map. Documents are copied on the way in and out
// so callers can never alias stored state.
type Memory struct {
	matches map[string]*odds.Match
	now     func() time.Time
	mu      sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		matches: make(map[string]*odds.Match),
		now:     time.Now,
	}
}

func (s *Memory) Create(ctx context.Context, code, description, challengerName string) (*odds.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.matches[code]; exists {
		return nil, ErrCodeTaken
	}

	m := odds.NewMatch(code, description, challengerName, s.now())
	s.matches[code] = m
	return m.Clone(), nil
}

func (s *Memory) GetByCode(ctx context.Context, code string) (*odds.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.matches[code]
	if !exists {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *Memory) Exists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.matches[code]
	return exists, nil
}

func (s *Memory) Update(ctx context.Context, code string, patch odds.Patch) (*odds.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.matches[code]
	if !exists {
		return nil, ErrNotFound
	}

	updated := odds.Merge(existing, patch)
	s.matches[code] = updated
	return updated.Clone(), nil
}

func (s *Memory) GetAll(ctx context.Context) ([]*odds.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*odds.Match, 0, len(s.matches))
	for _, m := range s.matches {
		all = append(all, m.Clone())
	}
	return all, nil
}

func (s *Memory) GetCompleted(ctx context.Context) ([]*odds.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	completed := make([]*odds.Match, 0)
	for _, m := range s.matches {
		if m.IsCompleted() {
			completed = append(completed, m.Clone())
		}
	}
	return completed, nil
}

func (s *Memory) Delete(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.matches[code]; !exists {
		return false, nil
	}
	delete(s.matches, code)
	return true, nil
}

func (s *Memory) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches), nil
}

func (s *Memory) Health(ctx context.Context) map[string]string {
	count, _ := s.Count(ctx)
	return map[string]string{
		"status":  "up",
		"message": "It's healthy",
		"driver":  DriverMemory,
		"matches": strconv.Itoa(count),
	}
}

func (s *Memory) Close() error {
	return nil
}
