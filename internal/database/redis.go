package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"odds-server/internal/odds"
)

const (
	redisCodesKey     = "odds:codes"
	redisCompletedKey = "odds:completed"
	redisMaxRetries   = 10
)

// Redis stores each match as a JSON string. Updates are optimistic
// WATCH/MULTI transactions retried when another writer got there first.
type Redis struct {
	rdb *redis.Client
}

func OpenRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func matchKey(code string) string { return "odds:match:" + code }

func (s *Redis) Create(ctx context.Context, code, description, challengerName string) (*odds.Match, error) {
	m := odds.NewMatch(code, description, challengerName, time.Now())

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize match: %w", err)
	}

	// the match and its index entry are written in one MULTI so a failure
	// never leaves a match that GetAll and Count cannot see
	key := matchKey(code)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrCodeTaken
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.SAdd(ctx, redisCodesKey, code)
			return nil
		})
		return err
	}

	err = s.rdb.Watch(ctx, txf, key)
	switch {
	case errors.Is(err, ErrCodeTaken), errors.Is(err, redis.TxFailedErr):
		// another writer claimed the key between WATCH and EXEC
		return nil, ErrCodeTaken
	case err != nil:
		return nil, fmt.Errorf("failed to create match %s: %w", code, err)
	}
	return m, nil
}

func (s *Redis) GetByCode(ctx context.Context, code string) (*odds.Match, error) {
	return s.get(ctx, s.rdb, code)
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Redis) get(ctx context.Context, c redisGetter, code string) (*odds.Match, error) {
	raw, err := c.Get(ctx, matchKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", code, err)
	}

	var m odds.Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to deserialize match %s: %w", code, err)
	}
	return &m, nil
}

func (s *Redis) Exists(ctx context.Context, code string) (bool, error) {
	n, err := s.rdb.Exists(ctx, matchKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check match %s: %w", code, err)
	}
	return n > 0, nil
}

func (s *Redis) Update(ctx context.Context, code string, patch odds.Patch) (*odds.Match, error) {
	key := matchKey(code)
	var updated *odds.Match

	txf := func(tx *redis.Tx) error {
		existing, err := s.get(ctx, tx, code)
		if err != nil {
			return err
		}

		updated = odds.Merge(existing, patch)
		raw, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to serialize match: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			if updated.IsCompleted() {
				pipe.SAdd(ctx, redisCompletedKey, code)
			}
			return nil
		})
		return err
	}

	for range redisMaxRetries {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("failed to update match %s: too much contention", code)
}

func (s *Redis) GetAll(ctx context.Context) ([]*odds.Match, error) {
	return s.loadSet(ctx, redisCodesKey)
}

func (s *Redis) GetCompleted(ctx context.Context) ([]*odds.Match, error) {
	return s.loadSet(ctx, redisCompletedKey)
}

func (s *Redis) loadSet(ctx context.Context, setKey string) ([]*odds.Match, error) {
	codes, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	matches := make([]*odds.Match, 0, len(codes))
	if len(codes) == 0 {
		return matches, nil
	}

	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = matchKey(code)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// deleted between SMEMBERS and MGET
			continue
		}
		var m odds.Match
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("failed to deserialize match: %w", err)
		}
		matches = append(matches, &m)
	}
	return matches, nil
}

func (s *Redis) Delete(ctx context.Context, code string) (bool, error) {
	var deleted *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, matchKey(code))
		pipe.SRem(ctx, redisCodesKey, code)
		pipe.SRem(ctx, redisCompletedKey, code)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete match %s: %w", code, err)
	}
	return deleted.Val() > 0, nil
}

func (s *Redis) Count(ctx context.Context) (int, error) {
	n, err := s.rdb.SCard(ctx, redisCodesKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return int(n), nil
}

func (s *Redis) Health(ctx context.Context) map[string]string {
	stats := make(map[string]string)
	stats["driver"] = DriverRedis

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("redis down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"
	if count, err := s.Count(ctx); err == nil {
		stats["matches"] = strconv.Itoa(count)
	}
	return stats
}

func (s *Redis) Close() error {
	return s.rdb.Close()
}
