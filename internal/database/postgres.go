package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"odds-server/internal/odds"
)

// Postgres keeps match documents in a JSONB column. Updates lock the row with
// SELECT ... FOR UPDATE, so concurrent writers on other processes serialize too.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = runMigrations(db, "postgres", "postgres")
	db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Create(ctx context.Context, code, description, challengerName string) (*odds.Match, error) {
	m := odds.NewMatch(code, description, challengerName, time.Now())

	doc, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize match: %w", err)
	}

	query := `
		INSERT INTO matches (code, doc, created_at, updated_at)
		VALUES ($1, $2::jsonb, $3, $3)
		ON CONFLICT (code) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query, code, string(doc), m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create match %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrCodeTaken
	}
	return m, nil
}

func (s *Postgres) GetByCode(ctx context.Context, code string) (*odds.Match, error) {
	return s.load(ctx, s.pool, code, false)
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Postgres) load(ctx context.Context, q pgQuerier, code string, forUpdate bool) (*odds.Match, error) {
	query := `SELECT doc FROM matches WHERE code = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var doc []byte
	err := q.QueryRow(ctx, query, code).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", code, err)
	}

	var m odds.Match
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("failed to deserialize match %s: %w", code, err)
	}
	return &m, nil
}

func (s *Postgres) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM matches WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check match %s: %w", code, err)
	}
	return exists, nil
}

func (s *Postgres) Update(ctx context.Context, code string, patch odds.Patch) (*odds.Match, error) {
	var updated *odds.Match

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		existing, err := s.load(ctx, tx, code, true)
		if err != nil {
			return err
		}

		updated = odds.Merge(existing, patch)
		doc, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to serialize match: %w", err)
		}

		query := `
			UPDATE matches SET doc = $2::jsonb, updated_at = now(), completed_at = $3
			WHERE code = $1
		`
		if _, err := tx.Exec(ctx, query, code, string(doc), completedAt(updated)); err != nil {
			return fmt.Errorf("failed to update match %s: %w", code, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Postgres) GetAll(ctx context.Context) ([]*odds.Match, error) {
	return s.scan(ctx, `SELECT doc FROM matches`)
}

func (s *Postgres) GetCompleted(ctx context.Context) ([]*odds.Match, error) {
	return s.scan(ctx, `SELECT doc FROM matches WHERE completed_at IS NOT NULL`)
}

func (s *Postgres) scan(ctx context.Context, query string) ([]*odds.Match, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}

	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("failed to scan match rows: %w", err)
	}

	matches := make([]*odds.Match, 0, len(docs))
	for _, doc := range docs {
		var m odds.Match
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, fmt.Errorf("failed to deserialize match: %w", err)
		}
		matches = append(matches, &m)
	}
	return matches, nil
}

func (s *Postgres) Delete(ctx context.Context, code string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM matches WHERE code = $1`, code)
	if err != nil {
		return false, fmt.Errorf("failed to delete match %s: %w", code, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM matches`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return count, nil
}

func (s *Postgres) Health(ctx context.Context) map[string]string {
	stats := make(map[string]string)
	stats["driver"] = DriverPostgres

	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	poolStats := s.pool.Stat()
	stats["total_connections"] = strconv.Itoa(int(poolStats.TotalConns()))
	stats["idle_connections"] = strconv.Itoa(int(poolStats.IdleConns()))
	stats["acquired_connections"] = strconv.Itoa(int(poolStats.AcquiredConns()))
	if count, err := s.Count(ctx); err == nil {
		stats["matches"] = strconv.Itoa(count)
	}
	return stats
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
