package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"odds-server/internal/odds"
)

// SQLite stores each match as a JSON document in a single row.
// completed_at is projected out of the document so the completed scan
// does not have to decode every row.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database file at path and applies
// migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db, "sqlite3", "sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Create(ctx context.Context, code, description, challengerName string) (*odds.Match, error) {
	m := odds.NewMatch(code, description, challengerName, time.Now())

	doc, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize match: %w", err)
	}

	query := `
		INSERT INTO matches (code, doc, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, NULL)
		ON CONFLICT (code) DO NOTHING
	`

	now := m.CreatedAt.UnixMilli()
	result, err := s.db.ExecContext(ctx, query, code, string(doc), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create match %s: %w", code, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check insert result: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrCodeTaken
	}

	return m, nil
}

func (s *SQLite) GetByCode(ctx context.Context, code string) (*odds.Match, error) {
	return s.load(ctx, s.db, code)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) load(ctx context.Context, q queryRower, code string) (*odds.Match, error) {
	var doc string
	err := q.QueryRowContext(ctx, `SELECT doc FROM matches WHERE code = ?`, code).Scan(&doc)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", code, err)
	}

	var m odds.Match
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		return nil, fmt.Errorf("failed to deserialize match %s: %w", code, err)
	}
	return &m, nil
}

func (s *SQLite) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM matches WHERE code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check match %s: %w", code, err)
	}
	return exists, nil
}

// Update reads, merges and writes the document inside one transaction.
func (s *SQLite) Update(ctx context.Context, code string, patch odds.Patch) (*odds.Match, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.load(ctx, tx, code)
	if err != nil {
		return nil, err
	}

	updated := odds.Merge(existing, patch)
	doc, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize match: %w", err)
	}

	var completed sql.NullInt64
	if t := completedAt(updated); t != nil {
		completed = sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
	}

	query := `
		UPDATE matches SET doc = ?, updated_at = ?, completed_at = ?
		WHERE code = ?
	`
	if _, err := tx.ExecContext(ctx, query, string(doc), time.Now().UnixMilli(), completed, code); err != nil {
		return nil, fmt.Errorf("failed to update match %s: %w", code, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit match %s: %w", code, err)
	}
	return updated, nil
}

func (s *SQLite) GetAll(ctx context.Context) ([]*odds.Match, error) {
	return s.scan(ctx, `SELECT doc FROM matches`)
}

func (s *SQLite) GetCompleted(ctx context.Context) ([]*odds.Match, error) {
	return s.scan(ctx, `SELECT doc FROM matches WHERE completed_at IS NOT NULL`)
}

func (s *SQLite) scan(ctx context.Context, query string, args ...any) ([]*odds.Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*odds.Match, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}

		var m odds.Match
		if err := json.Unmarshal([]byte(doc), &m); err != nil {
			// Log the error but continue with other matches
			log.Printf("Warning: failed to deserialize match: %v", err)
			continue
		}
		matches = append(matches, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}
	return matches, nil
}

func (s *SQLite) Delete(ctx context.Context, code string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE code = ?`, code)
	if err != nil {
		return false, fmt.Errorf("failed to delete match %s: %w", code, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check deletion result: %w", err)
	}
	return rowsAffected > 0, nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return count, nil
}

func (s *SQLite) Health(ctx context.Context) map[string]string {
	stats := make(map[string]string)
	stats["driver"] = DriverSQLite

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"
	stats["path"] = s.path
	if count, err := s.Count(ctx); err == nil {
		stats["matches"] = strconv.Itoa(count)
	}
	return stats
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
