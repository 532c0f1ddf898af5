/*
Package store persists learned solutions, rating events and query history.

Everything lives in a single SQLite file opened through modernc.org/sqlite
(pure Go, no CGo). Every mutation is one SQL statement, so concurrent callers
need no locking beyond what the database already provides.
*/
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// InitialConfidence is given to every new solution.
	InitialConfidence = 0.5

	// ExactThreshold must be exceeded for an exact fingerprint hit.
	ExactThreshold = 0.6
	// ReliableThreshold must be exceeded for a category hit and counts a
	// solution as reliable in Stats.
	ReliableThreshold = 0.7

	PositiveStep = 0.1
	NegativeStep = 0.15

	rawExcerptLen = 500
	historyLen    = 1000
)

var ErrNotFound = errors.New("store: solution not found")

type Rating string

const (
	Positive Rating = "positive"
	Negative Rating = "negative"
)

type Source string

const (
	SourceCache Source = "cache"
	SourceLive  Source = "live"
)

// Solution is one cached fix for a class of error.
type Solution struct {
	Fingerprint  string
	Category     string
	RawQuery     string
	AnswerText   string
	CodeExcerpt  string
	SuccessCount int
	FailCount    int
	Confidence   float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HistoryEntry is an audit record of one answered query.
type HistoryEntry struct {
	RequestID string
	UserID    int64
	Query     string
	Response  string
	Source    Source
}

type Stats struct {
	TotalSolutions    int64 `json:"total_solutions"`
	ReliableSolutions int64 `json:"reliable_solutions"`
	PositiveRatings   int64 `json:"positive_ratings"`
	NegativeRatings   int64 `json:"negative_ratings"`
	TotalQueries      int64 `json:"total_queries"`
	DistinctUsers     int64 `json:"distinct_users"`
}

// SQLite implements the solution store on a sqlite database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the parent directory when needed, opens the database and
// applies migrations. Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("store: database path is required")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	s := &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close database: %w", err)
	}
	return nil
}

const solutionColumns = `fingerprint, category, raw_query, answer_text, code_excerpt,
	success_count, fail_count, confidence, created_at, updated_at`

func scanSolution(row *sql.Row) (*Solution, error) {
	var sol Solution
	err := row.Scan(
		&sol.Fingerprint, &sol.Category, &sol.RawQuery, &sol.AnswerText, &sol.CodeExcerpt,
		&sol.SuccessCount, &sol.FailCount, &sol.Confidence, &sol.CreatedAt, &sol.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sol, nil
}

// Get returns the solution regardless of its confidence.
func (s *SQLite) Get(ctx context.Context, hash string) (*Solution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+solutionColumns+` FROM solutions WHERE fingerprint = ?`, hash)
	sol, err := scanSolution(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("store: get %s: %w", hash, err)
	}
	return sol, err
}

// FindExact returns the solution stored for hash if it is trusted enough.
func (s *SQLite) FindExact(ctx context.Context, hash string) (*Solution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+solutionColumns+` FROM solutions WHERE fingerprint = ? AND confidence > ?`,
		hash, ExactThreshold)
	sol, err := scanSolution(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("store: find exact %s: %w", hash, err)
	}
	return sol, err
}

// FindByCategory returns the most trusted reliable solution of a category,
// ties broken by success count.
func (s *SQLite) FindByCategory(ctx context.Context, category string) (*Solution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+solutionColumns+` FROM solutions
		WHERE category = ? AND confidence > ?
		ORDER BY confidence DESC, success_count DESC
		LIMIT 1`,
		category, ReliableThreshold)
	sol, err := scanSolution(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("store: find by category %s: %w", category, err)
	}
	return sol, err
}

// Upsert inserts a new solution with the initial confidence, or replaces
// the answer and code of an existing one. Trust fields are never touched
// here, concurrent writers only race on content (last writer wins).
func (s *SQLite) Upsert(ctx context.Context, hash, category, rawQuery, answer, code string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO solutions (fingerprint, category, raw_query, answer_text, code_excerpt,
			success_count, fail_count, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			answer_text = excluded.answer_text,
			code_excerpt = excluded.code_excerpt,
			updated_at = excluded.updated_at`,
		hash, category, truncate(rawQuery, rawExcerptLen), answer, code,
		InitialConfidence, now, now)
	if err != nil {
		return fmt.Errorf("store: upsert %s: %w", hash, err)
	}
	return nil
}

// AdjustConfidence applies one rating to a solution. Positive ratings add
// PositiveStep, negative ones subtract the larger NegativeStep; the result
// is clamped to [0, 1]. Unknown hashes are ignored.
func (s *SQLite) AdjustConfidence(ctx context.Context, hash string, positive bool) error {
	query := `UPDATE solutions SET
			fail_count = fail_count + 1,
			confidence = ROUND(MAX(0.0, confidence - ?), 4),
			updated_at = ?
		WHERE fingerprint = ?`
	step := NegativeStep
	if positive {
		query = `UPDATE solutions SET
			success_count = success_count + 1,
			confidence = ROUND(MIN(1.0, confidence + ?), 4),
			updated_at = ?
		WHERE fingerprint = ?`
		step = PositiveStep
	}

	if _, err := s.db.ExecContext(ctx, query, step, s.now(), hash); err != nil {
		return fmt.Errorf("store: adjust confidence %s: %w", hash, err)
	}
	return nil
}

func (s *SQLite) AppendRating(ctx context.Context, userID int64, hash string, rating Rating) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ratings (user_id, fingerprint, rating, created_at) VALUES (?, ?, ?, ?)`,
		userID, hash, string(rating), s.now())
	if err != nil {
		return fmt.Errorf("store: append rating: %w", err)
	}
	return nil
}

func (s *SQLite) AppendHistory(ctx context.Context, e HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (request_id, user_id, query, response, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.UserID, truncate(e.Query, historyLen), truncate(e.Response, historyLen),
		string(e.Source), s.now())
	if err != nil {
		return fmt.Errorf("store: append history: %w", err)
	}
	return nil
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM solutions),
			(SELECT COUNT(*) FROM solutions WHERE confidence > ?),
			(SELECT COUNT(*) FROM ratings WHERE rating = ?),
			(SELECT COUNT(*) FROM ratings WHERE rating = ?),
			(SELECT COUNT(*) FROM history),
			(SELECT COUNT(DISTINCT user_id) FROM history)`,
		ReliableThreshold, string(Positive), string(Negative),
	).Scan(&st.TotalSolutions, &st.ReliableSolutions, &st.PositiveRatings, &st.NegativeRatings, &st.TotalQueries, &st.DistinctUsers)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}

// Prune evicts solutions that were never trusted (or lost their trust) and
// have not been touched since before. Trusted solutions are kept forever.
func (s *SQLite) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM solutions WHERE updated_at < ? AND confidence <= ?`,
		before.UTC(), ExactThreshold)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return res.RowsAffected()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
