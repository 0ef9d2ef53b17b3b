package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bilancio/internal/pricefeed"

	_ "modernc.org/sqlite"
)

const (
	// Fixed width UTC layout keeps fetched_at lexically ordered.
	timeLayout = "2006-01-02T15:04:05.000000000Z"

	defaultListLimit = 50
	maxListLimit     = 1000
)

// ErrNoQuotes is returned by LatestQuote on an empty history.
var ErrNoQuotes = errors.New("no recorded quotes")

// QuoteRepository keeps the history of fetched exchange rate quotes.
// Transactions are never stored here.
type QuoteRepository struct {
	db            *sql.DB
	schemaVersion uint
}

var _ pricefeed.QuoteRecorder = (*QuoteRepository)(nil)

func NewQuoteRepository(dbPath string) (*QuoteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer keeps SQLite away from SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &QuoteRepository{db: db, schemaVersion: version}, nil
}

func (r *QuoteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SchemaVersion is the migration version the database was opened at.
func (r *QuoteRepository) SchemaVersion() uint { return r.schemaVersion }

// Ping reports whether the database is reachable.
func (r *QuoteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RecordQuote implements pricefeed.QuoteRecorder.
func (r *QuoteRepository) RecordQuote(ctx context.Context, q pricefeed.Quote) error {
	if q.Rate <= 0 {
		return fmt.Errorf("record quote: non-positive rate %v", q.Rate)
	}
	fetchedAt := q.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rate_quotes (rate, fetched_at, source) VALUES (?, ?, ?)`,
		q.Rate, fetchedAt.UTC().Format(timeLayout), q.Source)
	if err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

// LatestQuote returns the most recently fetched quote.
func (r *QuoteRepository) LatestQuote(ctx context.Context) (pricefeed.Quote, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT rate, fetched_at, source FROM rate_quotes ORDER BY fetched_at DESC, id DESC LIMIT 1`)
	q, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pricefeed.Quote{}, ErrNoQuotes
	}
	if err != nil {
		return pricefeed.Quote{}, fmt.Errorf("get latest quote: %w", err)
	}
	return q, nil
}

// ListQuotes returns up to limit quotes, newest first.
func (r *QuoteRepository) ListQuotes(ctx context.Context, limit int) ([]pricefeed.Quote, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT rate, fetched_at, source FROM rate_quotes ORDER BY fetched_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	out := []pricefeed.Quote{}
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return out, nil
}

// PruneBefore deletes quotes fetched before cutoff and returns how many went.
func (r *QuoteRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM rate_quotes WHERE fetched_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune quotes: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuote(s scanner) (pricefeed.Quote, error) {
	var (
		q         pricefeed.Quote
		fetchedAt string
	)
	if err := s.Scan(&q.Rate, &fetchedAt, &q.Source); err != nil {
		return pricefeed.Quote{}, err
	}
	t, err := time.Parse(timeLayout, fetchedAt)
	if err != nil {
		return pricefeed.Quote{}, fmt.Errorf("parse fetched_at %q: %w", fetchedAt, err)
	}
	q.FetchedAt = t
	return q, nil
}
