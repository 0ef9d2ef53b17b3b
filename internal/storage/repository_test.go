package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bilancio/internal/pricefeed"
)

func newTestRepo(t *testing.T) *QuoteRepository {
	t.Helper()
	repo, err := NewQuoteRepository(filepath.Join(t.TempDir(), "quotes", "history.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestQuoteRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.LatestQuote(ctx); err != ErrNoQuotes {
		t.Fatalf("expected ErrNoQuotes, got %v", err)
	}

	base := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	for i, rate := range []float64{50000, 51000.5, 49999.99} {
		q := pricefeed.Quote{Rate: rate, FetchedAt: base.Add(time.Duration(i) * time.Minute), Source: "test"}
		if err := repo.RecordQuote(ctx, q); err != nil {
			t.Fatalf("record quote %d: %v", i, err)
		}
	}

	latest, err := repo.LatestQuote(ctx)
	if err != nil {
		t.Fatalf("latest quote: %v", err)
	}
	if latest.Rate != 49999.99 || !latest.FetchedAt.Equal(base.Add(2*time.Minute)) || latest.Source != "test" {
		t.Fatalf("unexpected latest quote: %+v", latest)
	}

	quotes, err := repo.ListQuotes(ctx, 2)
	if err != nil {
		t.Fatalf("list quotes: %v", err)
	}
	if len(quotes) != 2 || quotes[0].Rate != 49999.99 || quotes[1].Rate != 51000.5 {
		t.Fatalf("unexpected list: %+v", quotes)
	}
}

func TestQuoteRepository_OrdersSubSecondTimestamps(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	base := time.Date(2025, 5, 10, 12, 0, 5, 0, time.UTC)
	if err := repo.RecordQuote(ctx, pricefeed.Quote{Rate: 2, FetchedAt: base.Add(500 * time.Millisecond)}); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordQuote(ctx, pricefeed.Quote{Rate: 1, FetchedAt: base}); err != nil {
		t.Fatal(err)
	}
	latest, err := repo.LatestQuote(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Rate != 2 {
		t.Fatalf("expected the later quote, got %+v", latest)
	}
}

func TestQuoteRepository_RejectsNonPositiveRate(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.RecordQuote(context.Background(), pricefeed.Quote{Rate: 0}); err == nil {
		t.Fatal("expected error for zero rate")
	}
}

func TestQuoteRepository_Prune(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = repo.RecordQuote(ctx, pricefeed.Quote{Rate: 1, FetchedAt: old})
	_ = repo.RecordQuote(ctx, pricefeed.Quote{Rate: 2, FetchedAt: recent})

	n, err := repo.PruneBefore(ctx, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || n != 1 {
		t.Fatalf("prune: n=%d err=%v", n, err)
	}
	quotes, _ := repo.ListQuotes(ctx, 0)
	if len(quotes) != 1 || quotes[0].Rate != 2 {
		t.Fatalf("unexpected quotes after prune: %+v", quotes)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	for i := 0; i < 2; i++ {
		version, err := RunMigrations(path)
		if err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		if version != 1 {
			t.Fatalf("run %d: schema version = %d, want 1", i+1, version)
		}
	}

	repo, err := NewQuoteRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	if repo.SchemaVersion() != 1 {
		t.Errorf("SchemaVersion() = %d", repo.SchemaVersion())
	}
}
