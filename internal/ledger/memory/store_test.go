package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
)

func tx(id string, date core.Date, amount float64, typ core.Type, category string) core.Transaction {
	return core.Transaction{
		ID:          id,
		Date:        date,
		Description: "desc " + id,
		Category:    category,
		Amount:      amount,
		Type:        typ,
		Settlement:  core.Primary{},
	}
}

func TestAppendAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Append(ctx, tx("a", "2025-05-10", 50, core.Expense, "Cibo")))
	require.NoError(t, s.Append(ctx, tx("b", "2025-05-15", 20, core.Refund, "Cibo")))

	snap := s.Snapshot(ctx)
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)
	assert.Equal(t, uint64(2), s.Revision())

	// snapshots are copies
	snap[0].Amount = 999
	assert.Equal(t, 50.0, s.Snapshot(ctx)[0].Amount)
}

func TestAppendRejectsInvalidAndDuplicate(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Append(ctx, tx("a", "2025-05-10", 50, core.Expense, "Cibo")))

	err := s.Append(ctx, tx("a", "2025-05-11", 10, core.Expense, "Casa"))
	require.ErrorIs(t, err, core.ErrDuplicateID)

	bad := tx("c", "2025-05-10", -1, core.Expense, "Cibo")
	err = s.Append(ctx, bad)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "amount", verr.Field)

	malformed := tx("d", "2025-05-10", 3, core.Expense, "Cibo")
	malformed.Description = "caff\xe8"
	require.ErrorIs(t, s.Append(ctx, malformed), core.ErrInvalidText)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, uint64(1), s.Revision())
}

func TestAppendStampsPrimary(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec := tx("a", "2025-05-10", 5, core.Expense, "Cibo")
	rec.Settlement = nil
	require.NoError(t, s.Append(ctx, rec))
	assert.Equal(t, core.Primary{}, s.Snapshot(ctx)[0].Settlement)
}

func TestReplaceAllKeepsStoreOnFailure(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Append(ctx, tx("a", "2025-05-10", 50, core.Expense, "Cibo")))
	before := s.Snapshot(ctx)
	rev := s.Revision()

	payload := []core.Transaction{
		tx("x", "2025-06-01", 10, core.Salary, "Lavoro"),
		tx("y", "2025-06-02", 10, "", "Casa"),
	}
	err := s.ReplaceAll(ctx, payload)
	var perr *core.ParseError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, core.ErrInvalidType)

	assert.Equal(t, before, s.Snapshot(ctx))
	assert.Equal(t, rev, s.Revision())
}

func TestReplaceAllRejectsDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := s.ReplaceAll(ctx, []core.Transaction{
		tx("x", "2025-06-01", 10, core.Salary, "Lavoro"),
		tx("x", "2025-06-02", 10, core.Expense, "Casa"),
	})
	require.ErrorIs(t, err, core.ErrDuplicateID)
	assert.Equal(t, 0, s.Len())
}

func TestReplaceAllSwaps(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Append(ctx, tx("a", "2025-05-10", 50, core.Expense, "Cibo")))
	require.NoError(t, s.ReplaceAll(ctx, []core.Transaction{
		tx("x", "2025-06-01", 10, core.Salary, "Lavoro"),
	}))
	snap := s.Snapshot(ctx)
	require.Len(t, snap, 1)
	assert.Equal(t, "x", snap[0].ID)

	// ids from the replaced set are free again
	require.NoError(t, s.Append(ctx, tx("a", "2025-05-10", 50, core.Expense, "Cibo")))

	require.NoError(t, s.ReplaceAll(ctx, nil))
	assert.Equal(t, 0, s.Len())
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(ctx, tx(fmt.Sprintf("id-%d", i), "2025-05-10", 1, core.Expense, "Cibo"))
			_ = s.Snapshot(ctx)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
	assert.Equal(t, uint64(50), s.Revision())
}

func TestCatalogFromFileSeedsAndDedupe(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalogFromFile(filepath.Join(dir, "missing.txt"), []string{"Cibo", "Casa"})
	assert.Equal(t, []string{"Cibo", "Casa"}, c.Suggestions(context.Background()))

	path := filepath.Join(dir, "categories.txt")
	require.NoError(t, os.WriteFile(path, []byte("# header\nTrasporti\nCibo\nTrasporti\n\n"), 0o644))
	c = NewCatalogFromFile(path, nil)
	assert.Equal(t, []string{"Trasporti", "Cibo"}, c.Suggestions(context.Background()))

	c.Set([]string{" Regali ", "Regali", ""})
	assert.Equal(t, []string{"Regali"}, c.Suggestions(context.Background()))
}
