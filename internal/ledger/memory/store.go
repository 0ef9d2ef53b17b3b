package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"bilancio/internal/core"
)

// Store is a volatile, mutex guarded transaction set. Construct one per
// session; there is no package level instance.
type Store struct {
	mu       sync.RWMutex
	items    []core.Transaction
	ids      map[string]struct{}
	revision uint64
}

func New() *Store {
	return &Store{ids: map[string]struct{}{}}
}

// Append validates tx and adds it at the end of the set.
func (s *Store) Append(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.Settlement == nil {
		tx.Settlement = core.Primary{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[tx.ID]; ok {
		return &core.ValidationError{Field: "id", Err: fmt.Errorf("%w: %s", core.ErrDuplicateID, tx.ID)}
	}
	s.items = append(s.items, tx)
	s.ids[tx.ID] = struct{}{}
	s.revision++
	return nil
}

// ReplaceAll validates the whole payload before swapping it in.
func (s *Store) ReplaceAll(_ context.Context, txs []core.Transaction) error {
	items, ids, err := prepare(txs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.ids = ids
	s.revision++
	return nil
}

func (s *Store) Snapshot(_ context.Context) []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Transaction(nil), s.items...)
}

func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func prepare(txs []core.Transaction) ([]core.Transaction, map[string]struct{}, error) {
	var result *multierror.Error
	items := make([]core.Transaction, 0, len(txs))
	ids := make(map[string]struct{}, len(txs))
	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		if _, ok := ids[tx.ID]; ok {
			result = multierror.Append(result, fmt.Errorf("record %d: %w", i,
				&core.ValidationError{Field: "id", Err: fmt.Errorf("%w: %s", core.ErrDuplicateID, tx.ID)}))
			continue
		}
		if tx.Settlement == nil {
			tx.Settlement = core.Primary{}
		}
		ids[tx.ID] = struct{}{}
		items = append(items, tx)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, nil, &core.ParseError{Err: err}
	}
	return items, ids, nil
}
