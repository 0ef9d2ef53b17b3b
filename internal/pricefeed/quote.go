// Package pricefeed keeps the latest alternate unit quote fresh. A poller
// fetches the quote in the background and writes it into a single slot; the
// rest of the service only ever reads the slot.
package pricefeed

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrFeedUnavailable means no usable quote is currently held.
var ErrFeedUnavailable = errors.New("rate unavailable")

// Quote is the fiat value of one whole alternate unit.
type Quote struct {
	Rate      float64   `json:"rate"`
	FetchedAt time.Time `json:"fetchedAt"`
	Source    string    `json:"source"`
}

type (
	Fetcher interface {
		Fetch(ctx context.Context) (Quote, error)
	}

	// QuoteSlot holds at most one quote.
	QuoteSlot interface {
		Store(ctx context.Context, q Quote) error
		// Latest returns ErrFeedUnavailable when the slot is empty.
		Latest(ctx context.Context) (Quote, error)
		Invalidate(ctx context.Context) error
	}

	// QuoteRecorder receives every successfully fetched quote.
	QuoteRecorder interface {
		RecordQuote(ctx context.Context, q Quote) error
	}
)

// MemorySlot is the in-process QuoteSlot.
type MemorySlot struct {
	mu    sync.RWMutex
	quote Quote
	ok    bool
}

func NewMemorySlot() *MemorySlot { return &MemorySlot{} }

func (s *MemorySlot) Store(_ context.Context, q Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quote, s.ok = q, true
	return nil
}

func (s *MemorySlot) Latest(_ context.Context) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ok {
		return Quote{}, ErrFeedUnavailable
	}
	return s.quote, nil
}

func (s *MemorySlot) Invalidate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quote, s.ok = Quote{}, false
	return nil
}
