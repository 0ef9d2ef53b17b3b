package ledger

import (
	"context"

	"bilancio/internal/core"
)

// Ports for the transaction store.
type (
	Appender interface {
		// Append validates tx and adds it to the set. The id must be unique.
		Append(ctx context.Context, tx core.Transaction) error
	}

	Replacer interface {
		// ReplaceAll swaps the whole set. Either every record is accepted or
		// the store is left untouched and a *core.ParseError is returned.
		ReplaceAll(ctx context.Context, txs []core.Transaction) error
	}

	Snapshotter interface {
		// Snapshot returns a copy of the set in insertion order.
		Snapshot(ctx context.Context) []core.Transaction
		// Revision changes every time the set changes.
		Revision() uint64
	}

	Store interface {
		Appender
		Replacer
		Snapshotter
		Len() int
	}

	// CategorySuggester lists the autocomplete categories. It never constrains
	// what categories a transaction may carry.
	CategorySuggester interface {
		Suggestions(ctx context.Context) []string
	}
)
