package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"bilancio/internal/codec"
	"bilancio/internal/core"
)

// EventKind tells consumers how the ledger changed.
type EventKind string

const (
	EventAppended EventKind = "appended"
	EventReplaced EventKind = "replaced"
)

// LedgerEvent is published after every successful store mutation. Appended
// events carry the new record, replaced events carry the whole new set.
type LedgerEvent struct {
	Kind         EventKind      `json:"kind"`
	Transaction  *codec.Record  `json:"transaction,omitempty"`
	Transactions []codec.Record `json:"transactions,omitempty"`
	Revision     uint64         `json:"revision"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewAppendedEvent creates an event for a single appended transaction
func NewAppendedEvent(tx core.Transaction, revision uint64) *LedgerEvent {
	rec := codec.NewRecord(tx)
	return &LedgerEvent{
		Kind:        EventAppended,
		Transaction: &rec,
		Revision:    revision,
		Timestamp:   time.Now(),
	}
}

// NewReplacedEvent creates an event for a full replacement of the set
func NewReplacedEvent(txs []core.Transaction, revision uint64) *LedgerEvent {
	recs := make([]codec.Record, 0, len(txs))
	for _, tx := range txs {
		recs = append(recs, codec.NewRecord(tx))
	}
	return &LedgerEvent{
		Kind:         EventReplaced,
		Transactions: recs,
		Revision:     revision,
		Timestamp:    time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and checks its kind.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	switch ev.Kind {
	case EventAppended:
		if ev.Transaction == nil {
			return nil, fmt.Errorf("appended event without transaction")
		}
	case EventReplaced:
	default:
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return &ev, nil
}

// Decode returns the domain records carried by the event.
func (e *LedgerEvent) Decode() ([]core.Transaction, error) {
	recs := e.Transactions
	if e.Kind == EventAppended {
		recs = []codec.Record{*e.Transaction}
	}
	out := make([]core.Transaction, 0, len(recs))
	for i, r := range recs {
		tx, err := r.Transaction()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, tx)
	}
	return out, nil
}
