// Package codec converts transaction sets to and from their file formats:
// a JSON array for backup and import, CSV for spreadsheets (export only).
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"bilancio/internal/core"
)

// Record is the wire shape of a transaction. Pointer fields let the decoder
// tell a missing field from a zero value.
type Record struct {
	ID                  *string  `json:"id"`
	Date                *string  `json:"date"`
	Description         *string  `json:"description"`
	Category            *string  `json:"category"`
	Amount              *float64 `json:"amount"`
	Type                *string  `json:"type"`
	SettlementMethod    *string  `json:"settlementMethod,omitempty"`
	AlternateAmount     *int64   `json:"alternateAmount,omitempty"`
	ExchangeRateAtEntry *float64 `json:"exchangeRateAtEntry,omitempty"`
}

var (
	ErrNotArray     = errors.New("top level value must be an array")
	ErrMissingField = errors.New("missing required field")
)

// NewRecord builds the wire record of tx. settlementMethod is always set.
func NewRecord(tx core.Transaction) Record {
	method := string(tx.Method())
	r := Record{
		ID:               ptr(tx.ID),
		Date:             ptr(string(tx.Date)),
		Description:      ptr(tx.Description),
		Category:         ptr(tx.Category),
		Amount:           ptr(tx.Amount),
		Type:             ptr(string(tx.Type)),
		SettlementMethod: &method,
	}
	if a, ok := tx.AlternateLeg(); ok {
		r.AlternateAmount = ptr(a.Units)
		r.ExchangeRateAtEntry = ptr(a.RateAtEntry)
	}
	return r
}

// Transaction converts r into a validated domain record.
func (r Record) Transaction() (core.Transaction, error) {
	var missing []string
	for name, set := range map[string]bool{
		"id":          r.ID != nil,
		"date":        r.Date != nil,
		"description": r.Description != nil,
		"category":    r.Category != nil,
		"amount":      r.Amount != nil,
		"type":        r.Type != nil,
	} {
		if !set {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return core.Transaction{}, fmt.Errorf("%w: %v", ErrMissingField, missing)
	}

	method, err := core.ParseSettlementMethod(deref(r.SettlementMethod))
	if err != nil {
		return core.Transaction{}, &core.ValidationError{Field: "settlementMethod", Err: err}
	}
	typ, err := core.ParseType(*r.Type)
	if err != nil {
		return core.Transaction{}, &core.ValidationError{Field: "type", Err: err}
	}
	tx := core.Transaction{
		ID:          *r.ID,
		Date:        core.Date(*r.Date),
		Description: *r.Description,
		Category:    *r.Category,
		Amount:      *r.Amount,
		Type:        typ,
		Settlement:  core.Primary{},
	}
	if method == core.SettlementAlternate {
		if r.AlternateAmount == nil || r.ExchangeRateAtEntry == nil {
			return core.Transaction{}, &core.ValidationError{Field: "alternateAmount", Err: core.ErrInconsistentAlternate}
		}
		tx.Settlement = core.Alternate{Units: *r.AlternateAmount, RateAtEntry: *r.ExchangeRateAtEntry}
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// ToStructuredText encodes s as an indented JSON array.
func ToStructuredText(s []core.Transaction) ([]byte, error) {
	records := make([]Record, 0, len(s))
	for _, tx := range s {
		records = append(records, NewRecord(tx))
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode transactions: %w", err)
	}
	return b, nil
}

// FromStructuredText decodes and validates a JSON array of records. Every
// problem found is reported in a single *core.ParseError; on error no
// records are returned.
func FromStructuredText(b []byte) ([]core.Transaction, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &core.ParseError{Err: ErrNotArray}
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &core.ParseError{Err: fmt.Errorf("decode json: %w", err)}
	}

	var result *multierror.Error
	out := make([]core.Transaction, 0, len(raw))
	seen := make(map[string]int, len(raw))
	for i, msg := range raw {
		var r Record
		if err := json.Unmarshal(msg, &r); err != nil {
			result = multierror.Append(result, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		tx, err := r.Transaction()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		if first, ok := seen[tx.ID]; ok {
			result = multierror.Append(result, fmt.Errorf("record %d: %w",
				i, &core.ValidationError{Field: "id", Err: fmt.Errorf("%w: %s (first at record %d)", core.ErrDuplicateID, tx.ID, first)}))
			continue
		}
		seen[tx.ID] = i
		out = append(out, tx)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, &core.ParseError{Err: err}
	}
	return out, nil
}

func ptr[T any](v T) *T { return &v }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
