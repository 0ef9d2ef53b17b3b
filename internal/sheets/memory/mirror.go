package memory

import (
	"context"
	"sync"

	"bilancio/internal/sheets"
)

// Mirror is an in-process TabularMirror, used when no spreadsheet is configured.
type Mirror struct {
	mu   sync.Mutex
	rows [][]string
}

var _ sheets.TabularMirror = (*Mirror)(nil)

func NewMirror() *Mirror { return &Mirror{} }

func (m *Mirror) AppendRows(_ context.Context, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, copyRows(rows)...)
	return nil
}

func (m *Mirror) ReplaceRows(_ context.Context, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = copyRows(rows)
	return nil
}

func (m *Mirror) RowCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

// Rows returns a copy of the mirrored rows.
func (m *Mirror) Rows() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRows(m.rows)
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, append([]string(nil), r...))
	}
	return out
}
