package sheets

import "context"

// Ports for outbound adapters.
type (
	// TabularMirror keeps a spreadsheet copy of the ledger in the tabular
	// export layout: a header row followed by one row per transaction.
	TabularMirror interface {
		// AppendRows adds rows after the last non-empty row.
		AppendRows(ctx context.Context, rows [][]string) error
		// ReplaceRows clears the sheet and writes rows from the top.
		ReplaceRows(ctx context.Context, rows [][]string) error
		// RowCount returns the number of non-empty rows, header included.
		RowCount(ctx context.Context) (int, error)
	}
)
