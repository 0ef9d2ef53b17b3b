package codec

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"bilancio/internal/core"
)

// Header is the column order of the tabular export.
var Header = []string{
	"id", "date", "description", "category", "amount", "type",
	"settlementMethod", "alternateAmount", "exchangeRateAtEntry",
}

// Row renders tx as one tabular row. Absent optional fields are empty cells.
func Row(tx core.Transaction) []string {
	row := []string{
		tx.ID,
		string(tx.Date),
		tx.Description,
		tx.Category,
		formatFloat(tx.Amount),
		string(tx.Type),
		string(tx.Method()),
		"",
		"",
	}
	if a, ok := tx.AlternateLeg(); ok {
		row[7] = strconv.FormatInt(a.Units, 10)
		row[8] = formatFloat(a.RateAtEntry)
	}
	return row
}

// TabularRows returns the header followed by one row per record.
func TabularRows(s []core.Transaction) [][]string {
	rows := make([][]string, 0, len(s)+1)
	rows = append(rows, append([]string(nil), Header...))
	for _, tx := range s {
		rows = append(rows, Row(tx))
	}
	return rows
}

// ToTabularText encodes s as CSV with a header row.
func ToTabularText(s []core.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(TabularRows(s)); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
