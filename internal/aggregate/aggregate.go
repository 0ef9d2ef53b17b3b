// Package aggregate derives every read-only view of a transaction set.
// Functions here are pure: they never mutate their input and never fail.
package aggregate

import (
	"sort"
	"strings"

	"bilancio/internal/core"
)

type (
	Totals struct {
		Expense float64 `json:"expense"`
		Refund  float64 `json:"refund"`
		Salary  float64 `json:"salary"`
	}

	CategoryTotals struct {
		Count   int     `json:"count"`
		Total   float64 `json:"total"` // unsigned sum of amounts
		Expense float64 `json:"expense"`
		Refund  float64 `json:"refund"`
		Salary  float64 `json:"salary"`
		// AlternateTotal is the signed subunit sum of the alternate records.
		AlternateTotal int64 `json:"alternateTotal"`
		HasAlternate   bool  `json:"hasAlternate"`
	}

	MonthPoint struct {
		MonthKey string  `json:"month"`
		Label    string  `json:"label"`
		Expense  float64 `json:"expense"`
		Refund   float64 `json:"refund"`
		Salary   float64 `json:"salary"`
	}

	PieSlice struct {
		Category string  `json:"category"`
		Total    float64 `json:"total"`
	}

	CategoryPoint struct {
		Category string  `json:"category"`
		Expense  float64 `json:"expense"`
		Refund   float64 `json:"refund"`
		Salary   float64 `json:"salary"`
	}
)

// Net is salary + refund - expense.
func (t Totals) Net() float64 {
	return t.Salary + t.Refund - t.Expense
}

func (t *Totals) add(typ core.Type, amount float64) {
	switch typ {
	case core.Expense:
		t.Expense += amount
	case core.Refund:
		t.Refund += amount
	case core.Salary:
		t.Salary += amount
	}
}

// FilterByMonth keeps the records whose date starts with monthKey. Malformed
// keys match nothing.
func FilterByMonth(s []core.Transaction, monthKey string) []core.Transaction {
	out := []core.Transaction{}
	if !core.ValidMonthKey(monthKey) {
		return out
	}
	for _, tx := range s {
		if tx.Date.MonthKey() == monthKey {
			out = append(out, tx)
		}
	}
	return out
}

func FilterBySettlementMethod(s []core.Transaction, method core.SettlementMethod) []core.Transaction {
	out := []core.Transaction{}
	for _, tx := range s {
		if tx.Method() == method {
			out = append(out, tx)
		}
	}
	return out
}

func TotalsByType(s []core.Transaction) Totals {
	var t Totals
	for _, tx := range s {
		t.add(tx.Type, tx.Amount)
	}
	return t
}

// NetBalance returns the signed fiat sum of s.
func NetBalance(s []core.Transaction) float64 {
	return TotalsByType(s).Net()
}

// TotalsByCategory buckets s by exact category string. Matching is case
// sensitive: "cibo" and "Cibo" are separate buckets.
func TotalsByCategory(s []core.Transaction) map[string]CategoryTotals {
	out := map[string]CategoryTotals{}
	for _, tx := range s {
		ct := out[tx.Category]
		ct.Count++
		ct.Total += tx.Amount
		switch tx.Type {
		case core.Expense:
			ct.Expense += tx.Amount
		case core.Refund:
			ct.Refund += tx.Amount
		case core.Salary:
			ct.Salary += tx.Amount
		}
		if _, ok := tx.AlternateLeg(); ok {
			ct.HasAlternate = true
			ct.AlternateTotal += tx.SignedUnits()
		}
		out[tx.Category] = ct
	}
	return out
}

// CategoryOrder returns the categories of s in first encountered order.
func CategoryOrder(s []core.Transaction) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, tx := range s {
		if _, ok := seen[tx.Category]; ok {
			continue
		}
		seen[tx.Category] = struct{}{}
		out = append(out, tx.Category)
	}
	return out
}

// DistinctDescriptions returns trimmed, non-empty descriptions deduplicated
// by exact match, in first seen order.
func DistinctDescriptions(s []core.Transaction) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, tx := range s {
		d := strings.TrimSpace(tx.Description)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// AlternateUnitBalance is initial plus the signed subunits of every
// alternate record.
func AlternateUnitBalance(s []core.Transaction, initial int64) int64 {
	bal := initial
	for _, tx := range s {
		bal += tx.SignedUnits()
	}
	return bal
}

// MonthlySeries buckets s by month, ascending. Months without records are
// not emitted.
func MonthlySeries(s []core.Transaction) []MonthPoint {
	buckets := map[string]*Totals{}
	for _, tx := range s {
		key := tx.Date.MonthKey()
		if key == "" {
			continue
		}
		b, ok := buckets[key]
		if !ok {
			b = &Totals{}
			buckets[key] = b
		}
		b.add(tx.Type, tx.Amount)
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]MonthPoint, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		out = append(out, MonthPoint{
			MonthKey: k,
			Label:    MonthLabel(k),
			Expense:  b.Expense,
			Refund:   b.Refund,
			Salary:   b.Salary,
		})
	}
	return out
}

// CategoryPieSeries sums expenses per category in first encountered order.
func CategoryPieSeries(s []core.Transaction) []PieSlice {
	idx := map[string]int{}
	out := []PieSlice{}
	for _, tx := range s {
		if tx.Type != core.Expense {
			continue
		}
		i, ok := idx[tx.Category]
		if !ok {
			i = len(out)
			idx[tx.Category] = i
			out = append(out, PieSlice{Category: tx.Category})
		}
		out[i].Total += tx.Amount
	}
	return out
}

// CategoryTypeSeries sums every type per category in first encountered order.
func CategoryTypeSeries(s []core.Transaction) []CategoryPoint {
	idx := map[string]int{}
	out := []CategoryPoint{}
	for _, tx := range s {
		i, ok := idx[tx.Category]
		if !ok {
			i = len(out)
			idx[tx.Category] = i
			out = append(out, CategoryPoint{Category: tx.Category})
		}
		switch tx.Type {
		case core.Expense:
			out[i].Expense += tx.Amount
		case core.Refund:
			out[i].Refund += tx.Amount
		case core.Salary:
			out[i].Salary += tx.Amount
		}
	}
	return out
}

// MonthLabel renders "2025-06" as "06/25". Malformed keys are returned as is.
func MonthLabel(monthKey string) string {
	if !core.ValidMonthKey(monthKey) {
		return monthKey
	}
	return monthKey[5:7] + "/" + monthKey[2:4]
}

// SortByDate returns a copy of s ordered by date, keeping insertion order
// among records of the same day.
func SortByDate(s []core.Transaction) []core.Transaction {
	out := append([]core.Transaction(nil), s...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
