package aggregate

import "bilancio/internal/core"

// CategorySummary is one row of the per-category view.
type CategorySummary struct {
	Category string `json:"category"`
	CategoryTotals
}

// Summary is the month view: month scoped totals plus the all-time figures
// the month view also shows.
type Summary struct {
	Month            string            `json:"month"`
	Count            int               `json:"count"`
	Totals           Totals            `json:"totals"`
	Net              float64           `json:"net"`
	Categories       []CategorySummary `json:"categories"`
	Pie              []PieSlice        `json:"pie"`
	Stacked          []CategoryPoint   `json:"stacked"`
	Descriptions     []string          `json:"descriptions"`
	AlternateBalance int64             `json:"alternateBalance"`
}

// Categories pairs TotalsByCategory with CategoryOrder.
func Categories(s []core.Transaction) []CategorySummary {
	totals := TotalsByCategory(s)
	order := CategoryOrder(s)
	out := make([]CategorySummary, 0, len(order))
	for _, c := range order {
		out = append(out, CategorySummary{Category: c, CategoryTotals: totals[c]})
	}
	return out
}

func Summarize(s []core.Transaction, monthKey string, initialUnits int64) Summary {
	month := FilterByMonth(s, monthKey)
	totals := TotalsByType(month)
	return Summary{
		Month:            monthKey,
		Count:            len(month),
		Totals:           totals,
		Net:              totals.Net(),
		Categories:       Categories(month),
		Pie:              CategoryPieSeries(month),
		Stacked:          CategoryTypeSeries(month),
		Descriptions:     DistinctDescriptions(s),
		AlternateBalance: AlternateUnitBalance(s, initialUnits),
	}
}
