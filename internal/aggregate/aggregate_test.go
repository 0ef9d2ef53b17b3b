package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
)

func rec(id string, date core.Date, amount float64, typ core.Type, category string) core.Transaction {
	return core.Transaction{
		ID:          id,
		Date:        date,
		Description: "desc " + id,
		Category:    category,
		Amount:      amount,
		Type:        typ,
		Settlement:  core.Primary{},
	}
}

func alt(id string, date core.Date, amount float64, typ core.Type, category string, units int64, rate float64) core.Transaction {
	tx := rec(id, date, amount, typ, category)
	tx.Settlement = core.Alternate{Units: units, RateAtEntry: rate}
	return tx
}

func TestMonthWithExpenseAndRefund(t *testing.T) {
	s := []core.Transaction{
		rec("a", "2025-05-10", 50, core.Expense, "Cibo"),
		rec("b", "2025-05-15", 20, core.Refund, "Cibo"),
	}
	month := FilterByMonth(s, "2025-05")
	require.Len(t, month, 2)
	cat := TotalsByCategory(month)["Cibo"]
	assert.Equal(t, 70.0, cat.Total)
	assert.Equal(t, 2, cat.Count)
	assert.Equal(t, 50.0, cat.Expense)
	assert.Equal(t, 20.0, cat.Refund)
	assert.False(t, cat.HasAlternate)
	assert.Equal(t, -30.0, NetBalance(month))
}

func TestAlternateBalanceFromSalary(t *testing.T) {
	units, err := core.ToAlternateUnits(1000, 50000)
	require.NoError(t, err)
	require.Equal(t, int64(2000000), units)

	s := []core.Transaction{alt("s", "2025-05-01", 1000, core.Salary, "Stipendio", units, 50000)}
	assert.Equal(t, int64(2000000), AlternateUnitBalance(s, 0))
	assert.Equal(t, int64(2000500), AlternateUnitBalance(s, 500))

	s = append(s, alt("e", "2025-05-02", 50, core.Expense, "Cibo", 100000, 50000))
	assert.Equal(t, int64(1900000), AlternateUnitBalance(s, 0))
	assert.Equal(t, int64(-100000), TotalsByCategory(s)["Cibo"].AlternateTotal)
	assert.True(t, TotalsByCategory(s)["Cibo"].HasAlternate)
}

func TestMonthlySeriesSparseAndOrdered(t *testing.T) {
	s := []core.Transaction{
		rec("b", "2025-07-01", 30, core.Salary, "Lavoro"),
		rec("a", "2025-06-01", 10, core.Expense, "Cibo"),
	}
	series := MonthlySeries(s)
	require.Len(t, series, 2)
	assert.Equal(t, "2025-06", series[0].MonthKey)
	assert.Equal(t, "06/25", series[0].Label)
	assert.Equal(t, 10.0, series[0].Expense)
	assert.Zero(t, series[0].Salary)
	assert.Equal(t, "2025-07", series[1].MonthKey)
	assert.Equal(t, 30.0, series[1].Salary)
	assert.Zero(t, series[1].Expense)
}

func TestFilterByMonthBoundaries(t *testing.T) {
	s := []core.Transaction{
		rec("a", "2025-05-31", 1, core.Expense, "Cibo"),
		rec("b", "2025-06-01", 2, core.Expense, "Cibo"),
		rec("c", "2024-12-31", 3, core.Expense, "Cibo"),
		rec("d", "2025-01-01", 4, core.Expense, "Cibo"),
	}
	may := FilterByMonth(s, "2025-05")
	require.Len(t, may, 1)
	assert.Equal(t, "a", may[0].ID)

	jan := FilterByMonth(s, "2025-01")
	require.Len(t, jan, 1)
	assert.Equal(t, "d", jan[0].ID)

	assert.Empty(t, FilterByMonth(s, "2025-5"))
	assert.Empty(t, FilterByMonth(s, ""))
	assert.Empty(t, FilterByMonth(nil, "2025-05"))
}

func TestFilterIsIdempotent(t *testing.T) {
	s := []core.Transaction{
		rec("a", "2025-05-31", 1, core.Expense, "Cibo"),
		alt("b", "2025-05-01", 50, core.Expense, "Cibo", 100000, 50000),
		rec("c", "2025-06-01", 2, core.Salary, "Lavoro"),
	}
	once := FilterByMonth(s, "2025-05")
	assert.Equal(t, once, FilterByMonth(once, "2025-05"))

	alts := FilterBySettlementMethod(s, core.SettlementAlternate)
	require.Len(t, alts, 1)
	assert.Equal(t, alts, FilterBySettlementMethod(alts, core.SettlementAlternate))
	assert.Len(t, FilterBySettlementMethod(s, core.SettlementPrimary), 2)
}

func TestNetBalanceMatchesSignedSum(t *testing.T) {
	s := []core.Transaction{
		rec("a", "2025-05-01", 12.5, core.Expense, "Cibo"),
		rec("b", "2025-05-02", 100, core.Salary, "Lavoro"),
		rec("c", "2025-05-03", 7.25, core.Refund, "Casa"),
		rec("d", "2025-05-04", 3, core.Expense, "Casa"),
	}
	var signed float64
	for _, tx := range s {
		signed += tx.Signed()
	}
	assert.InDelta(t, signed, NetBalance(s), 1e-9)
	tt := TotalsByType(s)
	assert.Equal(t, Totals{Expense: 15.5, Refund: 7.25, Salary: 100}, tt)
}

func TestCategoryIsCaseSensitive(t *testing.T) {
	s := []core.Transaction{
		rec("a", "2025-05-01", 1, core.Expense, "Cibo"),
		rec("b", "2025-05-01", 2, core.Expense, "cibo"),
	}
	totals := TotalsByCategory(s)
	assert.Len(t, totals, 2)
	assert.Equal(t, []string{"Cibo", "cibo"}, CategoryOrder(s))
}

func TestDistinctDescriptions(t *testing.T) {
	s := []core.Transaction{
		{Description: " Pane "},
		{Description: "Pane"},
		{Description: "   "},
		{Description: "pane"},
		{Description: "Latte"},
	}
	assert.Equal(t, []string{"Pane", "pane", "Latte"}, DistinctDescriptions(s))
	assert.Empty(t, DistinctDescriptions(nil))
}

func TestCategoryPieAndStacked(t *testing.T) {
	s := []core.Transaction{
		rec("a", "2025-05-01", 10, core.Expense, "Casa"),
		rec("b", "2025-05-01", 5, core.Salary, "Lavoro"),
		rec("c", "2025-05-01", 4, core.Expense, "Cibo"),
		rec("d", "2025-05-01", 6, core.Expense, "Casa"),
		rec("e", "2025-05-01", 2, core.Refund, "Cibo"),
	}
	assert.Equal(t, []PieSlice{{Category: "Casa", Total: 16}, {Category: "Cibo", Total: 4}}, CategoryPieSeries(s))
	assert.Equal(t, []CategoryPoint{
		{Category: "Casa", Expense: 16},
		{Category: "Lavoro", Salary: 5},
		{Category: "Cibo", Expense: 4, Refund: 2},
	}, CategoryTypeSeries(s))
}

func TestSummarize(t *testing.T) {
	s := []core.Transaction{
		rec("a", "2025-05-10", 50, core.Expense, "Cibo"),
		rec("b", "2025-05-15", 20, core.Refund, "Cibo"),
		alt("c", "2025-04-01", 1000, core.Salary, "Lavoro", 2000000, 50000),
	}
	sum := Summarize(s, "2025-05", 100)
	assert.Equal(t, "2025-05", sum.Month)
	assert.Equal(t, 2, sum.Count)
	assert.Equal(t, -30.0, sum.Net)
	require.Len(t, sum.Categories, 1)
	assert.Equal(t, "Cibo", sum.Categories[0].Category)
	assert.Equal(t, 70.0, sum.Categories[0].Total)
	assert.Len(t, sum.Descriptions, 3)
	assert.Equal(t, int64(2000100), sum.AlternateBalance)
}

func TestMonthLabelAndSort(t *testing.T) {
	assert.Equal(t, "12/24", MonthLabel("2024-12"))
	assert.Equal(t, "bad", MonthLabel("bad"))

	s := []core.Transaction{
		rec("b", "2025-05-02", 1, core.Expense, "x"),
		rec("a", "2025-05-01", 1, core.Expense, "x"),
		rec("c", "2025-05-02", 1, core.Expense, "x"),
	}
	sorted := SortByDate(s)
	assert.Equal(t, []string{"a", "b", "c"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
	assert.Equal(t, "b", s[0].ID)
}
