package codec

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
)

func sample() []core.Transaction {
	return []core.Transaction{
		{ID: "a", Date: "2025-05-10", Description: "Spesa, \"bio\"", Category: "Cibo", Amount: 50, Type: core.Expense, Settlement: core.Primary{}},
		{ID: "b", Date: "2025-05-15", Description: "Rimborso", Category: "Cibo", Amount: 20.5, Type: core.Refund, Settlement: core.Primary{}},
		{ID: "c", Date: "2025-05-01", Description: "Stipendio", Category: "Lavoro", Amount: 1000, Type: core.Salary,
			Settlement: core.Alternate{Units: 2000000, RateAtEntry: 50000}},
	}
}

func TestStructuredRoundTrip(t *testing.T) {
	in := sample()
	b, err := ToStructuredText(in)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "[\n  {"))

	out, err := FromStructuredText(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestStructuredRoundTripMultibyteText(t *testing.T) {
	in := []core.Transaction{
		{ID: "a", Date: "2025-05-10", Description: strings.Repeat("è", 150), Category: "Caffè", Amount: 1.2, Type: core.Expense, Settlement: core.Primary{}},
	}
	b, err := ToStructuredText(in)
	require.NoError(t, err)

	out, err := FromStructuredText(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestMalformedTextNeverReachesExport(t *testing.T) {
	tx := core.Transaction{ID: "a", Date: "2025-05-10", Description: "caff\xe8", Category: "Cibo", Amount: 1, Type: core.Expense}
	err := tx.Validate()
	require.ErrorIs(t, err, core.ErrInvalidText)

	b, err := ToStructuredText([]core.Transaction{tx})
	require.NoError(t, err)
	out, err := FromStructuredText(b)
	require.NoError(t, err)
	assert.NotEqual(t, tx.Description, out[0].Description, "invalid bytes do not survive export")
}

func TestStructuredAlwaysStampsSettlement(t *testing.T) {
	b, err := ToStructuredText([]core.Transaction{
		{ID: "a", Date: "2025-05-10", Description: "x", Category: "c", Amount: 1, Type: core.Expense},
	})
	require.NoError(t, err)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "primary", raw[0]["settlementMethod"])
	_, has := raw[0]["alternateAmount"]
	assert.False(t, has)
}

func TestFromStructuredTextLenientSettlement(t *testing.T) {
	payload := `[{"id":"a","date":"2025-05-10","description":"x","category":"Cibo","amount":3,"type":"expense","extra":true}]`
	out, err := FromStructuredText([]byte(payload))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, core.Primary{}, out[0].Settlement)
}

func TestFromStructuredTextMissingType(t *testing.T) {
	payload := `[
		{"id":"a","date":"2025-05-10","description":"x","category":"Cibo","amount":3,"type":"expense"},
		{"id":"b","date":"2025-05-11","description":"y","category":"Cibo","amount":3}
	]`
	out, err := FromStructuredText([]byte(payload))
	assert.Nil(t, out)
	var perr *core.ParseError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, ErrMissingField)
	require.Len(t, perr.Causes(), 1)
	assert.Contains(t, perr.Causes()[0].Error(), "record 1")
}

func TestFromStructuredTextErrors(t *testing.T) {
	cases := map[string]string{
		"object":         `{"id":"a"}`,
		"empty":          ``,
		"garbage":        `[{`,
		"bad date":       `[{"id":"a","date":"2025-13-01","description":"x","category":"c","amount":1,"type":"expense"}]`,
		"negative":       `[{"id":"a","date":"2025-01-01","description":"x","category":"c","amount":-1,"type":"expense"}]`,
		"unknown type":   `[{"id":"a","date":"2025-01-01","description":"x","category":"c","amount":1,"type":"gift"}]`,
		"unknown method": `[{"id":"a","date":"2025-01-01","description":"x","category":"c","amount":1,"type":"expense","settlementMethod":"card"}]`,
		"alt no fields":  `[{"id":"a","date":"2025-01-01","description":"x","category":"c","amount":1,"type":"expense","settlementMethod":"alternate"}]`,
		"alt mismatch":   `[{"id":"a","date":"2025-01-01","description":"x","category":"c","amount":1,"type":"expense","settlementMethod":"alternate","alternateAmount":5000000,"exchangeRateAtEntry":50000}]`,
		"string amount":  `[{"id":"a","date":"2025-01-01","description":"x","category":"c","amount":"1","type":"expense"}]`,
		"duplicate ids":  `[{"id":"a","date":"2025-01-01","description":"x","category":"c","amount":1,"type":"expense"},{"id":"a","date":"2025-01-02","description":"y","category":"c","amount":1,"type":"expense"}]`,
		"not an object":  `[1]`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromStructuredText([]byte(payload))
			var perr *core.ParseError
			assert.True(t, errors.As(err, &perr), "got %v", err)
		})
	}
}

func TestFromStructuredTextEmptyArray(t *testing.T) {
	out, err := FromStructuredText([]byte(" [] "))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestToTabularText(t *testing.T) {
	b, err := ToTabularText(sample())
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "Spesa, \"bio\"", rows[1][2])
	assert.Equal(t, []string{"b", "2025-05-15", "Rimborso", "Cibo", "20.5", "refund", "primary", "", ""}, rows[2])
	assert.Equal(t, []string{"c", "2025-05-01", "Stipendio", "Lavoro", "1000", "salary", "alternate", "2000000", "50000"}, rows[3])
	assert.Contains(t, string(b), `"Spesa, ""bio"""`)
}

func TestToTabularTextEmpty(t *testing.T) {
	b, err := ToTabularText(nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(Header, ",")+"\n", string(b))
}
