package core

import (
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Expense Type = "expense"
	Refund  Type = "refund"
	Salary  Type = "salary"

	SettlementPrimary   SettlementMethod = "primary"
	SettlementAlternate SettlementMethod = "alternate"

	// SatsPerBTC is the denomination factor between one whole alternate unit and its subunit.
	SatsPerBTC = 100_000_000

	// DateLayout is the ISO calendar date layout used by Date.
	DateLayout = "2006-01-02"

	maxDescriptionLen = 200
)

type (
	// Type carries the sign of a transaction: expenses decrease the balance,
	// refunds and salaries increase it.
	Type string

	// SettlementMethod names the unit(s) a transaction is denominated in.
	SettlementMethod string

	// Date is an ISO YYYY-MM-DD calendar date kept in its textual form,
	// so that month bucketing stays a lexical operation.
	Date string

	// Settlement is the tagged variant attached to every transaction.
	// Only Primary and Alternate implement it.
	Settlement interface {
		Method() SettlementMethod
		isSettlement()
	}

	// Primary marks a fiat-only transaction.
	Primary struct{}

	// Alternate marks a transaction settled in the alternate unit. Units is the
	// subunit quantity (satoshi) and RateAtEntry the fiat value of one whole
	// unit at the moment the record was created.
	Alternate struct {
		Units       int64
		RateAtEntry float64
	}

	Transaction struct {
		ID          string
		Date        Date
		Description string
		Category    string
		Amount      float64 // always >= 0, sign is carried by Type
		Type        Type
		Settlement  Settlement
	}
)

var (
	ErrMissingID             = errors.New("missing id")
	ErrDuplicateID           = errors.New("duplicate id")
	ErrInvalidDate           = errors.New("invalid date")
	ErrEmptyDescription      = errors.New("empty description")
	ErrDescriptionTooLong    = errors.New("description too long (max 200 characters)")
	ErrEmptyCategory         = errors.New("empty category")
	ErrInvalidText           = errors.New("text is not valid UTF-8")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidType           = errors.New("invalid transaction type")
	ErrInvalidSettlement     = errors.New("invalid settlement method")
	ErrInconsistentAlternate = errors.New("inconsistent alternate amount")
)

func (Primary) Method() SettlementMethod   { return SettlementPrimary }
func (Primary) isSettlement()              {}
func (Alternate) Method() SettlementMethod { return SettlementAlternate }
func (Alternate) isSettlement()            {}

// ParseType returns the Type named by s.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", ErrInvalidType
	}
	return t, nil
}

func (t Type) Valid() bool {
	switch t {
	case Expense, Refund, Salary:
		return true
	default:
		return false
	}
}

// Types lists every transaction type in display order.
func Types() []Type {
	return []Type{Expense, Refund, Salary}
}

// ParseSettlementMethod returns the method named by s. The empty string maps
// to SettlementPrimary: older exports do not carry the field.
func ParseSettlementMethod(s string) (SettlementMethod, error) {
	switch SettlementMethod(s) {
	case "", SettlementPrimary:
		return SettlementPrimary, nil
	case SettlementAlternate:
		return SettlementAlternate, nil
	default:
		return "", ErrInvalidSettlement
	}
}

// Validate reports whether d is a real calendar date in YYYY-MM-DD form.
func (d Date) Validate() error {
	if len(d) != len(DateLayout) {
		return ErrInvalidDate
	}
	if _, err := time.Parse(DateLayout, string(d)); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// MonthKey returns the YYYY-MM bucket of d, or "" when d does not start with
// a four digit year, a hyphen and a two digit month.
func (d Date) MonthKey() string {
	s := string(d)
	if len(s) < 7 || !ValidMonthKey(s[:7]) {
		return ""
	}
	return s[:7]
}

// Time returns d as a UTC midnight time. Invalid dates yield the zero time.
func (d Date) Time() time.Time {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d Date) String() string { return string(d) }

// NewDate formats a calendar date.
func NewDate(year, month, day int) Date {
	return Date(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Format(DateLayout))
}

// ValidMonthKey reports whether key has the lexical shape YYYY-MM.
func ValidMonthKey(key string) bool {
	if len(key) != 7 || key[4] != '-' {
		return false
	}
	for i, r := range key {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CurrentMonthKey returns the YYYY-MM key for t.
func CurrentMonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// Method returns the settlement method, treating a missing settlement as primary.
func (tx Transaction) Method() SettlementMethod {
	if tx.Settlement == nil {
		return SettlementPrimary
	}
	return tx.Settlement.Method()
}

// AlternateLeg returns the alternate settlement when the transaction has one.
func (tx Transaction) AlternateLeg() (Alternate, bool) {
	alt, ok := tx.Settlement.(Alternate)
	return alt, ok
}

// Signed returns the contribution of the transaction to a fiat balance.
func (tx Transaction) Signed() float64 {
	if tx.Type == Expense {
		return -tx.Amount
	}
	return tx.Amount
}

// SignedUnits returns the contribution of the transaction to the alternate
// unit balance. Primary transactions contribute nothing.
func (tx Transaction) SignedUnits() int64 {
	alt, ok := tx.AlternateLeg()
	if !ok {
		return 0
	}
	if tx.Type == Expense {
		return -alt.Units
	}
	return alt.Units
}

// Validate checks every field-level constraint of a stored transaction.
func (tx Transaction) Validate() error {
	if strings.TrimSpace(tx.ID) == "" {
		return invalid("id", ErrMissingID)
	}
	if !utf8.ValidString(tx.ID) {
		return invalid("id", ErrInvalidText)
	}
	if err := tx.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if strings.TrimSpace(tx.Description) == "" {
		return invalid("description", ErrEmptyDescription)
	}
	if !utf8.ValidString(tx.Description) {
		return invalid("description", ErrInvalidText)
	}
	if utf8.RuneCountInString(tx.Description) > maxDescriptionLen {
		return invalid("description", ErrDescriptionTooLong)
	}
	if strings.TrimSpace(tx.Category) == "" {
		return invalid("category", ErrEmptyCategory)
	}
	if !utf8.ValidString(tx.Category) {
		return invalid("category", ErrInvalidText)
	}
	if !validAmount(tx.Amount) {
		return invalid("amount", ErrInvalidAmount)
	}
	if !tx.Type.Valid() {
		return invalid("type", ErrInvalidType)
	}
	switch s := tx.Settlement.(type) {
	case nil, Primary:
	case Alternate:
		if err := s.validateAgainst(tx.Amount); err != nil {
			return invalid("alternateAmount", err)
		}
	default:
		return invalid("settlementMethod", ErrInvalidSettlement)
	}
	return nil
}

// validateAgainst checks that amount ≈ Units/SatsPerBTC*RateAtEntry. The
// tolerance is one subunit plus one cent, since exported files may carry
// cent-rounded fiat values.
func (a Alternate) validateAgainst(amount float64) error {
	if a.Units <= 0 || !validAmount(a.RateAtEntry) || a.RateAtEntry <= 0 {
		return ErrInconsistentAlternate
	}
	fiat, err := ToFiat(a.Units, a.RateAtEntry)
	if err != nil {
		return ErrInconsistentAlternate
	}
	if math.Abs(fiat-amount) > AlternateTolerance(a.RateAtEntry) {
		return ErrInconsistentAlternate
	}
	return nil
}

// AlternateTolerance is the largest accepted gap between the stored fiat
// amount and the fiat value of the alternate leg.
func AlternateTolerance(rate float64) float64 {
	return rate/SatsPerBTC + 0.01
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
