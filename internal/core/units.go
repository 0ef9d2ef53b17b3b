package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var satsPerBTC = decimal.NewFromInt(SatsPerBTC)

// ToAlternateUnits converts a fiat amount into alternate subunits at rate,
// rounding half away from zero.
func ToAlternateUnits(fiat, rate float64) (int64, error) {
	if !usableRate(rate) {
		return 0, &ConversionError{Rate: rate}
	}
	if math.IsNaN(fiat) || math.IsInf(fiat, 0) {
		return 0, ErrInvalidAmount
	}
	units := decimal.NewFromFloat(fiat).
		Div(decimal.NewFromFloat(rate)).
		Mul(satsPerBTC).
		Round(0)
	return units.IntPart(), nil
}

// ToFiat converts alternate subunits into fiat at rate. The result is not rounded.
func ToFiat(units int64, rate float64) (float64, error) {
	if !usableRate(rate) {
		return 0, &ConversionError{Rate: rate}
	}
	fiat, _ := decimal.NewFromInt(units).
		Div(satsPerBTC).
		Mul(decimal.NewFromFloat(rate)).
		Float64()
	return fiat, nil
}

// ParseAmount parses a user-entered fiat amount. Both "12.50" and "12,50" are
// accepted; negative values are rejected.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	v, _ := d.Float64()
	return v, nil
}

func usableRate(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0)
}
