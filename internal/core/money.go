// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer minor units. Parsing and the JSON wire form go
// through shopspring/decimal; human-facing grouping goes through go-money.
package core

import (
	"bytes"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// CurrencySymbol is appended to every rendered amount.
const CurrencySymbol = "৳"

var (
	hundred = decimal.NewFromInt(100)

	wholeFormatter    = money.NewFormatter(0, ".", ",", CurrencySymbol, "1$")
	fractionFormatter = money.NewFormatter(2, ".", ",", CurrencySymbol, "1$")
)

// ParseDecimalToCents converts a decimal string to cents with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Negative
// values are rejected; zero is allowed because transactions may record it.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,345") -> 1235, nil
//	ParseDecimalToCents("-1")     -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return decimalToCents(d)
}

func decimalToCents(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	cents := d.Mul(hundred).Round(0)
	if !cents.IsInteger() || cents.GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// NewMoney builds an amount from a whole-unit float, rounding to cents.
func NewMoney(units float64) Money {
	return Money{Cents: decimal.NewFromFloat(units).Mul(hundred).Round(0).IntPart()}
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the amount in whole units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float returns the amount in whole units for ratio math. Use Cents for sums.
func (m Money) Float() float64 {
	return m.Decimal().InexactFloat64()
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// String renders the shortest decimal form: 500, 12.5, -200.
func (m Money) String() string {
	return m.Decimal().String()
}

// Grouped renders the amount with thousands separators and the currency
// symbol, dropping a zero fraction: 1,000৳, 1,234.5৳.
func (m Money) Grouped() string {
	if m.Cents%100 == 0 {
		return wholeFormatter.Format(m.Cents / 100)
	}
	s := fractionFormatter.Format(m.Cents)
	return strings.Replace(s, "0"+CurrencySymbol, CurrencySymbol, 1)
}

// FormatWhole renders a whole-unit count with thousands separators: 1,000৳.
func FormatWhole(units int64) string {
	return wholeFormatter.Format(units)
}

// MarshalJSON encodes the amount as a bare JSON number in whole units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*m = Money{}
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return ErrInvalidAmount
	}
	cents, err := decimalToCents(d)
	if err != nil {
		return err
	}
	m.Cents = cents
	return nil
}
