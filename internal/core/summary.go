package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Month is a calendar month, written YYYY-MM.
type Month struct {
	Year  int
	Month time.Month
}

// CategoryAmount represents a total amount for a category.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// Breakdown maps category to amount, keeping categories in the order they
// were first seen.
type Breakdown []CategoryAmount

// MonthlySummary aggregates one calendar month. Savings may be negative.
type MonthlySummary struct {
	Month             Month     `json:"month"`
	Income            Money     `json:"income"`
	Expenses          Money     `json:"expenses"`
	Savings           Money     `json:"savings"`
	CategoryBreakdown Breakdown `json:"categoryBreakdown"`
}

func NewMonth(year int, month time.Month) Month {
	return MonthOf(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
}

// MonthOf returns the calendar month of t in t's location.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses YYYY-MM.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthOf(t), nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Label renders the month the way answers show it, e.g. "August 2026".
func (m Month) Label() string {
	return m.First().Format("January 2006")
}

// First returns midnight UTC on the first day of the month.
func (m Month) First() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts by n calendar months; n may be negative.
func (m Month) AddMonths(n int) Month {
	return MonthOf(time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

func (m Month) Contains(d Date) bool {
	return d.Year() == m.Year && d.Time.Month() == m.Month
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Month) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMonth, string(data))
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Add accumulates amount under name, appending the category if new.
func (b Breakdown) Add(name string, amount Money) Breakdown {
	for i := range b {
		if b[i].Name == name {
			b[i].Amount = b[i].Amount.Add(amount)
			return b
		}
	}
	return append(b, CategoryAmount{Name: name, Amount: amount})
}

// Get returns the amount for an exact category name.
func (b Breakdown) Get(name string) (Money, bool) {
	for _, ca := range b {
		if ca.Name == name {
			return ca.Amount, true
		}
	}
	return Money{}, false
}

// Lookup matches the category name case-insensitively.
func (b Breakdown) Lookup(name string) (Money, bool) {
	for _, ca := range b {
		if strings.EqualFold(ca.Name, name) {
			return ca.Amount, true
		}
	}
	return Money{}, false
}

// Largest returns the category with the highest amount. Ties go to the
// category seen first.
func (b Breakdown) Largest() (CategoryAmount, bool) {
	if len(b) == 0 {
		return CategoryAmount{}, false
	}
	top := b[0]
	for _, ca := range b[1:] {
		if ca.Amount.Cents > top.Amount.Cents {
			top = ca
		}
	}
	return top, true
}

func (b Breakdown) Total() Money {
	var total Money
	for _, ca := range b {
		total = total.Add(ca.Amount)
	}
	return total
}

// MarshalJSON writes the breakdown as a JSON object in insertion order.
func (b Breakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ca := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ca.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(ca.Amount.String())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, preserving key order.
func (b *Breakdown) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("category breakdown: expected object")
	}
	out := Breakdown{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var amount Money
		if err := dec.Decode(&amount); err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		out = out.Add(name, amount)
	}
	*b = out
	return nil
}
