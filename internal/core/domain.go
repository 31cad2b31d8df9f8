package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	Warning InsightKind = "warning"
	Tip     InsightKind = "tip"
	Summary InsightKind = "summary"
)

type (
	Kind        string
	InsightKind string

	// Date is a calendar date without time of day, encoded as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	// Money is an amount in minor units (1/100 of a taka).
	Money struct {
		Cents int64
	}

	Transaction struct {
		ID       string `json:"id"`
		Kind     Kind   `json:"type"`
		Category string `json:"category"`
		Amount   Money  `json:"amount"`
		Date     Date   `json:"date"`
		Note     string `json:"note,omitempty"`
	}

	Goal struct {
		ID            string    `json:"id"`
		Title         string    `json:"title"`
		TargetAmount  Money     `json:"targetAmount"`
		CurrentAmount Money     `json:"currentAmount"`
		Deadline      Date      `json:"deadline"`
		CreatedAt     time.Time `json:"createdAt"`
	}

	Insight struct {
		Kind     InsightKind `json:"type"`
		Message  string      `json:"message"`
		Category string      `json:"category,omitempty"`
	}

	// QueryIntent is what a free-text question asks about. Nil or empty
	// fields leave that dimension unconstrained.
	QueryIntent struct {
		Category string `json:"category,omitempty"`
		Month    *Month `json:"month,omitempty"`
		Kind     Kind   `json:"type,omitempty"`
	}
)

var (
	ErrInvalidDay      = errors.New("invalid day")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidKind     = errors.New("invalid transaction type")
	ErrEmptyID         = errors.New("empty id")
	ErrEmptyCategory   = errors.New("empty category")
	ErrEmptyTitle      = errors.New("empty title")
	ErrInvalidTarget   = errors.New("target amount must be positive")
	ErrNoteTooLong     = errors.New("note too long (max 500 characters)")
	ErrCategoryTooLong = errors.New("category too long (max 100 characters)")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp, keeping only the date part.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return Date{Time: t}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// String returns the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// Month returns the calendar month the date falls in.
func (d Date) Month() Month {
	return MonthOf(d.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(data))
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, t.Kind)
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Category) > 100 {
		return ErrCategoryTooLong
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(t.Note) > 500 {
		return ErrNoteTooLong
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(g.Title) == "" {
		return ErrEmptyTitle
	}
	if g.TargetAmount.Cents <= 0 {
		return ErrInvalidTarget
	}
	if err := g.CurrentAmount.Validate(); err != nil {
		return err
	}
	return g.Deadline.Validate()
}
