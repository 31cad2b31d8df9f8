// Package goals computes savings-goal suggestions and manages goal records.
package goals

import (
	"fmt"
	"math"
	"time"

	"fintrack/internal/core"
)

const (
	MsgDeadlinePassed = "Deadline has passed. Please set a future date."
	MsgGoalReached    = "You've already reached this goal."
)

// Suggestion returns the monthly contribution needed to reach target by
// deadline, given what has been saved so far.
func Suggestion(target, saved core.Money, deadline core.Date, now time.Time) string {
	months := MonthsUntil(deadline, now)
	if months <= 0 {
		return MsgDeadlinePassed
	}
	remaining := target.Sub(saved)
	if remaining.Cents <= 0 {
		return MsgGoalReached
	}
	perMonth := int64(math.Ceil(remaining.Float() / months))
	return fmt.Sprintf("To reach this goal, save %s per month.", core.FormatWhole(perMonth))
}

// MonthsUntil is the fractional number of months from now to midnight of
// deadline in now's location: whole calendar months plus the elapsed share
// of the next one. It is negative when the deadline is behind now.
func MonthsUntil(deadline core.Date, now time.Time) float64 {
	y, m, d := deadline.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return monthDiff(end, now)
}

// monthDiff returns a-b in months. The whole part counts calendar months
// with the day of month clamped; the fraction is measured against the length
// of the month the remainder falls in.
func monthDiff(a, b time.Time) float64 {
	if a.Day() < b.Day() {
		return -monthDiff(b, a)
	}
	wheel := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	anchor := addMonths(a, wheel)
	var frac float64
	if b.Before(anchor) {
		prev := addMonths(a, wheel-1)
		frac = float64(b.Sub(anchor)) / float64(anchor.Sub(prev))
	} else {
		next := addMonths(a, wheel+1)
		frac = float64(b.Sub(anchor)) / float64(next.Sub(anchor))
	}
	return -(float64(wheel) + frac)
}

// addMonths shifts t by n calendar months, clamping the day to the length of
// the target month (Jan 31 + 1 month = Feb 28).
func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(t.Day(), last)-1)
}

// Progress is a goal's completion state at a point in time.
type Progress struct {
	Percent       float64 `json:"percent"`
	DaysRemaining int     `json:"daysRemaining"`
	Overdue       bool    `json:"overdue"`
	Suggestion    string  `json:"suggestion"`
}

// ProgressOf reports g's completion percentage (capped at 100), whole days
// until its deadline and the monthly suggestion.
func ProgressOf(g core.Goal, now time.Time) Progress {
	var pct float64
	if g.TargetAmount.Cents > 0 {
		pct = math.Min(float64(g.CurrentAmount.Cents)/float64(g.TargetAmount.Cents)*100, 100)
	}
	y, m, d := g.Deadline.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	days := int(end.Sub(now) / (24 * time.Hour))
	return Progress{
		Percent:       pct,
		DaysRemaining: days,
		Overdue:       days <= 0,
		Suggestion:    Suggestion(g.TargetAmount, g.CurrentAmount, g.Deadline, now),
	}
}
