// Package types - Calendar month arithmetic
package types

import "time"

// DaysInMonth returns the number of days in the calendar month containing t
func DaysInMonth(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return int(first.AddDate(0, 1, 0).Sub(first).Hours() / 24)
}

// HoursInMonth returns the number of hours in the calendar month containing t
func HoursInMonth(t time.Time) float64 {
	return float64(DaysInMonth(t)) * 24
}

// SecondsInMonth returns the number of seconds in the calendar month
// containing t
func SecondsInMonth(t time.Time) float64 {
	return HoursInMonth(t) * 3600
}
