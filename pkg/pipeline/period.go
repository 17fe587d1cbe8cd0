package pipeline

import (
	"fmt"
	"time"
)

// DayBounds returns the UTC day containing t as [start, end) and its period
// name, e.g. "2024-05-01".
func DayBounds(t time.Time) (time.Time, time.Time, string) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1), start.Format(time.DateOnly)
}

// WeekBounds returns the ISO week containing t, Monday to Monday in UTC,
// and its period name, e.g. "2024-W18".
func WeekBounds(t time.Time) (time.Time, time.Time, string) {
	day, _, _ := DayBounds(t)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	year, week := start.ISOWeek()
	return start, start.AddDate(0, 0, 7), fmt.Sprintf("%d-W%02d", year, week)
}
