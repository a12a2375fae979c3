// Package forecast implements the recurring-charge forecasting engine:
// calendar cursor arithmetic, per-month occurrence generation, instance
// materialization with deduplication against persisted transactions,
// deferred-payment reconciliation and monthly cash-flow aggregation.
//
// The engine is pure computation over in-memory rule and transaction
// collections. It performs no I/O and is deterministic given its inputs;
// fetching and persisting belong to the services layer.
package forecast

import (
	"fmt"
	"time"

	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
)

// anchorHour pins all normalized dates to midday UTC so day-level
// comparisons are not perturbed by timezone or DST shifts.
const anchorHour = 12

const monthKeyLayout = "2006-01"

// NormalizeToAnchor returns t fixed at midday UTC on the same calendar
// day. Normalizing an already-normalized date returns the same value.
func NormalizeToAnchor(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), anchorHour, 0, 0, 0, time.UTC)
}

// MonthKey returns the YYYY-MM key for the month containing t.
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthKeyLayout)
}

// ParseMonthKey parses a YYYY-MM key and returns the normalized first
// day of that month.
func ParseMonthKey(key string) (time.Time, error) {
	t, err := time.Parse(monthKeyLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month key %q: %w", key, err)
	}
	return NormalizeToAnchor(t), nil
}

// MonthBounds returns the normalized first and last days of the month
// named by key.
func MonthBounds(key string) (start, end time.Time, err error) {
	start, err = ParseMonthKey(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end = time.Date(start.Year(), start.Month()+1, 0, anchorHour, 0, 0, 0, time.UTC)
	return start, end, nil
}

// AddMonthKey returns the month key months after key (negative values
// move backward).
func AddMonthKey(key string, months int) (string, error) {
	t, err := ParseMonthKey(key)
	if err != nil {
		return "", err
	}
	return MonthKey(t.AddDate(0, months, 0)), nil
}

// AddCadencePeriods advances date by whole cadence periods. Month-based
// cadences add calendar months and clamp the preferred day of month to
// the last valid day of the resulting month (Jan 31 + 1 month lands on
// Feb 28 or 29). A preferredDay of 0 keeps the date's own day. Weekly
// cadence advances by exactly 7 days; weekday alignment is a separate
// concern, see AlignWeekday. An unknown cadence returns the input
// unchanged, callers treat that as a data error.
func AddCadencePeriods(date time.Time, cadence core.Cadence, periods, preferredDay int) time.Time {
	switch cadence {
	case core.CadenceWeekly:
		return date.AddDate(0, 0, 7*periods)
	case core.CadenceMonthly:
		return addMonthsClamped(date, periods, preferredDay)
	case core.CadenceQuarterly:
		return addMonthsClamped(date, 3*periods, preferredDay)
	case core.CadenceYearly:
		return addMonthsClamped(date, 12*periods, preferredDay)
	default:
		return date
	}
}

// AlignWeekday shifts date within its Sunday-based week window to land
// on weekday. The shift never crosses a week boundary.
func AlignWeekday(date time.Time, weekday time.Weekday) time.Time {
	delta := int(weekday) - int(date.Weekday())
	return date.AddDate(0, 0, delta)
}

func addMonthsClamped(date time.Time, months, preferredDay int) time.Time {
	day := preferredDay
	if day <= 0 {
		day = date.Day()
	}
	// Anchor on the first of the month before adding, so that overflow
	// from short months cannot spill into the next one.
	first := time.Date(date.Year(), date.Month(), 1, date.Hour(), date.Minute(), 0, 0, time.UTC)
	first = first.AddDate(0, months, 0)
	if last := lastDayOfMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, date.Hour(), date.Minute(), 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, anchorHour, 0, 0, 0, time.UTC).Day()
}
