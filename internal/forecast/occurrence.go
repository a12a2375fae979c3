package forecast

import (
	"fmt"
	"time"

	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
)

// OccurrencesInMonth returns the ordered due dates of rule that fall in
// the month named by monthKey, honoring the rule's start and end bounds.
// An empty slice is the correct result for a month the rule does not
// touch; errors are reserved for malformed rule data or month keys.
//
// The walk advances a cursor from the rule's start date one cadence
// period at a time. The cursor is strictly increasing and the end-date
// bound is checked after every increment, so the walk always terminates.
// The rule's start date is authoritative for the first occurrence;
// weekday alignment applies from the second occurrence onward.
func OccurrencesInMonth(rule core.Rule, monthKey string) ([]time.Time, error) {
	if !rule.Cadence.Valid() {
		return nil, fmt.Errorf("rule %d: %w: %q", rule.ID, core.ErrInvalidCadence, rule.Cadence)
	}
	monthStart, monthEnd, err := MonthBounds(monthKey)
	if err != nil {
		return nil, err
	}

	start := NormalizeToAnchor(rule.StartDate)
	var end time.Time
	bounded := !rule.EndDate.IsZero()
	if bounded {
		end = NormalizeToAnchor(rule.EndDate)
		if end.Before(start) {
			return nil, fmt.Errorf("rule %d: %w", rule.ID, core.ErrInvalidDateRange)
		}
		if end.Before(monthStart) {
			return nil, nil
		}
	}
	if start.After(monthEnd) {
		return nil, nil
	}

	cursor := start
	for cursor.Before(monthStart) {
		next, err := advance(rule, cursor)
		if err != nil {
			return nil, err
		}
		cursor = next
		if bounded && cursor.After(end) {
			return nil, nil
		}
	}

	var due []time.Time
	for !cursor.After(monthEnd) {
		if bounded && cursor.After(end) {
			break
		}
		due = append(due, cursor)
		next, err := advance(rule, cursor)
		if err != nil {
			return nil, err
		}
		cursor = next
	}
	return due, nil
}

// advance moves the cursor one cadence period forward, applying the
// weekday anchor for weekly rules. Weekday alignment shifts at most six
// days inside the new week, so the cursor always moves forward.
//
// The preferred day of month is the rule's explicit anchor, falling back
// to the start date's day. Deriving it from the cursor would drift after
// a clamp: Jan 31 would become Feb 28 and stay on the 28th forever.
func advance(rule core.Rule, cursor time.Time) (time.Time, error) {
	preferred := rule.DayOfMonth
	if preferred == 0 {
		preferred = rule.StartDate.Day()
	}
	next := AddCadencePeriods(cursor, rule.Cadence, 1, preferred)
	if rule.Cadence == core.CadenceWeekly && rule.Weekday != nil {
		next = AlignWeekday(next, time.Weekday(*rule.Weekday))
	}
	if !next.After(cursor) {
		return time.Time{}, fmt.Errorf("rule %d: cursor did not advance from %s", rule.ID, cursor.Format("2006-01-02"))
	}
	return next, nil
}
