package recurrence

import (
	"fmt"
	"time"

	"finsched/custom_errors"
)

const (
	// maxPlacementSteps bounds the month/year search so a rule that never
	// lands on a valid date fails instead of spinning.
	maxPlacementSteps = 1200

	// maxOccurrences bounds a single projection.
	maxOccurrences = 10000
)

// Next computes the first occurrence of rule at or after from. The begin date
// anchors the interval blocks and acts as a hard floor: Next never returns a
// date before it. All results are civil dates at UTC midnight.
func Next(rule Rule, begin, from time.Time) (time.Time, error) {
	if err := rule.Validate(); err != nil {
		return time.Time{}, err
	}

	begin = dateOnly(begin)
	from = dateOnly(from)
	if from.Before(begin) {
		from = begin
	}

	switch rule.Kind {
	case Daily:
		return nextByDays(begin, from, rule.Interval), nil
	case Weekly:
		return nextWeekly(rule, begin, from), nil
	case Monthly:
		return nextMonthly(rule, begin, from, false)
	case Yearly:
		return nextMonthly(rule, begin, from, true)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown kind %d", custom_errors.ErrInvalidRecurrence, int(rule.Kind))
	}
}

// Project enumerates every occurrence from begin up to the earlier of end (if
// set) and horizon, inclusive. Pure function of its inputs: calling it twice
// yields the identical sequence.
func Project(rule Rule, begin time.Time, end *time.Time, horizon time.Time) ([]time.Time, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	begin = dateOnly(begin)
	limit := dateOnly(horizon)
	if end != nil {
		if e := dateOnly(*end); e.Before(limit) {
			limit = e
		}
	}

	var out []time.Time
	cur, err := Next(rule, begin, begin)
	if err != nil {
		return nil, err
	}
	for !cur.After(limit) {
		out = append(out, cur)
		if len(out) > maxOccurrences {
			return nil, fmt.Errorf("%w: more than %d occurrences before horizon", custom_errors.ErrInvalidRecurrence, maxOccurrences)
		}
		next, err := Next(rule, begin, cur.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		if !next.After(cur) {
			return nil, fmt.Errorf("%w: rule does not advance past %s", custom_errors.ErrInvalidRecurrence, cur.Format("2006-01-02"))
		}
		cur = next
	}
	return out, nil
}

// Matches reports whether date is an occurrence of the rule. Used by job
// effect handlers to gate firings of cron expressions that are coarser than
// the rule itself.
func Matches(rule Rule, begin, date time.Time) bool {
	next, err := Next(rule, begin, date)
	return err == nil && next.Equal(dateOnly(date))
}

func nextByDays(begin, from time.Time, stepDays int) time.Time {
	diff := daysBetween(begin, from)
	steps := diff / stepDays
	if diff%stepDays != 0 {
		steps++
	}
	return begin.AddDate(0, 0, steps*stepDays)
}

func nextWeekly(rule Rule, begin, from time.Time) time.Time {
	blockDays := 7 * rule.Interval
	if rule.DayOfWeek == nil {
		return nextByDays(begin, from, blockDays)
	}

	// Candidate is the target weekday inside each interval block; the first
	// block whose candidate has not already passed wins.
	want := time.Weekday(*rule.DayOfWeek)
	for block := daysBetween(begin, from) / blockDays; ; block++ {
		blockStart := begin.AddDate(0, 0, block*blockDays)
		cand := snapToWeekday(blockStart, want)
		if !cand.Before(from) {
			return cand
		}
	}
}

func nextMonthly(rule Rule, begin, from time.Time, yearly bool) (time.Time, error) {
	anchorYear, anchorMonth := begin.Year(), begin.Month()
	if yearly && rule.MonthOfYear != nil {
		anchorMonth = time.Month(*rule.MonthOfYear + 1)
	}

	for n := 0; n < maxPlacementSteps; n++ {
		var year int
		var month time.Month
		if yearly {
			year, month = anchorYear+n*rule.Interval, anchorMonth
		} else {
			total := int(anchorMonth) - 1 + n*rule.Interval
			year, month = anchorYear+total/12, time.Month(total%12+1)
		}

		cand, err := placeInMonth(rule, begin, year, month)
		if err != nil {
			return time.Time{}, err
		}
		if !cand.Before(from) && !cand.Before(begin) {
			return cand, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: no occurrence within %d placement steps", custom_errors.ErrInvalidRecurrence, maxPlacementSteps)
}

// placeInMonth picks the rule's occurrence inside a specific month.
func placeInMonth(rule Rule, begin time.Time, year int, month time.Month) (time.Time, error) {
	switch {
	case rule.DayOfWeek != nil:
		want := time.Weekday(*rule.DayOfWeek)
		if rule.WeekOfMonth != nil && *rule.WeekOfMonth == Last {
			// Walk back from the month's final day to its last such weekday.
			last := time.Date(year, month, daysInMonth(year, month), 0, 0, 0, 0, time.UTC)
			back := (int(last.Weekday()) - int(want) + 7) % 7
			return last.AddDate(0, 0, -back), nil
		}
		week := First
		if rule.WeekOfMonth != nil {
			week = *rule.WeekOfMonth
		}
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		return snapToWeekday(first, want).AddDate(0, 0, 7*(int(week)-1)), nil

	case rule.DayOfMonth != nil:
		if *rule.DayOfMonth > daysInMonth(year, month) {
			return time.Time{}, fmt.Errorf("%w: day %d does not exist in %s %d",
				custom_errors.ErrInvalidRecurrence, *rule.DayOfMonth, month, year)
		}
		return time.Date(year, month, *rule.DayOfMonth, 0, 0, 0, 0, time.UTC), nil

	default:
		// Anchor day from the begin date; clamps to short months since the
		// user never asked for an explicit day.
		day := begin.Day()
		if last := daysInMonth(year, month); day > last {
			day = last
		}
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

func snapToWeekday(d time.Time, w time.Weekday) time.Time {
	diff := (int(w) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, diff)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1).Day()
}
