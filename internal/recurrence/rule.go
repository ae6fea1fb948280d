// Package recurrence defines the recurrence model for financial obligations
// and the pure calendar math that turns a rule into concrete occurrence dates.
// Nothing in here touches storage or the scheduler.
package recurrence

import (
	"errors"
	"fmt"

	"finsched/custom_errors"
)

// Kind is the base frequency of a rule.
type Kind int

const (
	Daily Kind = iota
	Weekly
	Monthly
	Yearly
)

func (k Kind) String() string {
	switch k {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	default:
		return "unknown"
	}
}

// WeekOfMonth selects which week inside a month a monthly or yearly rule
// lands on. Last always means the final matching weekday of the month,
// whatever the month's length.
type WeekOfMonth int

const (
	First WeekOfMonth = iota + 1
	Second
	Third
	Fourth
	Last
)

func (w WeekOfMonth) String() string {
	switch w {
	case First:
		return "first"
	case Second:
		return "second"
	case Third:
		return "third"
	case Fourth:
		return "fourth"
	case Last:
		return "last"
	default:
		return "unknown"
	}
}

// Rule describes how an obligation repeats. Optional fields are pointers;
// nil means the constraint is absent.
//
// For Monthly and Yearly rules at most one of {DayOfWeek+WeekOfMonth,
// DayOfMonth} may drive placement. MonthOfYear is only valid on Yearly rules.
type Rule struct {
	Kind        Kind         `json:"kind"`
	Interval    int          `json:"interval"`               // every N kinds, must be >= 1
	DayOfWeek   *int         `json:"day_of_week,omitempty"`  // 0-6, Sunday = 0
	WeekOfMonth *WeekOfMonth `json:"week_of_month,omitempty"`
	MonthOfYear *int         `json:"month_of_year,omitempty"` // 0-11, January = 0
	DayOfMonth  *int         `json:"day_of_month,omitempty"`  // 1-31
}

// Validate checks the rule for internal consistency. All violations are
// collected and wrapped in ErrInvalidRecurrence.
func (r Rule) Validate() error {
	verr := &custom_errors.ValidationError{}

	if r.Kind < Daily || r.Kind > Yearly {
		verr.Addf("unknown kind %d", int(r.Kind))
	}
	if r.Interval < 1 {
		verr.Addf("interval must be positive, got %d", r.Interval)
	}
	if r.DayOfWeek != nil && (*r.DayOfWeek < 0 || *r.DayOfWeek > 6) {
		verr.Addf("day of week out of range: %d", *r.DayOfWeek)
	}
	if r.DayOfMonth != nil && (*r.DayOfMonth < 1 || *r.DayOfMonth > 31) {
		verr.Addf("day of month out of range: %d", *r.DayOfMonth)
	}
	if r.MonthOfYear != nil && (*r.MonthOfYear < 0 || *r.MonthOfYear > 11) {
		verr.Addf("month of year out of range: %d", *r.MonthOfYear)
	}
	if r.WeekOfMonth != nil && (*r.WeekOfMonth < First || *r.WeekOfMonth > Last) {
		verr.Addf("week of month out of range: %d", int(*r.WeekOfMonth))
	}

	switch r.Kind {
	case Daily:
		if r.DayOfWeek != nil || r.WeekOfMonth != nil || r.DayOfMonth != nil {
			verr.Add(errors.New("daily rules take no calendar constraints"))
		}
	case Weekly:
		if r.WeekOfMonth != nil || r.DayOfMonth != nil {
			verr.Add(errors.New("weekly rules only accept a day-of-week constraint"))
		}
	case Monthly, Yearly:
		if r.DayOfMonth != nil && (r.DayOfWeek != nil || r.WeekOfMonth != nil) {
			verr.Add(errors.New("day-of-month and weekday placement are mutually exclusive"))
		}
		if r.WeekOfMonth != nil && r.DayOfWeek == nil {
			verr.Add(errors.New("week-of-month requires a day-of-week"))
		}
	}
	if r.MonthOfYear != nil && r.Kind != Yearly {
		verr.Addf("month of year is only valid on yearly rules, kind is %s", r.Kind)
	}

	if verr.HasError() {
		return fmt.Errorf("%w: %v", custom_errors.ErrInvalidRecurrence, verr)
	}
	return nil
}
