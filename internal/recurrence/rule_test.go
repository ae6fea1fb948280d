package recurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"finsched/custom_errors"
)

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{
			name: "plain daily",
			rule: Rule{Kind: Daily, Interval: 1},
		},
		{
			name: "biweekly on friday",
			rule: Rule{Kind: Weekly, Interval: 2, DayOfWeek: intp(5)},
		},
		{
			name: "monthly first monday",
			rule: Rule{Kind: Monthly, Interval: 1, DayOfWeek: intp(1), WeekOfMonth: weekp(First)},
		},
		{
			name: "yearly with month and day",
			rule: Rule{Kind: Yearly, Interval: 1, MonthOfYear: intp(11), DayOfMonth: intp(25)},
		},
		{
			name:    "zero interval",
			rule:    Rule{Kind: Daily, Interval: 0},
			wantErr: true,
		},
		{
			name:    "negative interval",
			rule:    Rule{Kind: Monthly, Interval: -3},
			wantErr: true,
		},
		{
			name:    "day of week out of range",
			rule:    Rule{Kind: Weekly, Interval: 1, DayOfWeek: intp(7)},
			wantErr: true,
		},
		{
			name:    "day of month out of range",
			rule:    Rule{Kind: Monthly, Interval: 1, DayOfMonth: intp(32)},
			wantErr: true,
		},
		{
			name:    "month of year out of range",
			rule:    Rule{Kind: Yearly, Interval: 1, MonthOfYear: intp(12)},
			wantErr: true,
		},
		{
			name:    "month of year on monthly rule",
			rule:    Rule{Kind: Monthly, Interval: 1, MonthOfYear: intp(3)},
			wantErr: true,
		},
		{
			name:    "daily with weekday constraint",
			rule:    Rule{Kind: Daily, Interval: 1, DayOfWeek: intp(1)},
			wantErr: true,
		},
		{
			name:    "weekly with day of month",
			rule:    Rule{Kind: Weekly, Interval: 1, DayOfMonth: intp(10)},
			wantErr: true,
		},
		{
			name:    "conflicting monthly placement",
			rule:    Rule{Kind: Monthly, Interval: 1, DayOfMonth: intp(10), DayOfWeek: intp(1)},
			wantErr: true,
		},
		{
			name:    "week of month without weekday",
			rule:    Rule{Kind: Monthly, Interval: 1, WeekOfMonth: weekp(Second)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, custom_errors.ErrInvalidRecurrence)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{Daily, "daily"},
		{Weekly, "weekly"},
		{Monthly, "monthly"},
		{Yearly, "yearly"},
		{Kind(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.kind.String())
	}
}

func TestWeekOfMonth_String(t *testing.T) {
	tests := []struct {
		week     WeekOfMonth
		expected string
	}{
		{First, "first"},
		{Second, "second"},
		{Third, "third"},
		{Fourth, "fourth"},
		{Last, "last"},
		{WeekOfMonth(0), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.week.String())
	}
}
