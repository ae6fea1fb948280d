package recurrence

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"finsched/custom_errors"
)

// exprParser matches the standard 5-field format the external scheduler
// consumes.
var exprParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Expression derives the cron expression that triggers the rule. Jobs fire at
// midnight of each occurrence day.
//
// Plain cron fields cannot carry interval blocks larger than one or
// week-of-month placement. For those rules the expression fires on every
// matching weekday and the effect handler gates the exact date with Matches.
func Expression(rule Rule, begin time.Time) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}
	begin = dateOnly(begin)

	var expr string
	switch rule.Kind {
	case Daily:
		if rule.Interval == 1 {
			expr = "0 0 * * *"
		} else {
			expr = fmt.Sprintf("0 0 */%d * *", rule.Interval)
		}
	case Weekly:
		dow := int(begin.Weekday())
		if rule.DayOfWeek != nil {
			dow = *rule.DayOfWeek
		}
		expr = fmt.Sprintf("0 0 * * %d", dow)
	case Monthly:
		if rule.DayOfWeek != nil {
			expr = fmt.Sprintf("0 0 * * %d", *rule.DayOfWeek)
		} else {
			day := begin.Day()
			if rule.DayOfMonth != nil {
				day = *rule.DayOfMonth
			}
			if rule.Interval == 1 {
				expr = fmt.Sprintf("0 0 %d * *", day)
			} else {
				expr = fmt.Sprintf("0 0 %d */%d *", day, rule.Interval)
			}
		}
	case Yearly:
		month := int(begin.Month())
		if rule.MonthOfYear != nil {
			month = *rule.MonthOfYear + 1
		}
		if rule.DayOfWeek != nil {
			expr = fmt.Sprintf("0 0 * %d %d", month, *rule.DayOfWeek)
		} else {
			day := begin.Day()
			if rule.DayOfMonth != nil {
				day = *rule.DayOfMonth
			}
			expr = fmt.Sprintf("0 0 %d %d *", day, month)
		}
	}

	if _, err := exprParser.Parse(expr); err != nil {
		return "", fmt.Errorf("%w: derived expression %q: %v", custom_errors.ErrInvalidRecurrence, expr, err)
	}
	return expr, nil
}
