package projector

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finsched/internal/models"
	"finsched/internal/recurrence"
)

// maxAmortizationPeriods caps schedule previews for rates that never amortize
// due to rounding.
const maxAmortizationPeriods = 600

var errLoanNeverAmortizes = errors.New("payment does not cover the interest, loan never amortizes")

// AmortizationEntry is one payment row of a loan payoff preview.
type AmortizationEntry struct {
	Period    int
	Date      time.Time
	Payment   decimal.Decimal
	Interest  decimal.Decimal
	Principal decimal.Decimal
	Remaining decimal.Decimal
}

// AmortizationSchedule previews how a loan pays down: per payment date, the
// interest accrued since the previous payment at the obligation's periodic
// rate, the principal portion and the remaining balance. The final payment is
// clipped so the balance lands exactly on zero.
func AmortizationSchedule(o *models.Obligation) ([]AmortizationEntry, error) {
	if o.Kind != models.KindLoan {
		return nil, fmt.Errorf("obligation %d is not a loan", o.ID)
	}
	if o.PlanAmount == nil || o.InterestRate == nil || o.Recurrence == nil {
		return nil, fmt.Errorf("loan %d is missing plan amount, interest rate or recurrence", o.ID)
	}

	remaining := o.Amount.Abs()
	payment := o.PlanAmount.Abs()
	rate := *o.InterestRate

	var schedule []AmortizationEntry
	date := o.BeginDate
	for period := 1; remaining.IsPositive(); period++ {
		if period > maxAmortizationPeriods {
			return nil, fmt.Errorf("loan %d: %w", o.ID, errLoanNeverAmortizes)
		}
		next, err := recurrence.Next(*o.Recurrence, o.BeginDate, date)
		if err != nil {
			return nil, fmt.Errorf("loan %d: %w", o.ID, err)
		}
		date = next.AddDate(0, 0, 1)

		interest := remaining.Mul(rate).Round(2)
		due := payment
		if remaining.Add(interest).LessThan(payment) {
			due = remaining.Add(interest)
		}
		principal := due.Sub(interest)
		if !principal.IsPositive() {
			return nil, fmt.Errorf("loan %d: %w", o.ID, errLoanNeverAmortizes)
		}
		remaining = remaining.Sub(principal)

		schedule = append(schedule, AmortizationEntry{
			Period:    period,
			Date:      next,
			Payment:   due,
			Interest:  interest,
			Principal: principal,
			Remaining: remaining,
		})
	}
	return schedule, nil
}
