package jobsync

import (
	"context"

	"github.com/shopspring/decimal"

	"finsched/custom_errors"
	"finsched/internal/models"
)

// LoanCoordinator layers loan-specific validation over the coordinator. A
// loan carries two independently scheduled jobs: the plan-amount payment and
// the interest accrual. Both are created, rescheduled and removed together.
type LoanCoordinator struct {
	c *Coordinator
}

func NewLoanCoordinator(c *Coordinator) *LoanCoordinator {
	return &LoanCoordinator{c: c}
}

// CreateWithSchedule persists a loan and registers both of its jobs. If
// either registration fails, nothing is persisted.
func (lc *LoanCoordinator) CreateWithSchedule(ctx context.Context, draft models.Obligation) (*models.Obligation, error) {
	if err := validateLoan(&draft); err != nil {
		return nil, err
	}
	return lc.c.CreateWithSchedule(ctx, draft)
}

// UpdateWithSchedule replaces a loan's content and reschedules both jobs.
func (lc *LoanCoordinator) UpdateWithSchedule(ctx context.Context, id int64, changes models.Obligation) (*models.Obligation, error) {
	if err := validateLoan(&changes); err != nil {
		return nil, err
	}
	return lc.c.UpdateWithSchedule(ctx, id, changes)
}

// DeleteWithSchedule removes the loan and unregisters both jobs.
func (lc *LoanCoordinator) DeleteWithSchedule(ctx context.Context, id int64) error {
	return lc.c.DeleteWithSchedule(ctx, id)
}

func validateLoan(o *models.Obligation) error {
	errs := &custom_errors.ValidationError{}
	if o.Kind != models.KindLoan {
		errs.Addf("kind must be %q, got %q", models.KindLoan, o.Kind)
	}
	if o.Recurrence == nil {
		errs.Addf("loan requires a payment recurrence")
	}
	if o.PlanAmount == nil {
		errs.Addf("loan requires a plan amount")
	} else if !o.PlanAmount.IsPositive() {
		errs.Addf("plan amount must be positive, got %s", o.PlanAmount)
	}
	if o.InterestRate == nil {
		errs.Addf("loan requires an interest rate")
	} else if o.InterestRate.LessThan(decimal.Zero) {
		errs.Addf("interest rate must not be negative, got %s", o.InterestRate)
	}
	if o.InterestRecurrence == nil {
		errs.Addf("loan requires an interest recurrence")
	}
	if errs.HasError() {
		return errs
	}
	return nil
}
