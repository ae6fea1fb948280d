package models

import (
	"time"

	"github.com/shopspring/decimal"

	"finsched/internal/recurrence"
)

// ObligationKind discriminates the concrete obligation forms.
type ObligationKind string

const (
	KindExpense  ObligationKind = "expense"
	KindLoan     ObligationKind = "loan"
	KindTransfer ObligationKind = "transfer"
	KindIncome   ObligationKind = "income"
	KindWishlist ObligationKind = "wishlist"
)

func (k ObligationKind) String() string {
	return string(k)
}

// Obligation is any recurring or one-shot financial record that produces
// ledger-affecting events. A nil Recurrence means a one-shot obligation that
// fires once on BeginDate (wishlist "available on" semantics).
type Obligation struct {
	ID          int64
	Kind        ObligationKind
	AccountID   int64
	Title       string
	Description string
	Amount      decimal.Decimal

	// Transfers carry both ends; AccountID holds the source for convenience.
	SourceAccountID *int64
	DestAccountID   *int64

	Recurrence *recurrence.Rule
	BeginDate  time.Time
	EndDate    *time.Time

	// JobID references the scheduled job row. Nil until the obligation has
	// been scheduled; a persisted recurring obligation always has one.
	JobID *int64

	// Loan-only fields.
	PlanAmount         *decimal.Decimal
	InterestRate       *decimal.Decimal
	InterestRecurrence *recurrence.Rule
	InterestJobID      *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recurring reports whether the obligation generates more than one occurrence.
func (o *Obligation) Recurring() bool {
	return o.Recurrence != nil
}

// RelevantToAccount reports whether the obligation affects the given account.
func (o *Obligation) RelevantToAccount(accountID int64) bool {
	if o.Kind == KindTransfer {
		return (o.SourceAccountID != nil && *o.SourceAccountID == accountID) ||
			(o.DestAccountID != nil && *o.DestAccountID == accountID)
	}
	return o.AccountID == accountID
}

// EffectiveAmount is the signed ledger effect of one occurrence as seen from
// accountID. Expenses, wishlist purchases and loan plan payments debit;
// income credits; transfers debit the source and credit the destination.
func (o *Obligation) EffectiveAmount(accountID int64) decimal.Decimal {
	switch o.Kind {
	case KindIncome:
		return o.Amount.Abs()
	case KindLoan:
		if o.PlanAmount != nil {
			return o.PlanAmount.Abs().Neg()
		}
		return o.Amount.Abs().Neg()
	case KindTransfer:
		if o.DestAccountID != nil && *o.DestAccountID == accountID {
			return o.Amount.Abs()
		}
		return o.Amount.Abs().Neg()
	default:
		return o.Amount.Abs().Neg()
	}
}
