package custom_errors

import "errors"

// Sentinel errors surfaced by the scheduling and projection engine.
// Callers match with errors.Is.
var (
	// ErrInvalidRecurrence means a recurrence rule is internally inconsistent
	// or produces no valid date (zero interval, impossible day-of-month).
	ErrInvalidRecurrence = errors.New("invalid recurrence rule")

	// ErrInvalidDateRange means a projection was requested with from > to.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrNotFound means the requested obligation does not exist.
	ErrNotFound = errors.New("obligation not found")

	// ErrJobNotFound means an obligation claims to recur but carries no
	// scheduled job reference.
	ErrJobNotFound = errors.New("scheduled job not found")

	// ErrAccountNotFound means a forecast was requested for an unknown account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrJobSync wraps a scheduler or store failure during an obligation
	// mutation. The store transaction has been rolled back when it surfaces.
	ErrJobSync = errors.New("job sync failed")

	// ErrCompensationFailed means the rollback itself partially failed: the
	// store rolled back but the compensating scheduler call did not succeed.
	// Always logged as an operator-visible inconsistency.
	ErrCompensationFailed = errors.New("scheduler compensation failed")
)
