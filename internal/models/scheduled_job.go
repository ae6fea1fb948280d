package models

import "time"

// ScheduledJob is the persisted record of an external scheduler registration.
// It is created and destroyed in the same transaction as its obligation.
type ScheduledJob struct {
	ID int64

	// Name is the scheduler's unique handle for this registration.
	Name string

	// Expression is the derived 5-field cron expression.
	Expression string

	// Effect describes what fires: a handler name followed by its payload,
	// e.g. "obligation.post 42".
	Effect string

	CreatedAt time.Time
	UpdatedAt time.Time
}
