// Package scheduler defines the external time-based job executor interface
// and an in-process implementation on robfig/cron.
package scheduler

import "context"

// Handle identifies a live registration inside the scheduler.
type Handle int64

// Scheduler is the engine's view of the job executor. Implementations must
// treat Unregister of an absent name as success so compensation paths stay
// simple.
type Scheduler interface {
	// Register schedules a new job under a unique name. The effect is a
	// handler name optionally followed by a payload, e.g. "obligation.post 42".
	Register(ctx context.Context, name, expression, effect string) (Handle, error)

	// Unregister removes a registration. Absent names are not an error.
	Unregister(ctx context.Context, name string) error

	// Reregister atomically replaces oldName's registration with a new one.
	Reregister(ctx context.Context, oldName, newName, expression, effect string) (Handle, error)
}
