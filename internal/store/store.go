// Package store defines the persistence interface for obligations and their
// scheduled job rows.
package store

import (
	"context"

	"finsched/internal/models"
)

// Tx is one atomic unit of work. Obligation and job rows written through the
// same Tx become visible together or not at all.
type Tx interface {
	// GetObligation loads an obligation and locks its row for the duration
	// of the transaction. Returns nil when the row does not exist.
	GetObligation(ctx context.Context, id int64) (*models.Obligation, error)

	// UpsertObligation inserts the obligation or updates it when ID is set.
	// Returns the row's ID.
	UpsertObligation(ctx context.Context, o *models.Obligation) (int64, error)

	DeleteObligation(ctx context.Context, id int64) error

	// GetScheduledJob loads a job row. Returns nil when absent.
	GetScheduledJob(ctx context.Context, id int64) (*models.ScheduledJob, error)

	// UpsertScheduledJob inserts or updates a job row keyed by its unique
	// name. Returns the row's ID.
	UpsertScheduledJob(ctx context.Context, job *models.ScheduledJob) (int64, error)

	DeleteScheduledJob(ctx context.Context, id int64) error

	Commit() error
	Rollback() error
}

// Store is the engine's view of the relational database. Read paths run
// outside any obligation-level lock.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	GetObligation(ctx context.Context, id int64) (*models.Obligation, error)

	ListObligationsForAccount(ctx context.Context, accountID int64) ([]models.Obligation, error)

	ListAllObligations(ctx context.Context) ([]models.Obligation, error)

	AccountExists(ctx context.Context, accountID int64) (bool, error)

	Close() error
}
