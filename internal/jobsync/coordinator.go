// Package jobsync keeps obligation rows and their external scheduler
// registrations in lockstep: created together, rescheduled together, removed
// together, inside one store transaction.
package jobsync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"finsched/custom_errors"
	"finsched/internal/constants"
	"finsched/internal/lock"
	"finsched/internal/models"
	"finsched/internal/recurrence"
	"finsched/internal/scheduler"
	"finsched/internal/state"
	"finsched/internal/store"
)

// Effect handler names. The payload is the obligation id.
const (
	EffectPost     = "obligation.post"
	EffectInterest = "loan.interest"
)

const compensationTimeout = 5 * time.Second

// Coordinator orchestrates obligation mutations against the store and the
// external scheduler. Either both the obligation row and its job exist after
// a call, or neither does.
type Coordinator struct {
	store store.Store
	sched scheduler.Scheduler
	locks lock.DistributedLockManager
	log   zerolog.Logger
}

func NewCoordinator(st store.Store, sched scheduler.Scheduler, locks lock.DistributedLockManager, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store: st,
		sched: sched,
		locks: locks,
		log:   log,
	}
}

// undo reverses one successful scheduler call during compensation.
type undo struct {
	describe string
	run      func(ctx context.Context) error
}

// CreateWithSchedule persists a new obligation together with its scheduler
// registration. Obligations without a recurrence (one-shot wishlist entries)
// are persisted with no job. Loans with an interest recurrence get a second,
// independently scheduled interest-accrual job.
func (c *Coordinator) CreateWithSchedule(ctx context.Context, draft models.Obligation) (*models.Obligation, error) {
	if state.StateOf(draft.JobID) != state.StateUnscheduled {
		return nil, fmt.Errorf("%w: draft already carries a job reference", custom_errors.ErrJobSync)
	}

	if !draft.Recurring() {
		return c.createOneShot(ctx, draft)
	}

	// Derive and validate expressions before touching anything.
	expr, err := recurrence.Expression(*draft.Recurrence, draft.BeginDate)
	if err != nil {
		return nil, err
	}
	var interestExpr string
	if draft.InterestRecurrence != nil {
		if interestExpr, err = recurrence.Expression(*draft.InterestRecurrence, draft.BeginDate); err != nil {
			return nil, err
		}
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", custom_errors.ErrJobSync, err)
	}

	var undos []undo
	fail := func(cause error) error {
		return c.abort(tx, undos, "create", cause)
	}

	id, err := tx.UpsertObligation(ctx, &draft)
	if err != nil {
		return nil, fail(err)
	}

	name := paymentJobName()
	effect := fmt.Sprintf("%s %d", EffectPost, id)
	if _, err := c.registerWithRetry(ctx, name, expr, effect); err != nil {
		return nil, fail(err)
	}
	undos = append(undos, unregisterUndo(c.sched, name))

	jobID, err := tx.UpsertScheduledJob(ctx, &models.ScheduledJob{Name: name, Expression: expr, Effect: effect})
	if err != nil {
		return nil, fail(err)
	}
	draft.JobID = &jobID

	if draft.InterestRecurrence != nil {
		interestName := interestJobName()
		interestEffect := fmt.Sprintf("%s %d", EffectInterest, id)
		if _, err := c.registerWithRetry(ctx, interestName, interestExpr, interestEffect); err != nil {
			return nil, fail(err)
		}
		undos = append(undos, unregisterUndo(c.sched, interestName))

		interestJobID, err := tx.UpsertScheduledJob(ctx, &models.ScheduledJob{
			Name:       interestName,
			Expression: interestExpr,
			Effect:     interestEffect,
		})
		if err != nil {
			return nil, fail(err)
		}
		draft.InterestJobID = &interestJobID
	}

	if _, err := tx.UpsertObligation(ctx, &draft); err != nil {
		return nil, fail(err)
	}

	// A caller that cancelled after the scheduler calls still gets the
	// compensating unregister before seeing its cancellation.
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}
	if err := tx.Commit(); err != nil {
		c.compensate(undos)
		return nil, fmt.Errorf("%w: commit: %w", custom_errors.ErrJobSync, err)
	}
	return &draft, nil
}

// UpdateWithSchedule replaces an obligation's content and reschedules its
// job(s) under the recomputed expression. The previous registration is
// restored best-effort when the transaction fails.
func (c *Coordinator) UpdateWithSchedule(ctx context.Context, id int64, changes models.Obligation) (*models.Obligation, error) {
	release, err := c.lockObligation(id)
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", custom_errors.ErrJobSync, err)
	}

	cur, err := tx.GetObligation(ctx, id)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: load obligation: %w", custom_errors.ErrJobSync, err)
	}
	if cur == nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: id %d", custom_errors.ErrNotFound, id)
	}
	// Rescheduling is a Scheduled -> Scheduled transition; an obligation that
	// was never scheduled has nothing to reschedule.
	if state.StateOf(cur.JobID) != state.StateScheduled {
		tx.Rollback()
		return nil, fmt.Errorf("%w: obligation %d has no job to reschedule", custom_errors.ErrJobNotFound, id)
	}

	merged := mergeChanges(cur, changes)
	if merged.Recurrence == nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: scheduled obligation requires a recurrence", custom_errors.ErrInvalidRecurrence)
	}
	expr, err := recurrence.Expression(*merged.Recurrence, merged.BeginDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var undos []undo
	fail := func(cause error) error {
		return c.abort(tx, undos, "update", cause)
	}

	oldJob, err := tx.GetScheduledJob(ctx, *cur.JobID)
	if err != nil {
		return nil, fail(err)
	}
	if oldJob == nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: job row %d", custom_errors.ErrJobNotFound, *cur.JobID)
	}

	newName := paymentJobName()
	effect := fmt.Sprintf("%s %d", EffectPost, id)
	if _, err := c.reregisterWithRetry(ctx, oldJob.Name, newName, expr, effect); err != nil {
		return nil, fail(err)
	}
	undos = append(undos, restoreUndo(c.sched, newName, *oldJob))

	oldJob.Name = newName
	oldJob.Expression = expr
	oldJob.Effect = effect
	if _, err := tx.UpsertScheduledJob(ctx, oldJob); err != nil {
		return nil, fail(err)
	}

	if cur.InterestJobID != nil {
		if merged.InterestRecurrence == nil {
			tx.Rollback()
			c.compensate(undos)
			return nil, fmt.Errorf("%w: loan requires an interest recurrence", custom_errors.ErrInvalidRecurrence)
		}
		interestExpr, err := recurrence.Expression(*merged.InterestRecurrence, merged.BeginDate)
		if err != nil {
			tx.Rollback()
			c.compensate(undos)
			return nil, err
		}

		oldInterest, err := tx.GetScheduledJob(ctx, *cur.InterestJobID)
		if err != nil {
			return nil, fail(err)
		}
		if oldInterest == nil {
			tx.Rollback()
			c.compensate(undos)
			return nil, fmt.Errorf("%w: interest job row %d", custom_errors.ErrJobNotFound, *cur.InterestJobID)
		}

		newInterestName := interestJobName()
		interestEffect := fmt.Sprintf("%s %d", EffectInterest, id)
		if _, err := c.reregisterWithRetry(ctx, oldInterest.Name, newInterestName, interestExpr, interestEffect); err != nil {
			return nil, fail(err)
		}
		undos = append(undos, restoreUndo(c.sched, newInterestName, *oldInterest))

		oldInterest.Name = newInterestName
		oldInterest.Expression = interestExpr
		oldInterest.Effect = interestEffect
		if _, err := tx.UpsertScheduledJob(ctx, oldInterest); err != nil {
			return nil, fail(err)
		}
	}

	if _, err := tx.UpsertObligation(ctx, merged); err != nil {
		return nil, fail(err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}
	if err := tx.Commit(); err != nil {
		c.compensate(undos)
		return nil, fmt.Errorf("%w: commit: %w", custom_errors.ErrJobSync, err)
	}
	return merged, nil
}

// DeleteWithSchedule removes the obligation row, its scheduler registration(s)
// and the job row(s). Both survive or both vanish.
func (c *Coordinator) DeleteWithSchedule(ctx context.Context, id int64) error {
	release, err := c.lockObligation(id)
	if err != nil {
		return err
	}
	defer release()

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", custom_errors.ErrJobSync, err)
	}

	cur, err := tx.GetObligation(ctx, id)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: load obligation: %w", custom_errors.ErrJobSync, err)
	}
	if cur == nil {
		tx.Rollback()
		return fmt.Errorf("%w: id %d", custom_errors.ErrNotFound, id)
	}
	if !state.IsValidTransition(state.StateOf(cur.JobID), state.StateRemoved) {
		tx.Rollback()
		return fmt.Errorf("%w: obligation %d has no job to unschedule", custom_errors.ErrJobNotFound, id)
	}

	var undos []undo
	fail := func(cause error) error {
		return c.abort(tx, undos, "delete", cause)
	}

	if err := tx.DeleteObligation(ctx, id); err != nil {
		return fail(err)
	}

	jobIDs := []int64{*cur.JobID}
	if cur.InterestJobID != nil {
		jobIDs = append(jobIDs, *cur.InterestJobID)
	}
	for _, jobID := range jobIDs {
		job, err := tx.GetScheduledJob(ctx, jobID)
		if err != nil {
			return fail(err)
		}
		if job == nil {
			tx.Rollback()
			c.compensate(undos)
			return fmt.Errorf("%w: job row %d", custom_errors.ErrJobNotFound, jobID)
		}
		if err := c.unregisterWithRetry(ctx, job.Name); err != nil {
			return fail(err)
		}
		undos = append(undos, registerUndo(c.sched, *job))

		if err := tx.DeleteScheduledJob(ctx, jobID); err != nil {
			return fail(err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := tx.Commit(); err != nil {
		c.compensate(undos)
		return fmt.Errorf("%w: commit: %w", custom_errors.ErrJobSync, err)
	}
	return nil
}

func (c *Coordinator) createOneShot(ctx context.Context, draft models.Obligation) (*models.Obligation, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", custom_errors.ErrJobSync, err)
	}
	if _, err := tx.UpsertObligation(ctx, &draft); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: insert one-shot: %w", custom_errors.ErrJobSync, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", custom_errors.ErrJobSync, err)
	}
	return &draft, nil
}

// abort rolls back the transaction, reverses any scheduler calls made so far
// and wraps the cause. Compensation failures are joined onto the result.
func (c *Coordinator) abort(tx store.Tx, undos []undo, op string, cause error) error {
	if err := tx.Rollback(); err != nil {
		c.log.Error().Err(err).Str("op", op).Msg("rollback failed")
	}
	result := fmt.Errorf("%w: %s: %w", custom_errors.ErrJobSync, op, cause)
	if compErr := c.compensate(undos); compErr != nil {
		result = errors.Join(result, compErr)
	}
	return result
}

// compensate runs undo actions in reverse order on a fresh context so that a
// cancelled caller still gets its scheduler state cleaned up. A failed undo is
// the one operator-visible inconsistency the engine cannot repair on its own.
func (c *Coordinator) compensate(undos []undo) error {
	if len(undos) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()

	var errs []error
	for i := len(undos) - 1; i >= 0; i-- {
		u := undos[i]
		if err := u.run(ctx); err != nil {
			c.log.Error().Err(err).Str("action", u.describe).
				Msg("scheduler compensation failed, registration state is inconsistent")
			errs = append(errs, fmt.Errorf("%w: %s: %v", custom_errors.ErrCompensationFailed, u.describe, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) lockObligation(id int64) (func(), error) {
	lockID := constants.ObligationLock(id)
	if err := c.locks.Acquire(lockID); err != nil {
		return nil, fmt.Errorf("%w: lock obligation %d: %w", custom_errors.ErrJobSync, id, err)
	}
	return func() {
		if err := c.locks.Release(lockID); err != nil {
			c.log.Error().Err(err).Int64("obligation", id).Msg("failed to release obligation lock")
		}
	}, nil
}

func (c *Coordinator) registerWithRetry(ctx context.Context, name, expr, effect string) (scheduler.Handle, error) {
	var h scheduler.Handle
	var err error
	for attempt := 0; attempt <= constants.MaxTransientRetries; attempt++ {
		h, err = c.sched.Register(ctx, name, expr, effect)
		if err == nil || !isTransient(err) {
			return h, err
		}
		c.log.Warn().Err(err).Str("job", name).Msg("transient scheduler failure, retrying register")
	}
	return h, err
}

func (c *Coordinator) reregisterWithRetry(ctx context.Context, oldName, newName, expr, effect string) (scheduler.Handle, error) {
	var h scheduler.Handle
	var err error
	for attempt := 0; attempt <= constants.MaxTransientRetries; attempt++ {
		h, err = c.sched.Reregister(ctx, oldName, newName, expr, effect)
		if err == nil || !isTransient(err) {
			return h, err
		}
		c.log.Warn().Err(err).Str("job", newName).Msg("transient scheduler failure, retrying reregister")
	}
	return h, err
}

func (c *Coordinator) unregisterWithRetry(ctx context.Context, name string) error {
	var err error
	for attempt := 0; attempt <= constants.MaxTransientRetries; attempt++ {
		err = c.sched.Unregister(ctx, name)
		if err == nil || !isTransient(err) {
			return err
		}
		c.log.Warn().Err(err).Str("job", name).Msg("transient scheduler failure, retrying unregister")
	}
	return err
}

// isTransient reports whether a scheduler or store failure looks worth one
// more attempt. Cancellation is deliberate and never retried.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func unregisterUndo(s scheduler.Scheduler, name string) undo {
	return undo{
		describe: "unregister " + name,
		run: func(ctx context.Context) error {
			return s.Unregister(ctx, name)
		},
	}
}

func registerUndo(s scheduler.Scheduler, job models.ScheduledJob) undo {
	return undo{
		describe: "re-register " + job.Name,
		run: func(ctx context.Context) error {
			_, err := s.Register(ctx, job.Name, job.Expression, job.Effect)
			return err
		},
	}
}

func restoreUndo(s scheduler.Scheduler, newName string, old models.ScheduledJob) undo {
	return undo{
		describe: "restore " + old.Name,
		run: func(ctx context.Context) error {
			_, err := s.Reregister(ctx, newName, old.Name, old.Expression, old.Effect)
			return err
		},
	}
}

// mergeChanges carries the new content onto the existing obligation while
// preserving identity and job references.
func mergeChanges(cur *models.Obligation, changes models.Obligation) *models.Obligation {
	merged := changes
	merged.ID = cur.ID
	merged.Kind = cur.Kind
	merged.JobID = cur.JobID
	merged.InterestJobID = cur.InterestJobID
	merged.CreatedAt = cur.CreatedAt
	if merged.AccountID == 0 {
		merged.AccountID = cur.AccountID
	}
	return &merged
}

func paymentJobName() string {
	return "obligation-" + uuid.NewString()
}

func interestJobName() string {
	return "loan-interest-" + uuid.NewString()
}
