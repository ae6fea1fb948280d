package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finsched/internal/models"
	"finsched/internal/recurrence"
	"finsched/internal/store"
)

const obligationColumns = `id, kind, account_id, source_account_id, dest_account_id,
	       title, description, amount, plan_amount, interest_rate,
	       recurrence, interest_recurrence, begin_date, end_date,
	       job_id, interest_job_id, created_at, updated_at`

// PostgresObligationStore persists obligations and scheduled job rows in the
// finsched_schema schema.
type PostgresObligationStore struct {
	db *sql.DB
}

func NewPostgresObligationStore(db *sql.DB) *PostgresObligationStore {
	return &PostgresObligationStore{db: db}
}

func (s *PostgresObligationStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &obligationTx{tx: tx}, nil
}

func (s *PostgresObligationStore) GetObligation(ctx context.Context, id int64) (*models.Obligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM finsched_schema.obligations WHERE id = $1`
	return scanObligation(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresObligationStore) ListObligationsForAccount(ctx context.Context, accountID int64) ([]models.Obligation, error) {
	query := `
		SELECT ` + obligationColumns + `
		FROM finsched_schema.obligations
		WHERE account_id = $1 OR source_account_id = $1 OR dest_account_id = $1
		ORDER BY id ASC
	`
	return queryObligations(ctx, s.db, query, accountID)
}

func (s *PostgresObligationStore) ListAllObligations(ctx context.Context) ([]models.Obligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM finsched_schema.obligations ORDER BY id ASC`
	return queryObligations(ctx, s.db, query)
}

func (s *PostgresObligationStore) AccountExists(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM finsched_schema.accounts WHERE id = $1)`, accountID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	return exists, nil
}

func (s *PostgresObligationStore) Close() error {
	return s.db.Close()
}

// obligationTx implements store.Tx on a single *sql.Tx.
type obligationTx struct {
	tx *sql.Tx
}

func (t *obligationTx) GetObligation(ctx context.Context, id int64) (*models.Obligation, error) {
	// FOR UPDATE serializes concurrent mutations of the same obligation.
	query := `SELECT ` + obligationColumns + ` FROM finsched_schema.obligations WHERE id = $1 FOR UPDATE`
	return scanObligation(t.tx.QueryRowContext(ctx, query, id))
}

func (t *obligationTx) UpsertObligation(ctx context.Context, o *models.Obligation) (int64, error) {
	recJSON, err := marshalRule(o.Recurrence)
	if err != nil {
		return 0, err
	}
	intRecJSON, err := marshalRule(o.InterestRecurrence)
	if err != nil {
		return 0, err
	}

	planAmount := decimal.NullDecimal{}
	if o.PlanAmount != nil {
		planAmount = decimal.NewNullDecimal(*o.PlanAmount)
	}
	interestRate := decimal.NullDecimal{}
	if o.InterestRate != nil {
		interestRate = decimal.NewNullDecimal(*o.InterestRate)
	}

	if o.ID == 0 {
		query := `
			INSERT INTO finsched_schema.obligations
				(kind, account_id, source_account_id, dest_account_id,
				 title, description, amount, plan_amount, interest_rate,
				 recurrence, interest_recurrence, begin_date, end_date,
				 job_id, interest_job_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
			RETURNING id
		`
		var id int64
		err := t.tx.QueryRowContext(ctx, query,
			o.Kind, o.AccountID, nullableID(o.SourceAccountID), nullableID(o.DestAccountID),
			o.Title, o.Description, o.Amount, planAmount, interestRate,
			recJSON, intRecJSON, o.BeginDate, nullableTime(o.EndDate),
			nullableID(o.JobID), nullableID(o.InterestJobID),
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to insert obligation: %w", err)
		}
		o.ID = id
		return id, nil
	}

	query := `
		UPDATE finsched_schema.obligations SET
			kind = $1, account_id = $2, source_account_id = $3, dest_account_id = $4,
			title = $5, description = $6, amount = $7, plan_amount = $8, interest_rate = $9,
			recurrence = $10, interest_recurrence = $11, begin_date = $12, end_date = $13,
			job_id = $14, interest_job_id = $15, updated_at = now()
		WHERE id = $16
	`
	_, err = t.tx.ExecContext(ctx, query,
		o.Kind, o.AccountID, nullableID(o.SourceAccountID), nullableID(o.DestAccountID),
		o.Title, o.Description, o.Amount, planAmount, interestRate,
		recJSON, intRecJSON, o.BeginDate, nullableTime(o.EndDate),
		nullableID(o.JobID), nullableID(o.InterestJobID), o.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update obligation: %w", err)
	}
	return o.ID, nil
}

func (t *obligationTx) DeleteObligation(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM finsched_schema.obligations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete obligation: %w", err)
	}
	return nil
}

func (t *obligationTx) GetScheduledJob(ctx context.Context, id int64) (*models.ScheduledJob, error) {
	query := `
		SELECT id, name, expression, effect, created_at, updated_at
		FROM finsched_schema.scheduled_jobs
		WHERE id = $1
		FOR UPDATE
	`
	var job models.ScheduledJob
	err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.Name, &job.Expression, &job.Effect, &job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled job: %w", err)
	}
	return &job, nil
}

func (t *obligationTx) UpsertScheduledJob(ctx context.Context, job *models.ScheduledJob) (int64, error) {
	if job.ID == 0 {
		query := `
			INSERT INTO finsched_schema.scheduled_jobs (name, expression, effect, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
			ON CONFLICT (name) DO UPDATE SET
				expression = $2,
				effect = $3,
				updated_at = now()
			RETURNING id
		`
		var id int64
		err := t.tx.QueryRowContext(ctx, query, job.Name, job.Expression, job.Effect).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to insert scheduled job: %w", err)
		}
		job.ID = id
		return id, nil
	}

	query := `
		UPDATE finsched_schema.scheduled_jobs SET
			name = $1, expression = $2, effect = $3, updated_at = now()
		WHERE id = $4
	`
	_, err := t.tx.ExecContext(ctx, query, job.Name, job.Expression, job.Effect, job.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to update scheduled job: %w", err)
	}
	return job.ID, nil
}

func (t *obligationTx) DeleteScheduledJob(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM finsched_schema.scheduled_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled job: %w", err)
	}
	return nil
}

func (t *obligationTx) Commit() error {
	return t.tx.Commit()
}

func (t *obligationTx) Rollback() error {
	return t.tx.Rollback()
}

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryObligations(ctx context.Context, q querier, query string, args ...any) ([]models.Obligation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query obligations: %w", err)
	}
	defer rows.Close()

	var out []models.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func scanObligation(row rowScanner) (*models.Obligation, error) {
	var o models.Obligation
	var src, dst, jobID, interestJobID sql.NullInt64
	var planAmount, interestRate decimal.NullDecimal
	var recJSON, intRecJSON []byte
	var endDate sql.NullTime

	err := row.Scan(
		&o.ID, &o.Kind, &o.AccountID, &src, &dst,
		&o.Title, &o.Description, &o.Amount, &planAmount, &interestRate,
		&recJSON, &intRecJSON, &o.BeginDate, &endDate,
		&jobID, &interestJobID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan obligation: %w", err)
	}

	o.SourceAccountID = fromNullID(src)
	o.DestAccountID = fromNullID(dst)
	o.JobID = fromNullID(jobID)
	o.InterestJobID = fromNullID(interestJobID)
	if planAmount.Valid {
		o.PlanAmount = &planAmount.Decimal
	}
	if interestRate.Valid {
		o.InterestRate = &interestRate.Decimal
	}
	if endDate.Valid {
		t := endDate.Time
		o.EndDate = &t
	}

	if o.Recurrence, err = unmarshalRule(recJSON); err != nil {
		return nil, err
	}
	if o.InterestRecurrence, err = unmarshalRule(intRecJSON); err != nil {
		return nil, err
	}
	return &o, nil
}

func marshalRule(rule *recurrence.Rule) ([]byte, error) {
	if rule == nil {
		return nil, nil
	}
	payload, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recurrence: %w", err)
	}
	return payload, nil
}

func unmarshalRule(payload []byte) (*recurrence.Rule, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var rule recurrence.Rule
	if err := json.Unmarshal(payload, &rule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recurrence: %w", err)
	}
	return &rule, nil
}

func nullableID(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNullID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullableTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
