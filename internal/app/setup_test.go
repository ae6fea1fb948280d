package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsched/internal/broker"
	"finsched/internal/jobsync"
	"finsched/internal/models"
	"finsched/internal/models/config"
	"finsched/internal/recurrence"
	"finsched/internal/store"
)

type storeMock struct {
	getObligationFn func(id int64) (*models.Obligation, error)
}

func (m *storeMock) Begin(context.Context) (store.Tx, error) { panic("not used") }

func (m *storeMock) GetObligation(_ context.Context, id int64) (*models.Obligation, error) {
	return m.getObligationFn(id)
}

func (m *storeMock) ListObligationsForAccount(context.Context, int64) ([]models.Obligation, error) {
	panic("not used")
}

func (m *storeMock) ListAllObligations(context.Context) ([]models.Obligation, error) {
	panic("not used")
}

func (m *storeMock) AccountExists(context.Context, int64) (bool, error) { return true, nil }
func (m *storeMock) Close() error                                       { return nil }

func testEngine(t *testing.T, st store.Store) *Engine {
	t.Helper()
	cfg, err := config.New("test-instance")
	require.NoError(t, err)
	return &Engine{
		Store:  st,
		Broker: broker.NewInMemory(),
		cfg:    cfg,
		log:    zerolog.Nop(),
	}
}

func dailyRule() *recurrence.Rule {
	return &recurrence.Rule{Kind: recurrence.Daily, Interval: 1}
}

func TestPublishEffectEmitsLedgerEvent(t *testing.T) {
	begin := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	st := &storeMock{
		getObligationFn: func(id int64) (*models.Obligation, error) {
			return &models.Obligation{
				ID:         id,
				Kind:       models.KindExpense,
				AccountID:  7,
				Title:      "rent",
				Amount:     decimal.RequireFromString("1200"),
				Recurrence: dailyRule(),
				BeginDate:  begin,
			}, nil
		},
	}
	eng := testEngine(t, st)

	fn := eng.publishEffect(jobsync.EffectPost)
	require.NoError(t, fn("obligation-abc", "42"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	messages, err := eng.Broker.Consume(ctx, "ledger-events")
	require.NoError(t, err)

	select {
	case body := <-messages:
		var event models.LedgerEvent
		require.NoError(t, json.Unmarshal(body, &event))
		assert.Equal(t, int64(42), event.ObligationID)
		assert.Equal(t, jobsync.EffectPost, event.Effect)
		assert.True(t, event.Amount.Equal(decimal.RequireFromString("-1200")))
	case <-ctx.Done():
		t.Fatal("no ledger event published")
	}
}

func TestPublishEffectSkipsDeletedObligation(t *testing.T) {
	st := &storeMock{
		getObligationFn: func(int64) (*models.Obligation, error) { return nil, nil },
	}
	eng := testEngine(t, st)

	fn := eng.publishEffect(jobsync.EffectPost)
	assert.NoError(t, fn("obligation-abc", "42"))
}

func TestPublishEffectSkipsNonMatchingDate(t *testing.T) {
	// A rule that can never match today: yearly on Feb 29 pinned far ahead
	// is awkward to fake, so use a begin date in the future instead.
	begin := time.Now().UTC().AddDate(1, 0, 0)
	st := &storeMock{
		getObligationFn: func(id int64) (*models.Obligation, error) {
			return &models.Obligation{
				ID:         id,
				Kind:       models.KindExpense,
				AccountID:  7,
				Amount:     decimal.RequireFromString("10"),
				Recurrence: dailyRule(),
				BeginDate:  begin,
			}, nil
		},
	}
	eng := testEngine(t, st)

	fn := eng.publishEffect(jobsync.EffectPost)
	require.NoError(t, fn("obligation-abc", "42"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	messages, err := eng.Broker.Consume(ctx, "ledger-events")
	require.NoError(t, err)

	select {
	case body := <-messages:
		t.Fatalf("unexpected event published: %s", body)
	case <-ctx.Done():
	}
}

func TestPublishEffectInterestUsesInterestRecurrence(t *testing.T) {
	begin := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	// Payment weekly on a weekday that is never today, interest accruing
	// daily. The interest firing must not be gated on the payment schedule.
	offWeekday := int((time.Now().UTC().Weekday() + 1) % 7)
	st := &storeMock{
		getObligationFn: func(id int64) (*models.Obligation, error) {
			return &models.Obligation{
				ID:           id,
				Kind:         models.KindLoan,
				AccountID:    7,
				Title:        "car loan",
				Amount:       decimal.RequireFromString("1000"),
				PlanAmount:   decPtr("100"),
				InterestRate: decPtr("0.02"),
				Recurrence: &recurrence.Rule{
					Kind:      recurrence.Weekly,
					Interval:  1,
					DayOfWeek: &offWeekday,
				},
				InterestRecurrence: dailyRule(),
				BeginDate:          begin,
			}, nil
		},
	}
	eng := testEngine(t, st)

	fn := eng.publishEffect(jobsync.EffectInterest)
	require.NoError(t, fn("loan-interest-abc", "42"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	messages, err := eng.Broker.Consume(ctx, "ledger-events")
	require.NoError(t, err)

	select {
	case body := <-messages:
		var event models.LedgerEvent
		require.NoError(t, json.Unmarshal(body, &event))
		assert.Equal(t, jobsync.EffectInterest, event.Effect)
		// Accrual is rate x outstanding amount, not the plan payment.
		assert.True(t, event.Amount.Equal(decimal.RequireFromString("20")),
			"got %s want 20", event.Amount)
	case <-ctx.Done():
		t.Fatal("no interest event published")
	}
}

func TestPublishEffectInterestSkipsOffDates(t *testing.T) {
	begin := time.Now().UTC().AddDate(1, 0, 0)
	st := &storeMock{
		getObligationFn: func(id int64) (*models.Obligation, error) {
			return &models.Obligation{
				ID:                 id,
				Kind:               models.KindLoan,
				AccountID:          7,
				Amount:             decimal.RequireFromString("1000"),
				InterestRate:       decPtr("0.02"),
				Recurrence:         dailyRule(),
				InterestRecurrence: dailyRule(),
				BeginDate:          begin,
			}, nil
		},
	}
	eng := testEngine(t, st)

	fn := eng.publishEffect(jobsync.EffectInterest)
	require.NoError(t, fn("loan-interest-abc", "42"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	messages, err := eng.Broker.Consume(ctx, "ledger-events")
	require.NoError(t, err)

	select {
	case body := <-messages:
		t.Fatalf("unexpected event published: %s", body)
	case <-ctx.Done():
	}
}

func TestPublishEffectInterestMissingRate(t *testing.T) {
	st := &storeMock{
		getObligationFn: func(id int64) (*models.Obligation, error) {
			return &models.Obligation{
				ID:                 id,
				Kind:               models.KindLoan,
				AccountID:          7,
				Amount:             decimal.RequireFromString("1000"),
				InterestRecurrence: dailyRule(),
				BeginDate:          time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	eng := testEngine(t, st)

	fn := eng.publishEffect(jobsync.EffectInterest)
	assert.Error(t, fn("loan-interest-abc", "42"))
}

func decPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestPublishEffectRejectsBadPayload(t *testing.T) {
	eng := testEngine(t, &storeMock{})

	fn := eng.publishEffect(jobsync.EffectPost)
	assert.Error(t, fn("obligation-abc"))
	assert.Error(t, fn("obligation-abc", "not-a-number"))
}
