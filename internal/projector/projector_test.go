package projector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsched/custom_errors"
	"finsched/internal/models"
	"finsched/internal/recurrence"
	"finsched/internal/store"
)

type storeMock struct {
	accountExistsFn  func(accountID int64) (bool, error)
	listForAccountFn func(accountID int64) ([]models.Obligation, error)
}

func (m *storeMock) Begin(context.Context) (store.Tx, error) { panic("not used") }

func (m *storeMock) GetObligation(context.Context, int64) (*models.Obligation, error) {
	panic("not used")
}

func (m *storeMock) ListObligationsForAccount(_ context.Context, accountID int64) ([]models.Obligation, error) {
	if m.listForAccountFn != nil {
		return m.listForAccountFn(accountID)
	}
	return nil, nil
}

func (m *storeMock) ListAllObligations(context.Context) ([]models.Obligation, error) {
	panic("not used")
}

func (m *storeMock) AccountExists(_ context.Context, accountID int64) (bool, error) {
	if m.accountExistsFn != nil {
		return m.accountExistsFn(accountID)
	}
	return true, nil
}

func (m *storeMock) Close() error { return nil }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intp(v int) *int { return &v }

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func monthly(dayOfMonth int) *recurrence.Rule {
	return &recurrence.Rule{Kind: recurrence.Monthly, Interval: 1, DayOfMonth: intp(dayOfMonth)}
}

func TestProjectMonthlyExpenseRunningBalance(t *testing.T) {
	obligations := []models.Obligation{
		{
			ID:         1,
			Kind:       models.KindExpense,
			AccountID:  7,
			Title:      "gym",
			Amount:     dec("50"),
			Recurrence: monthly(1),
			BeginDate:  day(2024, time.January, 1),
		},
	}

	out, err := Project(obligations, 7, dec("1000"), day(2024, time.January, 1), day(2024, time.April, 30))
	require.NoError(t, err)
	require.Len(t, out, 4)

	wantBalances := []string{"950", "900", "850", "800"}
	for i, want := range wantBalances {
		assert.True(t, out[i].Balance.Equal(dec(want)), "entry %d: got %s want %s", i, out[i].Balance, want)
		assert.True(t, out[i].Amount.Equal(dec("-50")))
	}
	assert.Equal(t, day(2024, time.April, 1), out[3].Date)
}

func TestProjectOrdersSameDayByObligationID(t *testing.T) {
	obligations := []models.Obligation{
		{
			ID: 9, Kind: models.KindExpense, AccountID: 7, Title: "second",
			Amount: dec("10"), Recurrence: monthly(1), BeginDate: day(2024, time.January, 1),
		},
		{
			ID: 2, Kind: models.KindIncome, AccountID: 7, Title: "first",
			Amount: dec("100"), Recurrence: monthly(1), BeginDate: day(2024, time.January, 1),
		},
	}

	out, err := Project(obligations, 7, dec("0"), day(2024, time.January, 1), day(2024, time.January, 31))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].ObligationID)
	assert.Equal(t, int64(9), out[1].ObligationID)
	assert.True(t, out[1].Balance.Equal(dec("90")))
}

func TestProjectTransferSignPerAccount(t *testing.T) {
	src, dst := int64(1), int64(2)
	obligations := []models.Obligation{
		{
			ID: 5, Kind: models.KindTransfer, Title: "savings sweep",
			Amount: dec("200"), Recurrence: monthly(1), BeginDate: day(2024, time.January, 1),
			SourceAccountID: &src, DestAccountID: &dst,
		},
	}
	from, to := day(2024, time.January, 1), day(2024, time.January, 31)

	outSrc, err := Project(obligations, src, dec("1000"), from, to)
	require.NoError(t, err)
	require.Len(t, outSrc, 1)
	assert.True(t, outSrc[0].Balance.Equal(dec("800")))

	outDst, err := Project(obligations, dst, dec("0"), from, to)
	require.NoError(t, err)
	require.Len(t, outDst, 1)
	assert.True(t, outDst[0].Balance.Equal(dec("200")))
}

func TestProjectHonorsEndDate(t *testing.T) {
	end := day(2024, time.February, 15)
	obligations := []models.Obligation{
		{
			ID: 1, Kind: models.KindExpense, AccountID: 7, Title: "short sub",
			Amount: dec("9.99"), Recurrence: monthly(1), BeginDate: day(2024, time.January, 1),
			EndDate: &end,
		},
	}

	out, err := Project(obligations, 7, dec("100"), day(2024, time.January, 1), day(2024, time.June, 30))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, day(2024, time.February, 1), out[1].Date)
}

func TestProjectOneShotWishlist(t *testing.T) {
	obligations := []models.Obligation{
		{
			ID: 3, Kind: models.KindWishlist, AccountID: 7, Title: "bike",
			Amount: dec("600"), BeginDate: day(2024, time.March, 10),
		},
	}

	out, err := Project(obligations, 7, dec("1000"), day(2024, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, day(2024, time.March, 10), out[0].Date)
	assert.True(t, out[0].Balance.Equal(dec("400")))

	// Outside the window it contributes nothing.
	out, err = Project(obligations, 7, dec("1000"), day(2024, time.April, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestProjectInvalidDateRange(t *testing.T) {
	_, err := Project(nil, 7, dec("0"), day(2024, time.May, 1), day(2024, time.April, 1))
	require.ErrorIs(t, err, custom_errors.ErrInvalidDateRange)
}

func TestForecastUnknownAccount(t *testing.T) {
	st := &storeMock{
		accountExistsFn: func(int64) (bool, error) { return false, nil },
	}
	p := New(st, zerolog.Nop())

	_, err := p.Forecast(context.Background(), 42, dec("0"), day(2024, time.January, 1), day(2024, time.January, 31))
	require.ErrorIs(t, err, custom_errors.ErrAccountNotFound)
}

func TestForecastListsObligationsFromStore(t *testing.T) {
	st := &storeMock{
		listForAccountFn: func(accountID int64) ([]models.Obligation, error) {
			return []models.Obligation{
				{
					ID: 1, Kind: models.KindExpense, AccountID: accountID, Title: "rent",
					Amount: dec("1200"), Recurrence: monthly(1), BeginDate: day(2024, time.January, 1),
				},
			}, nil
		},
	}
	p := New(st, zerolog.Nop())

	out, err := p.Forecast(context.Background(), 7, dec("5000"), day(2024, time.January, 1), day(2024, time.February, 28))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[1].Balance.Equal(dec("2600")))
}

func TestForecastHorizonUsesConfiguredWindow(t *testing.T) {
	st := &storeMock{
		listForAccountFn: func(accountID int64) ([]models.Obligation, error) {
			return []models.Obligation{
				{
					ID: 1, Kind: models.KindExpense, AccountID: accountID, Title: "sub",
					Amount: dec("10"), Recurrence: monthly(1), BeginDate: day(2024, time.January, 1),
				},
			}, nil
		},
	}
	p := New(st, zerolog.Nop(), WithHorizonDays(60))

	out, err := p.ForecastHorizon(context.Background(), 7, dec("100"), day(2024, time.January, 1))
	require.NoError(t, err)
	// Jan 1, Feb 1 and Mar 1 fall inside the 60-day horizon.
	require.Len(t, out, 3)
	assert.Equal(t, day(2024, time.March, 1), out[2].Date)
}

func TestForecastAllProjectsEveryAccount(t *testing.T) {
	st := &storeMock{
		listForAccountFn: func(accountID int64) ([]models.Obligation, error) {
			return []models.Obligation{
				{
					ID: accountID, Kind: models.KindExpense, AccountID: accountID, Title: "sub",
					Amount: dec("10"), Recurrence: monthly(1), BeginDate: day(2024, time.January, 1),
				},
			}, nil
		},
	}
	p := New(st, zerolog.Nop(), WithWorkers(2))

	openings := map[int64]decimal.Decimal{1: dec("100"), 2: dec("200"), 3: dec("300")}
	results, err := p.ForecastAll(context.Background(), openings, day(2024, time.January, 1), day(2024, time.January, 31))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[3][0].Balance.Equal(dec("290")))
}

func TestForecastAllPropagatesFirstFailure(t *testing.T) {
	boom := errors.New("connection refused")
	st := &storeMock{
		listForAccountFn: func(accountID int64) ([]models.Obligation, error) {
			if accountID == 2 {
				return nil, boom
			}
			return nil, nil
		},
	}
	p := New(st, zerolog.Nop(), WithWorkers(1))

	openings := map[int64]decimal.Decimal{1: dec("0"), 2: dec("0"), 3: dec("0")}
	_, err := p.ForecastAll(context.Background(), openings, day(2024, time.January, 1), day(2024, time.January, 31))
	require.ErrorIs(t, err, boom)
}
