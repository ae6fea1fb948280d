// Package projector turns recurring obligations into a forward-looking
// balance forecast. Nothing here writes to the database.
package projector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"finsched/custom_errors"
	"finsched/internal/models"
	"finsched/internal/recurrence"
	"finsched/internal/store"
)

const (
	defaultWorkers     = 4
	defaultHorizonDays = 365
)

// Projector computes projected transactions and running balances for a date
// window. Reads go through the store; the projection itself is pure.
type Projector struct {
	store       store.Store
	log         zerolog.Logger
	workers     int64
	horizonDays int
}

type Option func(*Projector)

// WithWorkers bounds how many accounts ForecastAll projects concurrently.
func WithWorkers(n int64) Option {
	return func(p *Projector) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithHorizonDays sets the window length used when the caller gives no end
// date.
func WithHorizonDays(days int) Option {
	return func(p *Projector) {
		if days > 0 {
			p.horizonDays = days
		}
	}
}

func New(st store.Store, log zerolog.Logger, opts ...Option) *Projector {
	p := &Projector{
		store:       st,
		log:         log,
		workers:     defaultWorkers,
		horizonDays: defaultHorizonDays,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ForecastHorizon projects from the given date over the configured default
// horizon.
func (p *Projector) ForecastHorizon(ctx context.Context, accountID int64, opening decimal.Decimal, from time.Time) ([]models.ProjectedTransaction, error) {
	return p.Forecast(ctx, accountID, opening, from, from.AddDate(0, 0, p.horizonDays))
}

// Forecast projects all obligations relevant to the account over [from, to]
// and returns them in chronological order with a running balance starting
// from opening.
func (p *Projector) Forecast(ctx context.Context, accountID int64, opening decimal.Decimal, from, to time.Time) ([]models.ProjectedTransaction, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: from %s is after to %s",
			custom_errors.ErrInvalidDateRange, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	exists, err := p.store.AccountExists(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("check account %d: %w", accountID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: account %d", custom_errors.ErrAccountNotFound, accountID)
	}

	obligations, err := p.store.ListObligationsForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list obligations for account %d: %w", accountID, err)
	}
	return Project(obligations, accountID, opening, from, to)
}

// ForecastAll projects every account in openings concurrently, bounded by the
// worker limit. The first failure cancels the remaining work.
func (p *Projector) ForecastAll(ctx context.Context, openings map[int64]decimal.Decimal, from, to time.Time) (map[int64][]models.ProjectedTransaction, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(p.workers)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	results := make(map[int64][]models.ProjectedTransaction, len(openings))

	for accountID, opening := range openings {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(accountID int64, opening decimal.Decimal) {
			defer wg.Done()
			defer sem.Release(1)

			forecast, err := p.Forecast(ctx, accountID, opening, from, to)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("account %d: %w", accountID, err)
					cancel()
				}
				return
			}
			results[accountID] = forecast
		}(accountID, opening)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Project expands the obligations into dated transactions within [from, to],
// ordered by date then obligation id, with a running balance from opening.
func Project(obligations []models.Obligation, accountID int64, opening decimal.Decimal, from, to time.Time) ([]models.ProjectedTransaction, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: from %s is after to %s",
			custom_errors.ErrInvalidDateRange, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	var out []models.ProjectedTransaction
	for i := range obligations {
		o := &obligations[i]
		if !o.RelevantToAccount(accountID) {
			continue
		}
		dates, err := occurrencesWithin(o, from, to)
		if err != nil {
			return nil, fmt.Errorf("obligation %d: %w", o.ID, err)
		}
		for _, date := range dates {
			out = append(out, models.ProjectedTransaction{
				Date:         date,
				ObligationID: o.ID,
				Amount:       o.EffectiveAmount(accountID),
				Title:        o.Title,
				Description:  o.Description,
			})
		}
	}

	// Same-day entries apply in obligation id order so reruns are stable.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ObligationID < out[j].ObligationID
	})

	balance := opening
	for i := range out {
		balance = balance.Add(out[i].Amount)
		out[i].Balance = balance
	}
	return out, nil
}

// occurrencesWithin lists the obligation's occurrence dates inside [from, to],
// honoring its own end date. One-shot obligations occur once, on BeginDate.
func occurrencesWithin(o *models.Obligation, from, to time.Time) ([]time.Time, error) {
	if o.EndDate != nil && o.EndDate.Before(to) {
		to = *o.EndDate
	}
	if !o.Recurring() {
		if begin := o.BeginDate; !begin.Before(from) && !begin.After(to) {
			return []time.Time{begin}, nil
		}
		return nil, nil
	}

	var dates []time.Time
	cur, err := recurrence.Next(*o.Recurrence, o.BeginDate, from)
	for ; err == nil && !cur.After(to); cur, err = recurrence.Next(*o.Recurrence, o.BeginDate, cur.AddDate(0, 0, 1)) {
		dates = append(dates, cur)
	}
	if err != nil {
		return nil, err
	}
	return dates, nil
}
