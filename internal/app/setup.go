// Package app wires the engine together: database, migrations, store, locks,
// scheduler, effect handlers, broker, coordinator and projector.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"finsched/internal/broker"
	"finsched/internal/db"
	"finsched/internal/handler"
	"finsched/internal/jobsync"
	"finsched/internal/lock"
	"finsched/internal/models"
	"finsched/internal/models/config"
	"finsched/internal/projector"
	"finsched/internal/recurrence"
	"finsched/internal/scheduler"
	"finsched/internal/store"
	"finsched/internal/store/postgres"
)

// Engine is the assembled scheduling and projection engine.
type Engine struct {
	Store       store.Store
	Scheduler   *scheduler.CronScheduler
	Coordinator *jobsync.Coordinator
	Loans       *jobsync.LoanCoordinator
	Projector   *projector.Projector
	Broker      broker.MessageBroker

	cfg *config.Config
	log zerolog.Logger
}

// Setup builds an Engine from the configuration, runs migrations and starts
// the scheduler. The caller owns the returned engine and must Close it.
func Setup(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	sqlDB, err := sql.Open("postgres", cfg.PostgresConfig.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	locks := lock.NewPostgresDistributedLockManager(sqlDB)
	if err := db.Init(cfg.PostgresConfig.ConnectionURL, locks, log); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	st := postgres.NewPostgresObligationStore(sqlDB)

	var mq broker.MessageBroker
	if cfg.PublishEvents {
		mq, err = broker.NewRabbitMQ(
			cfg.RabbitMQConfig.URL,
			cfg.RabbitMQConfig.Exchange,
			cfg.RabbitMQConfig.Queue,
			cfg.RabbitMQConfig.RoutingKey,
		)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect broker: %w", err)
		}
	} else {
		mq = broker.NewInMemory()
	}

	handlers := handler.NewJobHandler()
	eng := &Engine{
		Store:  st,
		Broker: mq,
		cfg:    cfg,
		log:    log,
	}
	if err := eng.registerEffectHandlers(handlers); err != nil {
		eng.closePartial()
		return nil, err
	}
	for _, h := range cfg.Handlers {
		if err := handlers.Register(h.Name, h.Func); err != nil {
			eng.closePartial()
			return nil, fmt.Errorf("register handler %s: %w", h.Name, err)
		}
	}

	sched := scheduler.NewCronScheduler(handlers, log)
	sched.Start()

	eng.Scheduler = sched
	eng.Coordinator = jobsync.NewCoordinator(st, sched, locks, log)
	eng.Loans = jobsync.NewLoanCoordinator(eng.Coordinator)
	eng.Projector = projector.New(st, log,
		projector.WithWorkers(int64(cfg.WorkerCount)),
		projector.WithHorizonDays(cfg.HorizonDays),
	)
	return eng, nil
}

// Close stops the scheduler, waits for in-flight jobs and releases the broker
// and database connections.
func (e *Engine) Close() error {
	if e.Scheduler != nil {
		<-e.Scheduler.Stop().Done()
	}
	if err := e.Broker.Close(); err != nil {
		e.log.Error().Err(err).Msg("failed to close broker")
	}
	return e.Store.Close()
}

func (e *Engine) closePartial() {
	e.Broker.Close()
	e.Store.Close()
}

// registerEffectHandlers installs the built-in effects: posting an obligation
// occurrence and accruing loan interest. Both publish a ledger event for the
// downstream transaction recorder.
func (e *Engine) registerEffectHandlers(handlers *handler.JobHandler) error {
	if err := handlers.Register(jobsync.EffectPost, e.publishEffect(jobsync.EffectPost)); err != nil {
		return err
	}
	return handlers.Register(jobsync.EffectInterest, e.publishEffect(jobsync.EffectInterest))
}

func (e *Engine) publishEffect(effect string) func(args ...any) error {
	return func(args ...any) error {
		// Handlers receive the job name first and the payload last.
		if len(args) < 2 {
			return fmt.Errorf("effect %s: missing obligation id", effect)
		}
		payload, ok := args[len(args)-1].(string)
		if !ok {
			return fmt.Errorf("effect %s: unexpected payload %v", effect, args[len(args)-1])
		}
		obligationID, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return fmt.Errorf("effect %s: bad obligation id %q: %w", effect, payload, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		o, err := e.Store.GetObligation(ctx, obligationID)
		if err != nil {
			return fmt.Errorf("effect %s: load obligation %d: %w", effect, obligationID, err)
		}
		if o == nil {
			// Row deleted between firing and execution. Nothing to post.
			e.log.Warn().Int64("obligation", obligationID).Str("effect", effect).
				Msg("fired for a deleted obligation")
			return nil
		}
		// Interest jobs run on their own schedule, not the payment one.
		rule := o.Recurrence
		if effect == jobsync.EffectInterest {
			rule = o.InterestRecurrence
		}
		today := time.Now().UTC().Truncate(24 * time.Hour)
		if rule != nil && !recurrence.Matches(*rule, o.BeginDate, today) {
			// The cron expression is coarser than the recurrence for
			// week-of-month and multi-interval rules. Skip the off dates.
			return nil
		}

		amount := o.EffectiveAmount(o.AccountID)
		if effect == jobsync.EffectInterest {
			if o.InterestRate == nil {
				return fmt.Errorf("effect %s: obligation %d has no interest rate", effect, o.ID)
			}
			// Accrual increases the outstanding amount by rate x amount.
			amount = o.InterestRate.Mul(o.Amount.Abs())
		}

		event := models.LedgerEvent{
			ObligationID: o.ID,
			AccountID:    o.AccountID,
			Amount:       amount,
			Title:        o.Title,
			FiredAt:      time.Now().UTC(),
			Effect:       effect,
		}
		body, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("effect %s: marshal event: %w", effect, err)
		}
		queue := "ledger-events"
		if e.cfg.RabbitMQConfig != nil && e.cfg.RabbitMQConfig.Queue != "" {
			queue = e.cfg.RabbitMQConfig.Queue
		}
		if err := e.Broker.Publish(queue, body); err != nil {
			return fmt.Errorf("effect %s: publish event: %w", effect, err)
		}
		e.log.Info().Int64("obligation", o.ID).Str("effect", effect).Msg("published ledger event")
		return nil
	}
}
