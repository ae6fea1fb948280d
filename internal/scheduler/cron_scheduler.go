package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"finsched/internal/handler"
)

// CronScheduler runs registrations in-process on a robfig/cron runner and
// dispatches fired effects through the handler registry.
type CronScheduler struct {
	cron     *cron.Cron
	handlers *handler.JobHandler
	log      zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewCronScheduler(handlers *handler.JobHandler, log zerolog.Logger) *CronScheduler {
	return &CronScheduler{
		cron:     cron.New(),
		handlers: handlers,
		log:      log,
		entries:  make(map[string]cron.EntryID),
	}
}

// Start begins firing registered jobs.
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop halts firing; running jobs finish. The returned context is done when
// they have.
func (s *CronScheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *CronScheduler) Register(ctx context.Context, name, expression, effect string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return 0, fmt.Errorf("job '%s' already registered", name)
	}

	handlerName, payload := splitEffect(effect)
	id, err := s.cron.AddFunc(expression, func() {
		s.fire(name, handlerName, payload)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to register job '%s': %w", name, err)
	}

	s.entries[name] = id
	return Handle(id), nil
}

func (s *CronScheduler) Unregister(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.entries[name]
	if !exists {
		// Idempotent: compensation may unregister a job that never made it in.
		return nil
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	return nil
}

func (s *CronScheduler) Reregister(ctx context.Context, oldName, newName, expression, effect string) (Handle, error) {
	if err := s.Unregister(ctx, oldName); err != nil {
		return 0, err
	}
	return s.Register(ctx, newName, expression, effect)
}

// Registered reports whether a name currently holds a registration.
func (s *CronScheduler) Registered(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.entries[name]
	return exists
}

func (s *CronScheduler) fire(jobName, handlerName, payload string) {
	if !s.handlers.Exists(handlerName) {
		s.log.Warn().Str("job", jobName).Str("handler", handlerName).Msg("no handler for fired job")
		return
	}

	var err error
	if payload == "" {
		err = s.handlers.Execute(handlerName, jobName)
	} else {
		err = s.handlers.Execute(handlerName, jobName, payload)
	}
	if err != nil {
		s.log.Error().Err(err).Str("job", jobName).Str("handler", handlerName).Msg("job effect failed")
	}
}

func splitEffect(effect string) (handlerName, payload string) {
	parts := strings.SplitN(strings.TrimSpace(effect), " ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}
