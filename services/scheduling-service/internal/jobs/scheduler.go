// Package jobs runs the daily agenda, reminder and outbox retention jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

type Store interface {
	Providers(ctx context.Context) ([]model.Provider, error)
	DailyAgenda(ctx context.Context, providerID string, date civil.Date) ([]model.AgendaItem, error)
	ReminderCandidates(ctx context.Context, date civil.Date) ([]model.AgendaItem, error)
}

type Sender interface {
	SendAgenda(ctx context.Context, p model.Provider, date civil.Date, items []model.AgendaItem) error
	Reminder(ctx context.Context, item model.AgendaItem) error
}

type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Config struct {
	AgendaSpec      string
	ReminderSpec    string
	PruneSpec       string
	OutboxRetention time.Duration
	Location        *time.Location
	RunTimeout      time.Duration
	Now             func() time.Time
}

type Scheduler struct {
	cron   *cron.Cron
	store  Store
	sender Sender
	pruner Pruner
	logger *slog.Logger
	cfg    Config
}

func New(store Store, sender Sender, pruner Pruner, logger *slog.Logger, cfg Config) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if cfg.OutboxRetention <= 0 {
		cfg.OutboxRetention = 7 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Scheduler{store: store, sender: sender, pruner: pruner, logger: logger, cfg: cfg}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (int, error)
	}{
		{"daily_agenda", cfg.AgendaSpec, s.SendDailyAgendas},
		{"client_reminders", cfg.ReminderSpec, s.RequestReminders},
		{"outbox_prune", cfg.PruneSpec, s.pruneOutbox},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, func() { s.runJob(j.name, j.run) }); err != nil {
			return nil, fmt.Errorf("job %s: invalid schedule %q: %w", j.name, j.spec, err)
		}
		logger.Info("job scheduled", "job", j.name, "spec", j.spec)
	}
	return s, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for running jobs or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) runJob(name string, run func(context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	n, err := run(ctx)
	if err != nil {
		s.logger.Error("job failed", "job", name, "err", err, "processed", n)
		return
	}
	s.logger.Info("job finished", "job", name, "processed", n, "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) today() civil.Date {
	return civil.DateOf(s.cfg.Now().In(s.cfg.Location))
}

// SendDailyAgendas sends every provider with appointments today their agenda.
func (s *Scheduler) SendDailyAgendas(ctx context.Context) (int, error) {
	providers, err := s.store.Providers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list providers: %w", err)
	}
	today := s.today()

	sent := 0
	var errs []error
	for _, p := range providers {
		items, err := s.store.DailyAgenda(ctx, p.ID, today)
		if err != nil {
			errs = append(errs, fmt.Errorf("agenda %s: %w", p.ID, err))
			continue
		}
		if len(items) == 0 {
			continue
		}
		if err := s.sender.SendAgenda(ctx, p, today, items); err != nil {
			errs = append(errs, fmt.Errorf("send agenda %s: %w", p.ID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// RequestReminders asks for a reminder for each of tomorrow's appointments.
func (s *Scheduler) RequestReminders(ctx context.Context) (int, error) {
	tomorrow := s.today().AddDays(1)
	items, err := s.store.ReminderCandidates(ctx, tomorrow)
	if err != nil {
		return 0, fmt.Errorf("list reminders: %w", err)
	}

	sent := 0
	var errs []error
	for _, it := range items {
		if it.ClientEmail == "" && it.ClientPhone == "" {
			continue
		}
		if err := s.sender.Reminder(ctx, it); err != nil {
			errs = append(errs, fmt.Errorf("reminder %s: %w", it.AppointmentID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (s *Scheduler) pruneOutbox(ctx context.Context) (int, error) {
	if s.pruner == nil {
		return 0, nil
	}
	n, err := s.pruner.Prune(ctx, s.cfg.OutboxRetention)
	return int(n), err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}
