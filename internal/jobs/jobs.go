// Package jobs runs the periodic maintenance work of the bank outside the request path.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/bank-core/internal/config"
	"github.com/Dan9191/bank-core/internal/service"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const jobTimeout = 5 * time.Minute

// KeyRateSource fetches the central bank key rate in percent
type KeyRateSource interface {
	GetKeyRate(ctx context.Context) (decimal.Decimal, error)
}

// Scheduler owns the cron runner and the operations it triggers
type Scheduler struct {
	cron    *cron.Cron
	svc     *service.Service
	keyRate KeyRateSource
	cfg     *config.Config
	log     *logrus.Logger
}

// NewScheduler registers the card expiry, key-rate and reminder jobs; keyRate may be nil
func NewScheduler(cfg *config.Config, svc *service.Service, keyRate KeyRateSource, log *logrus.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		svc:     svc,
		keyRate: keyRate,
		cfg:     cfg,
		log:     log,
	}
	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"expire-cards", cfg.CronExpireCards, s.ExpireCards},
		{"key-rate", cfg.CronKeyRate, s.RefreshKeyRate},
		{"payment-reminders", cfg.CronReminders, s.SendReminders},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.run(job.name, job.run) }); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", job.spec, job.name, err)
		}
	}
	return s, nil
}

// Start launches the scheduler in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Infof("Scheduler started with %d jobs", len(s.cron.Entries()))
}

// Stop prevents new runs and waits for running jobs up to ctx's deadline
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("Scheduler stop timed out")
	}
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	start := time.Now()
	entry := s.log.WithField("job", name)
	if err := fn(ctx); err != nil {
		entry.WithError(err).Error("Job failed")
		return
	}
	entry.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Job finished")
}

// ExpireCards marks overdue ACTIVE cards as EXPIRED
func (s *Scheduler) ExpireCards(ctx context.Context) error {
	n, err := s.svc.Cards.ExpireCards(ctx)
	if err != nil {
		return err
	}
	s.log.WithField("expired", n).Debug("Card expiry sweep done")
	return nil
}

// RefreshKeyRate stores the current key rate as the KEY_RATE parameter
func (s *Scheduler) RefreshKeyRate(ctx context.Context) error {
	if s.keyRate == nil {
		return nil
	}
	rate, err := s.keyRate.GetKeyRate(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch key rate: %w", err)
	}
	return s.svc.Params.Set(ctx, service.ParamKeyRate, rate.String(), "Central bank key rate, percent")
}

// SendReminders emails clients with an installment due soon
func (s *Scheduler) SendReminders(ctx context.Context) error {
	n, err := s.svc.Loans.SendReminders(ctx, s.cfg.ReminderDaysAhead)
	if err != nil {
		return err
	}
	s.log.WithField("sent", n).Debug("Payment reminders done")
	return nil
}
