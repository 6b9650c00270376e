package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	applog "cajaclaro/internal/log"
)

// SchedulerConfig holds configuration for the periodic sweep
type SchedulerConfig struct {
	// Interval between sweeps (default: 1h)
	Interval time.Duration

	// Location is the business timezone that decides "today"
	Location *time.Location

	// RunOnStart sweeps once before the first tick (default: true)
	RunOnStart bool
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   time.Hour,
		Location:   time.UTC,
		RunOnStart: true,
	}
}

// RecurringScheduler is the cron-style trigger around RecurringProcessor.
type RecurringScheduler struct {
	processor *RecurringProcessor
	config    SchedulerConfig
	now       func() time.Time
	logger    *applog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	last    Report
}

func NewRecurringScheduler(processor *RecurringProcessor, config SchedulerConfig) *RecurringScheduler {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &RecurringScheduler{
		processor: processor,
		config:    config,
		now:       time.Now,
		logger:    applog.ForComponent(applog.ComponentWorker),
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (s *RecurringScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("recurring scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	s.logger.InfoContext(ctx, "Recurring scheduler started",
		"interval", s.config.Interval,
		"timezone", s.config.Location.String())
	return nil
}

// Stop signals the loop and waits for the in-flight sweep to finish. The
// scheduler counts as stopped once signalled, even if ctx expires first, so
// calling Stop again is a no-op.
func (s *RecurringScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Recurring scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Recurring scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *RecurringScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastReport returns the result of the most recent sweep.
func (s *RecurringScheduler) LastReport() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SweepOnce runs a single sweep for the current business date.
func (s *RecurringScheduler) SweepOnce(ctx context.Context) (Report, error) {
	asOf := BusinessDate(s.now(), s.config.Location)
	report, err := s.processor.ProcessDue(ctx, asOf)
	if err != nil {
		s.logger.ErrorContext(ctx, "Recurring sweep failed", applog.FieldAsOf, asOf.String(), applog.FieldError, err)
		return report, err
	}
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	return report, nil
}

func (s *RecurringScheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	if s.config.RunOnStart {
		_, _ = s.SweepOnce(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			_, _ = s.SweepOnce(ctx)
		}
	}
}
