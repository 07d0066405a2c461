package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/worker"
)

type LocalConfig struct {
	Runner           SyncRunner
	Cleaner          Cleaner
	Network          Connectivity
	PeriodicInterval time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	CleanupSchedule  string
	RetentionDays    int
	Logger           zerolog.Logger
}

// LocalScheduler runs every pass on a single goroutine. Periodic and cleanup
// cadences come from cron.
type LocalScheduler struct {
	cfg    LocalConfig
	logger zerolog.Logger
	cron   *cron.Cron

	immediate chan string
	periodic  chan struct{}

	mu          sync.Mutex
	periodicID  cron.EntryID
	hasPeriodic bool
	retryTimer  *time.Timer
	attempt     int
	running     bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewLocalScheduler(cfg LocalConfig) *LocalScheduler {
	if cfg.PeriodicInterval <= 0 {
		cfg.PeriodicInterval = 15 * time.Minute
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 10 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Hour
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	logger := cfg.Logger.With().Str("component", "scheduler").Str("backend", "local").Logger()
	cronLogger := cron.PrintfLogger(&cronLogAdapter{logger: logger})

	return &LocalScheduler{
		cfg:       cfg,
		logger:    logger,
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger)), cron.WithLogger(cron.VerbosePrintfLogger(&cronLogAdapter{logger: logger, debug: true}))),
		immediate: make(chan string, 1),
		periodic:  make(chan struct{}, 1),
	}
}

func (s *LocalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	if s.cfg.Cleaner != nil && s.cfg.CleanupSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.CleanupSchedule, func() { s.cleanup(ctx) }); err != nil {
			s.cancel()
			return fmt.Errorf("register cleanup job: %w", err)
		}
	}
	s.cron.Start()
	go s.loop(ctx)

	s.logger.Info().Msg("Scheduler started")
	return nil
}

func (s *LocalScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.stopRetryLocked()
	s.mu.Unlock()

	stopped := s.cron.Stop()
	<-stopped.Done()
	if cancel != nil {
		cancel()
		<-done
	}
	s.logger.Info().Msg("Scheduler stopped")
}

// ScheduleImmediate replaces any queued immediate pass and any pending
// backoff retry. A pass that is already running is left alone.
func (s *LocalScheduler) ScheduleImmediate(context.Context) error {
	s.mu.Lock()
	s.stopRetryLocked()
	s.attempt = 0
	s.mu.Unlock()

	s.enqueueImmediate(worker.TriggerImmediate)
	return nil
}

func (s *LocalScheduler) SchedulePeriodic(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasPeriodic {
		s.logger.Debug().Str("job", PeriodicJobName).Msg("Periodic sync already registered, keeping it")
		return nil
	}
	spec := fmt.Sprintf("@every %s", s.cfg.PeriodicInterval)
	id, err := s.cron.AddFunc(spec, func() { s.firePeriodic(ctx) })
	if err != nil {
		return fmt.Errorf("register %s: %w", PeriodicJobName, err)
	}
	s.periodicID, s.hasPeriodic = id, true
	s.logger.Info().Str("job", PeriodicJobName).Dur("interval", s.cfg.PeriodicInterval).Msg("Periodic sync registered")
	return nil
}

func (s *LocalScheduler) TriggerIfOnline(ctx context.Context) error {
	if !s.cfg.Network.Reachable(ctx) {
		s.logger.Debug().Msg("No network available for sync")
		return nil
	}
	return s.ScheduleImmediate(ctx)
}

// Cancel drops queued and periodic work. A running pass finishes.
func (s *LocalScheduler) Cancel(context.Context) error {
	s.mu.Lock()
	s.stopRetryLocked()
	s.attempt = 0
	if s.hasPeriodic {
		s.cron.Remove(s.periodicID)
		s.hasPeriodic = false
	}
	s.mu.Unlock()

	select {
	case <-s.immediate:
	default:
	}
	select {
	case <-s.periodic:
	default:
	}
	s.logger.Info().Msg("All sync work cancelled")
	return nil
}

// Running reports whether a pass is executing right now.
func (s *LocalScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *LocalScheduler) enqueueImmediate(trigger string) {
	for {
		select {
		case s.immediate <- trigger:
			s.logger.Debug().Str("job", ImmediateJobName).Str("trigger", trigger).Msg("Immediate sync queued")
			return
		default:
		}
		// Replace the queued request with this one.
		select {
		case old := <-s.immediate:
			s.logger.Debug().Str("job", ImmediateJobName).Str("replaced", old).Msg("Queued immediate sync replaced")
		default:
		}
	}
}

func (s *LocalScheduler) firePeriodic(ctx context.Context) {
	if !s.cfg.Network.Reachable(ctx) {
		s.logger.Debug().Str("job", PeriodicJobName).Msg("Offline, periodic sync skipped")
		return
	}
	select {
	case s.periodic <- struct{}{}:
	default:
	}
}

func (s *LocalScheduler) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case trigger := <-s.immediate:
			s.handleImmediate(ctx, s.run(ctx, trigger))
		case <-s.periodic:
			s.run(ctx, worker.TriggerPeriodic)
		}
	}
}

func (s *LocalScheduler) run(ctx context.Context, trigger string) worker.Outcome {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	return s.cfg.Runner.Run(ctx, trigger)
}

func (s *LocalScheduler) handleImmediate(ctx context.Context, outcome worker.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if outcome != worker.OutcomeRetry {
		s.attempt = 0
		return
	}
	if ctx.Err() != nil {
		return
	}
	delay := worker.RetryDelay(s.cfg.InitialBackoff, s.cfg.MaxBackoff, s.attempt)
	s.attempt++
	s.stopRetryLocked()
	s.retryTimer = time.AfterFunc(delay, func() { s.enqueueImmediate(worker.TriggerRetry) })
	s.logger.Info().Str("job", ImmediateJobName).Int("attempt", s.attempt).Dur("delay", delay).Msg("Sync retry scheduled")
}

func (s *LocalScheduler) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *LocalScheduler) cleanup(ctx context.Context) {
	n, err := s.cfg.Cleaner.CleanupOldAlerts(ctx, s.cfg.RetentionDays)
	if err != nil {
		s.logger.Error().Err(err).Msg("Alert cleanup failed")
		return
	}
	s.logger.Info().Int64("deleted", n).Msg("Alert cleanup finished")
}

// cronLogAdapter routes cron's printf-style logs into zerolog.
type cronLogAdapter struct {
	logger zerolog.Logger
	debug  bool
}

func (a *cronLogAdapter) Printf(format string, v ...interface{}) {
	if a.debug {
		a.logger.Debug().Msgf(format, v...)
		return
	}
	a.logger.Error().Msgf(format, v...)
}
