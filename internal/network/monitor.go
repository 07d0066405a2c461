package network

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type State struct {
	Online    bool      `json:"online"`
	ChangedAt time.Time `json:"changed_at"`
}

type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

type SyncTrigger interface {
	ScheduleImmediate(ctx context.Context) error
}

type SyncingNotifier interface {
	NotifySyncing(ctx context.Context, pending int) error
}

type MonitorConfig struct {
	Checker      Checker
	Pending      PendingCounter
	Trigger      SyncTrigger
	Notifier     SyncingNotifier
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// Monitor tracks connectivity and asks for an immediate sync when the
// network comes back while alerts are waiting.
type Monitor struct {
	checker  Checker
	pending  PendingCounter
	trigger  SyncTrigger
	notifier SyncingNotifier
	interval time.Duration
	logger   zerolog.Logger
	signals  chan struct{}

	mu        sync.Mutex
	known     bool
	online    bool
	changedAt time.Time
	nextSub   int
	subs      map[int]chan State
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		checker:  cfg.Checker,
		pending:  cfg.Pending,
		trigger:  cfg.Trigger,
		notifier: cfg.Notifier,
		interval: interval,
		logger:   cfg.Logger.With().Str("component", "connectivity_monitor").Logger(),
		signals:  make(chan struct{}, 1),
		subs:     make(map[int]chan State),
	}
}

// SetTrigger wires the scheduler after construction; the scheduler itself
// consults the monitor for connectivity.
func (m *Monitor) SetTrigger(t SyncTrigger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trigger = t
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info().Dur("interval", m.interval).Msg("Connectivity monitor started")
	m.observe(ctx, m.checker.Reachable(ctx), false)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Connectivity monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.observe(ctx, m.checker.Reachable(ctx), false)
		case <-m.signals:
			m.observe(ctx, m.checker.Reachable(ctx), true)
		}
	}
}

// Signal reports an external connectivity change. Bursts collapse into one re-check.
func (m *Monitor) Signal() {
	select {
	case m.signals <- struct{}{}:
	default:
	}
}

// Online returns the last observed state without probing.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// State returns the last observed state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Online: m.online, ChangedAt: m.changedAt}
}

// Reachable probes now and records the result.
func (m *Monitor) Reachable(ctx context.Context) bool {
	online := m.checker.Reachable(ctx)
	m.observe(ctx, online, false)
	return online
}

// Subscribe streams state changes until ctx is cancelled. Slow readers only
// see the latest state.
func (m *Monitor) Subscribe(ctx context.Context) <-chan State {
	ch := make(chan State, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

func (m *Monitor) observe(ctx context.Context, online, signalled bool) {
	now := time.Now()

	m.mu.Lock()
	wasKnown, wasOnline := m.known, m.online
	changed := !wasKnown || wasOnline != online
	m.known, m.online = true, online
	if changed {
		m.changedAt = now
		m.broadcastLocked(State{Online: online, ChangedAt: now})
	}
	trigger := m.trigger
	m.mu.Unlock()

	if changed {
		m.logger.Info().Bool("online", online).Msg("Connectivity changed")
	}

	regained := wasKnown && !wasOnline && online
	if !online || !(regained || signalled) {
		return
	}
	m.syncIfPending(ctx, trigger)
}

func (m *Monitor) syncIfPending(ctx context.Context, trigger SyncTrigger) {
	if m.pending == nil || trigger == nil {
		return
	}
	count, err := m.pending.CountPending(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to count pending alerts")
		return
	}
	if count == 0 {
		return
	}

	m.logger.Info().Int("pending", count).Msg("Network available, scheduling alert sync")
	if err := trigger.ScheduleImmediate(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Failed to schedule immediate sync")
		return
	}
	if m.notifier != nil {
		if err := m.notifier.NotifySyncing(ctx, count); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to publish syncing notification")
		}
	}
}

func (m *Monitor) broadcastLocked(s State) {
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
