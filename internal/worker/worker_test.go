package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/safeme-sync/internal/alerts"
	"github.com/stanstork/safeme-sync/internal/models"
	"github.com/stanstork/safeme-sync/internal/notification"
	"github.com/stanstork/safeme-sync/internal/repository"
	"github.com/stanstork/safeme-sync/internal/store"
)

type switchNetwork struct{ online atomic.Bool }

func (n *switchNetwork) Reachable(context.Context) bool { return n.online.Load() }

type memoryRemote struct {
	mu     sync.Mutex
	err    error
	alerts map[string]models.RemoteAlert
}

func (m *memoryRemote) Append(_ context.Context, a models.RemoteAlert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.alerts[a.AlertID]; ok {
		return false, nil
	}
	m.alerts[a.AlertID] = a
	return true, nil
}

type scriptedSender struct {
	mu     sync.Mutex
	reject map[string]bool
	sent   []string
	tried  []string
}

func (s *scriptedSender) Send(_ context.Context, msg notification.EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tried = append(s.tried, msg.ToEmail)
	if s.reject[msg.ToEmail] {
		return &notification.EmailDeliveryError{ToEmail: msg.ToEmail, Err: errors.New("bounced")}
	}
	s.sent = append(s.sent, msg.ToEmail)
	return nil
}

func (s *scriptedSender) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tried)
}

type notificationLog struct {
	mu    sync.Mutex
	items []models.Notification
}

func (l *notificationLog) Create(_ context.Context, p repository.CreateNotificationParams) (models.Notification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := models.Notification{
		ID:        fmt.Sprintf("n-%d", len(l.items)+1),
		UserID:    p.UserID,
		EventType: p.Event,
		Severity:  p.Severity,
		Title:     p.Title,
		Message:   p.Message,
	}
	l.items = append(l.items, n)
	return n, nil
}

func (l *notificationLog) List(_ context.Context, filter repository.NotificationFilter) ([]models.Notification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Notification
	for i := len(l.items) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		if filter.Matches(l.items[i]) {
			out = append(out, l.items[i])
		}
	}
	return out, nil
}

func (l *notificationLog) CountUnread(context.Context, string) (map[models.NotificationEvent]int, error) {
	return nil, errors.New("not supported")
}

func (l *notificationLog) MarkRead(context.Context, string, string) (models.Notification, error) {
	return models.Notification{}, errors.New("not supported")
}

type harness struct {
	worker   *Worker
	repo     *alerts.Repository
	store    store.AlertStore
	network  *switchNetwork
	remote   *memoryRemote
	sender   *scriptedSender
	notifier notification.Service
}

func newHarness(t *testing.T) harness {
	t.Helper()
	st, err := store.New(store.NewInMemoryConnector(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := harness{
		store:    st,
		network:  &switchNetwork{},
		remote:   &memoryRemote{alerts: map[string]models.RemoteAlert{}},
		sender:   &scriptedSender{reject: map[string]bool{}},
		notifier: notification.NewService(&notificationLog{}, zerolog.Nop()),
	}
	dispatcher := notification.NewDispatcher(h.sender, "test", time.Second, zerolog.Nop())
	h.repo = alerts.NewRepository(st, h.remote, h.network, dispatcher, alerts.Config{MaxSyncAttempts: 3, PushTimeout: time.Second}, zerolog.Nop())
	h.worker = NewWorker(WorkerConfig{
		Alerts:     h.repo,
		Network:    h.network,
		Dispatcher: dispatcher,
		Notifier:   h.notifier,
		RunTimeout: 5 * time.Second,
		Logger:     zerolog.Nop(),
	})
	return h
}

func (h harness) saveOffline(t *testing.T, contacts ...models.ContactSnapshotEntry) models.AlertRecord {
	t.Helper()
	ctx := context.Background()
	res, err := h.repo.SaveAlert(ctx, models.AlertDraft{
		UserID:    "u1",
		UserEmail: "u1@example.com",
		Type:      "Medical Emergency",
		Message:   "need help",
		Contacts:  contacts,
	})
	require.NoError(t, err)
	require.True(t, res.Offline)
	rec, err := h.store.GetByAlertID(ctx, res.AlertID)
	require.NoError(t, err)
	return rec
}

func TestRunOfflineToOnlinePartialEmailDelivery(t *testing.T) {
	h := newHarness(t)
	h.sender.reject["bo@x.io"] = true

	rec := h.saveOffline(t,
		models.ContactSnapshotEntry{Name: "Ann", Email: "ann@x.io", Priority: models.PriorityHigh},
		models.ContactSnapshotEntry{Name: "Bo", Email: "bo@x.io", Priority: models.PriorityMedium},
		models.ContactSnapshotEntry{Name: "Cy", Phone: "555", Priority: models.PriorityLow},
	)
	assert.Equal(t, models.AlertStatusPending, rec.Status)
	assert.Equal(t, 0, rec.SyncAttempts)

	h.network.online.Store(true)
	outcome := h.worker.Run(context.Background(), TriggerImmediate)
	assert.Equal(t, OutcomeSuccess, outcome)

	after, err := h.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusSynced, after.Status)
	assert.Equal(t, 2, h.sender.attempts())
	assert.Equal(t, []string{"ann@x.io"}, h.sender.sent)

	recent, err := h.notifier.List(context.Background(), repository.NotificationFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "Synced: 1", recent[0].Message)
}

func TestRunRemoteFailureYieldsRetry(t *testing.T) {
	h := newHarness(t)
	rec := h.saveOffline(t, models.ContactSnapshotEntry{Name: "Ann", Email: "ann@x.io"})

	h.network.online.Store(true)
	h.remote.err = errors.New("socket closed")

	assert.Equal(t, OutcomeRetry, h.worker.Run(context.Background(), TriggerImmediate))

	after, err := h.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusFailed, after.Status)
	assert.Equal(t, 1, after.SyncAttempts)
	assert.NotNil(t, after.LastSyncAttempt)
	assert.Zero(t, h.sender.attempts())

	recent, err := h.notifier.List(context.Background(), repository.NotificationFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "⚠️ Alerts Sync Completed", recent[0].Title)
}

func TestRunRetriesFailedRecordUntilCap(t *testing.T) {
	h := newHarness(t)
	rec := h.saveOffline(t)
	h.network.online.Store(true)
	h.remote.err = errors.New("timeout")

	for i := 0; i < 3; i++ {
		assert.Equal(t, OutcomeRetry, h.worker.Run(context.Background(), TriggerPeriodic))
	}
	after, err := h.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.SyncAttempts)

	// Past the cap the record is no longer a candidate.
	assert.Equal(t, OutcomeSuccess, h.worker.Run(context.Background(), TriggerPeriodic))
	after, err = h.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.SyncAttempts)
}

func TestRunWithoutNetworkYieldsRetry(t *testing.T) {
	h := newHarness(t)
	rec := h.saveOffline(t)

	assert.Equal(t, OutcomeRetry, h.worker.Run(context.Background(), TriggerImmediate))

	after, err := h.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusPending, after.Status)
	assert.Equal(t, 0, after.SyncAttempts)
}

func TestRunEmptyQueueSucceeds(t *testing.T) {
	h := newHarness(t)
	h.network.online.Store(true)

	assert.Equal(t, OutcomeSuccess, h.worker.Run(context.Background(), TriggerPeriodic))

	recent, err := h.notifier.List(context.Background(), repository.NotificationFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestRunWithoutEmailContactsStillSyncs(t *testing.T) {
	h := newHarness(t)
	rec := h.saveOffline(t, models.ContactSnapshotEntry{Name: "Cy", Phone: "555"})
	h.network.online.Store(true)

	assert.Equal(t, OutcomeSuccess, h.worker.Run(context.Background(), TriggerImmediate))

	after, err := h.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusSynced, after.Status)
	assert.Zero(t, h.sender.attempts())
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t)
	rec := h.saveOffline(t, models.ContactSnapshotEntry{Name: "Ann", Email: "ann@x.io"})
	h.network.online.Store(true)

	require.Equal(t, OutcomeSuccess, h.worker.Run(context.Background(), TriggerImmediate))
	first, err := h.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)

	require.Equal(t, OutcomeSuccess, h.worker.Run(context.Background(), TriggerPeriodic))
	second, err := h.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.Equal(t, first.AlertID, second.AlertID)
	assert.Equal(t, first.ContactsJSON, second.ContactsJSON)
	assert.Equal(t, first.ContactsNotified, second.ContactsNotified)
	assert.Equal(t, 1, h.sender.attempts())
	assert.Len(t, h.remote.alerts, 1)
}
