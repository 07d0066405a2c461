package alerts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/safeme-sync/internal/models"
	"github.com/stanstork/safeme-sync/internal/notification"
	"github.com/stanstork/safeme-sync/internal/store"
)

type fakeNetwork struct{ online atomic.Bool }

func (f *fakeNetwork) Reachable(context.Context) bool { return f.online.Load() }

type fakeRemote struct {
	mu     sync.Mutex
	err    error
	alerts map[string]models.RemoteAlert
	calls  int
	// stall blocks Append until its context is done.
	stall bool
	// accepted runs after a successful Append.
	accepted func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{alerts: map[string]models.RemoteAlert{}}
}

func (f *fakeRemote) Append(ctx context.Context, a models.RemoteAlert) (bool, error) {
	f.mu.Lock()
	f.calls++
	stall, accepted := f.stall, f.accepted
	f.mu.Unlock()

	if stall {
		<-ctx.Done()
		return false, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.alerts[a.AlertID]; ok {
		return false, nil
	}
	f.alerts[a.AlertID] = a
	if accepted != nil {
		accepted()
	}
	return true, nil
}

type countingDispatcher struct{ calls atomic.Int64 }

func (c *countingDispatcher) Dispatch(context.Context, models.AlertRecord) (notification.DispatchResult, error) {
	c.calls.Add(1)
	return notification.DispatchResult{Delivered: true}, nil
}

type fixture struct {
	repo       *Repository
	store      store.AlertStore
	remote     *fakeRemote
	network    *fakeNetwork
	dispatcher *countingDispatcher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st, err := store.New(store.NewInMemoryConnector(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := fixture{store: st, remote: newFakeRemote(), network: &fakeNetwork{}, dispatcher: &countingDispatcher{}}
	f.repo = NewRepository(st, f.remote, f.network, f.dispatcher, Config{MaxSyncAttempts: 3, PushTimeout: time.Second}, zerolog.Nop())
	return f
}

func draft() models.AlertDraft {
	lat, lon := 51.5, -0.12
	return models.AlertDraft{
		UserID:            "u1",
		UserEmail:         "u1@example.com",
		Type:              "Personal Safety",
		Message:           "composed",
		AdditionalMessage: "followed home",
		Latitude:          &lat,
		Longitude:         &lon,
		Location:          "Baker St",
		Contacts: []models.ContactSnapshotEntry{
			{Name: "Ann", Email: "ann@x.io", Priority: models.PriorityHigh},
			{Name: "Bo", Phone: "555", Priority: models.PriorityLow},
		},
	}
}

func TestSaveAlertOfflineQueuesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.repo.SaveAlert(ctx, draft())
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Equal(t, MessageSavedOffline, res.Message)

	parsed, err := uuid.Parse(res.AlertID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	rec, err := f.store.GetByAlertID(ctx, res.AlertID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusPending, rec.Status)
	assert.Equal(t, 0, rec.SyncAttempts)
	assert.Equal(t, 2, rec.ContactsNotified)
	assert.Zero(t, f.remote.calls)
	assert.Zero(t, f.dispatcher.calls.Load())
}

func TestSaveAlertOnlinePushesAndDispatches(t *testing.T) {
	f := newFixture(t)
	f.network.online.Store(true)
	ctx := context.Background()

	res, err := f.repo.SaveAlert(ctx, draft())
	require.NoError(t, err)
	assert.False(t, res.Offline)
	assert.Equal(t, MessageSentOnline, res.Message)
	require.NotNil(t, res.Dispatch)

	remote, ok := f.remote.alerts[res.AlertID]
	require.True(t, ok)
	assert.Equal(t, models.RemoteAlertStatus, remote.Status)
	assert.Len(t, remote.Contacts, 2)
	assert.Equal(t, int64(1), f.dispatcher.calls.Load())

	n, err := f.store.CountAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveAlertOnlinePushFailureFallsBackToLocal(t *testing.T) {
	f := newFixture(t)
	f.network.online.Store(true)
	f.remote.err = errors.New("unavailable")

	res, err := f.repo.SaveAlert(context.Background(), draft())
	require.NoError(t, err)
	assert.True(t, res.Offline)

	count, err := f.repo.GetPendingAlertsCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSyncAlertWithoutNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.repo.SaveAlert(ctx, draft())
	require.NoError(t, err)
	rec, err := f.store.GetByAlertID(ctx, res.AlertID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.repo.SyncAlert(ctx, rec), ErrNoConnectivity)

	after, err := f.store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.SyncAttempts)
}

func TestSyncAlertPushFailureRecordsAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.repo.SaveAlert(ctx, draft())
	require.NoError(t, err)
	rec, err := f.store.GetByAlertID(ctx, res.AlertID)
	require.NoError(t, err)

	f.network.online.Store(true)
	f.remote.err = errors.New("connection reset")

	err = f.repo.SyncAlert(ctx, rec)
	var rwe *RemoteWriteError
	require.ErrorAs(t, err, &rwe)
	assert.Equal(t, rec.AlertID, rwe.AlertID)

	after, err := f.store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusFailed, after.Status)
	assert.Equal(t, 1, after.SyncAttempts)
	assert.NotNil(t, after.LastSyncAttempt)

	retry, err := f.repo.GetFailedAlertsForRetry(ctx)
	require.NoError(t, err)
	assert.Len(t, retry, 1)
}

func TestSyncAlertRoundTripKeepsCreationValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.repo.SaveAlert(ctx, draft())
	require.NoError(t, err)
	rec, err := f.store.GetByAlertID(ctx, res.AlertID)
	require.NoError(t, err)

	f.network.online.Store(true)
	require.NoError(t, f.repo.SyncAlert(ctx, rec))

	remote := f.remote.alerts[rec.AlertID]
	assert.Equal(t, rec.AlertID, remote.AlertID)
	assert.Equal(t, "Personal Safety", remote.Type)
	assert.Equal(t, "composed", remote.Message)
	assert.Equal(t, 2, remote.ContactsNotified)
	assert.Equal(t, "Baker St", remote.Location)
	require.NotNil(t, remote.Latitude)
	assert.Equal(t, 51.5, *remote.Latitude)
	assert.True(t, rec.Timestamp.Equal(remote.Timestamp))

	after, err := f.store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusSynced, after.Status)
	assert.Equal(t, rec.ContactsJSON, after.ContactsJSON)
}

func TestGetSyncCandidatesMergesOldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	insert := func(alertID string, offset time.Duration, status models.AlertStatus, attempts int) {
		_, err := f.store.Insert(ctx, models.AlertRecord{
			AlertID: alertID, UserID: "u1", Timestamp: base.Add(offset), Status: status, SyncAttempts: attempts,
		})
		require.NoError(t, err)
	}
	insert("p2", 3*time.Minute, models.AlertStatusPending, 0)
	insert("f1", 2*time.Minute, models.AlertStatusFailed, 1)
	insert("p1", 1*time.Minute, models.AlertStatusPending, 0)
	insert("f-capped", 0, models.AlertStatusFailed, 3)
	insert("s1", 0, models.AlertStatusSynced, 0)

	got, err := f.repo.GetSyncCandidates(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, r := range got {
		ids = append(ids, r.AlertID)
	}
	assert.Equal(t, []string{"p1", "f1", "p2"}, ids)
}

func TestCleanupOldAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	for _, rec := range []models.AlertRecord{
		{AlertID: "synced-45", Timestamp: now.AddDate(0, 0, -45), Status: models.AlertStatusSynced},
		{AlertID: "synced-10", Timestamp: now.AddDate(0, 0, -10), Status: models.AlertStatusSynced},
	} {
		_, err := f.store.Insert(ctx, rec)
		require.NoError(t, err)
	}

	n, err := f.repo.CleanupOldAlerts(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.store.GetByAlertID(ctx, "synced-45")
	assert.True(t, IsNotFound(err))
	_, err = f.store.GetByAlertID(ctx, "synced-10")
	assert.NoError(t, err)
}

func TestDeleteAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.repo.SaveAlert(ctx, draft())
	require.NoError(t, err)
	rec, err := f.store.GetByAlertID(ctx, res.AlertID)
	require.NoError(t, err)

	require.NoError(t, f.repo.DeleteAlert(ctx, rec.ID))
	err = f.repo.DeleteAlert(ctx, rec.ID)
	assert.True(t, IsNotFound(err))
	var lse *LocalStoreError
	assert.ErrorAs(t, err, &lse)
}

func TestGetAllAlertsForUserStreamsChanges(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := f.repo.GetAllAlertsForUser(ctx, "u1")
	select {
	case initial := <-stream:
		assert.Empty(t, initial)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial emission")
	}

	_, err := f.repo.SaveAlert(ctx, draft())
	require.NoError(t, err)

	select {
	case recs := <-stream:
		require.Len(t, recs, 1)
		assert.Equal(t, "u1", recs[0].UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("no emission after save")
	}

	cancel()
	for range stream {
	}
}

func TestUpdateAlertStatusAndGetAllAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.repo.SaveAlert(ctx, draft())
	require.NoError(t, err)
	_, err = f.repo.SaveAlert(ctx, draft())
	require.NoError(t, err)

	rec, err := f.store.GetByAlertID(ctx, first.AlertID)
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateAlertStatus(ctx, rec.ID, models.AlertStatusSynced))

	got, err := f.repo.GetAlert(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusSynced, got.Status)
	require.NotNil(t, got.LastSyncAttempt)

	pending, err := f.repo.GetPendingAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := f.repo.GetAllAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Error(t, f.repo.UpdateAlertStatus(ctx, 9999, models.AlertStatusSynced))
}

func TestSaveAlertKeepsAlertWhenCallerGivesUpDuringPush(t *testing.T) {
	f := newFixture(t)
	f.network.online.Store(true)
	f.remote.stall = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := f.repo.SaveAlert(ctx, draft())
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Equal(t, MessageSavedOffline, res.Message)

	rec, err := f.store.GetByAlertID(context.Background(), res.AlertID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusPending, rec.Status)
}

func TestSyncAlertRecordsAttemptWhenContextExpires(t *testing.T) {
	f := newFixture(t)
	saved, err := f.repo.SaveAlert(context.Background(), draft())
	require.NoError(t, err)
	rec, err := f.store.GetByAlertID(context.Background(), saved.AlertID)
	require.NoError(t, err)

	f.network.online.Store(true)
	f.remote.stall = true
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = f.repo.SyncAlert(ctx, rec)
	var remoteErr *RemoteWriteError
	require.ErrorAs(t, err, &remoteErr)

	got, err := f.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusFailed, got.Status)
	assert.Equal(t, 1, got.SyncAttempts)
	assert.NotNil(t, got.LastSyncAttempt)
}

func TestSyncAlertMarksSyncedWhenCancelledAfterPush(t *testing.T) {
	f := newFixture(t)
	saved, err := f.repo.SaveAlert(context.Background(), draft())
	require.NoError(t, err)
	rec, err := f.store.GetByAlertID(context.Background(), saved.AlertID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.network.online.Store(true)
	f.remote.accepted = cancel

	require.NoError(t, f.repo.SyncAlert(ctx, rec))
	require.Error(t, ctx.Err())

	got, err := f.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusSynced, got.Status)

	candidates, err := f.repo.GetSyncCandidates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
