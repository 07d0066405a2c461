package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/safeme-sync/internal/alerts"
	"github.com/stanstork/safeme-sync/internal/authz"
	"github.com/stanstork/safeme-sync/internal/models"
	"github.com/stanstork/safeme-sync/internal/network"
	"github.com/stanstork/safeme-sync/internal/notification"
	"github.com/stanstork/safeme-sync/internal/repository"
	"github.com/stanstork/safeme-sync/internal/store"
)

type mockAlertService struct{ mock.Mock }

func (m *mockAlertService) SaveAlert(ctx context.Context, draft models.AlertDraft) (alerts.SaveResult, error) {
	args := m.Called(ctx, draft)
	return args.Get(0).(alerts.SaveResult), args.Error(1)
}

func (m *mockAlertService) ListAlertsForUser(ctx context.Context, userID string) ([]models.AlertRecord, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.AlertRecord), args.Error(1)
}

func (m *mockAlertService) GetPendingAlerts(ctx context.Context) ([]models.AlertRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.AlertRecord), args.Error(1)
}

func (m *mockAlertService) GetAlert(ctx context.Context, id uint) (models.AlertRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.AlertRecord), args.Error(1)
}

func (m *mockAlertService) DeleteAlert(ctx context.Context, id uint) error {
	return m.Called(ctx, id).Error(0)
}

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) List(ctx context.Context, userID string) ([]models.EmergencyContact, error) {
	args := m.Called(ctx, userID)
	contacts, _ := args.Get(0).([]models.EmergencyContact)
	return contacts, args.Error(1)
}

func (m *mockDirectory) Add(ctx context.Context, c models.EmergencyContact) (models.EmergencyContact, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(models.EmergencyContact), args.Error(1)
}

func (m *mockDirectory) Remove(ctx context.Context, userID, contactID string) error {
	return m.Called(ctx, userID, contactID).Error(0)
}

type savedEvents struct{ offline []bool }

func (s *savedEvents) NotifyAlertSaved(_ context.Context, _, _ string, offline bool) error {
	s.offline = append(s.offline, offline)
	return nil
}

type noRemote struct{}

func (noRemote) ListByUser(context.Context, string, int) ([]models.RemoteAlert, error) {
	return nil, nil
}

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(authz.WithIdentity(r.Context(), userID, userID+"@example.com"))
}

func TestAlertCreateSnapshotsContactsAndComposesMessage(t *testing.T) {
	svc := &mockAlertService{}
	dir := &mockDirectory{}
	events := &savedEvents{}
	h := NewAlertHandler(svc, dir, noRemote{}, events, zerolog.Nop())

	dir.On("List", mock.Anything, "u1").Return([]models.EmergencyContact{
		{FullName: "Low", Email: "low@x.io", PriorityLevel: models.PriorityLow},
		{FullName: "High", Email: "high@x.io", PriorityLevel: models.PriorityHigh},
	}, nil)
	svc.On("SaveAlert", mock.Anything, mock.MatchedBy(func(d models.AlertDraft) bool {
		return d.UserID == "u1" &&
			d.UserEmail == "u1@example.com" &&
			len(d.Contacts) == 2 &&
			strings.HasPrefix(d.Message, "🚨 TRAVEL EMERGENCY ALERT 🚨") &&
			strings.Contains(d.Message, "Message: stranded")
	})).Return(alerts.SaveResult{AlertID: "a-1", Offline: true, Message: alerts.MessageSavedOffline}, nil)

	body := `{"type":"Travel Emergency","additional_message":"stranded","location":"Route 9"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/alerts", strings.NewReader(body)), "u1")
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var res alerts.SaveResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "a-1", res.AlertID)
	assert.True(t, res.Offline)
	assert.Equal(t, []bool{true}, events.offline)
	svc.AssertExpectations(t)
}

func TestAlertCreateValidation(t *testing.T) {
	h := NewAlertHandler(&mockAlertService{}, &mockDirectory{}, noRemote{}, &savedEvents{}, zerolog.Nop())

	tests := []struct {
		name string
		body string
	}{
		{"missing type", `{"additional_message":"x"}`},
		{"half coordinates", `{"type":"Medical","latitude":1.5}`},
		{"bad json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Create(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/alerts", strings.NewReader(tt.body)), "u1"))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAlertCreateRequiresUser(t *testing.T) {
	h := NewAlertHandler(&mockAlertService{}, &mockDirectory{}, noRemote{}, &savedEvents{}, zerolog.Nop())
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/alerts", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAlertPendingIsScopedToUser(t *testing.T) {
	svc := &mockAlertService{}
	h := NewAlertHandler(svc, &mockDirectory{}, noRemote{}, &savedEvents{}, zerolog.Nop())
	svc.On("GetPendingAlerts", mock.Anything).Return([]models.AlertRecord{
		{ID: 1, UserID: "u1", Timestamp: time.Now().Add(-time.Hour)},
		{ID: 2, UserID: "u2"},
		{ID: 3, UserID: "u1"},
	}, nil)

	rec := httptest.NewRecorder()
	h.CountPending(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/alerts/pending/count", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var count map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&count))
	assert.Equal(t, 2, count["count"])
}

func TestAlertDelete(t *testing.T) {
	svc := &mockAlertService{}
	h := NewAlertHandler(svc, &mockDirectory{}, noRemote{}, &savedEvents{}, zerolog.Nop())
	router := mux.NewRouter()
	router.HandleFunc("/api/alerts/{id}", h.Delete)

	svc.On("GetAlert", mock.Anything, uint(7)).Return(models.AlertRecord{ID: 7, UserID: "u1"}, nil)
	svc.On("GetAlert", mock.Anything, uint(8)).Return(models.AlertRecord{ID: 8, UserID: "u2"}, nil)
	svc.On("GetAlert", mock.Anything, uint(9)).Return(models.AlertRecord{}, &alerts.LocalStoreError{Op: "get", Err: store.ErrAlertNotFound})
	svc.On("DeleteAlert", mock.Anything, uint(7)).Return(nil)

	for path, want := range map[string]int{
		"/api/alerts/7":   http.StatusOK,
		"/api/alerts/8":   http.StatusNotFound,
		"/api/alerts/9":   http.StatusNotFound,
		"/api/alerts/abc": http.StatusBadRequest,
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodDelete, path, nil), "u1"))
		assert.Equal(t, want, rec.Code, path)
	}
	svc.AssertNumberOfCalls(t, "DeleteAlert", 1)
}

type fakeReach bool

func (f fakeReach) Reachable(context.Context) bool { return bool(f) }

type countingScheduler struct{ calls int }

func (c *countingScheduler) ScheduleImmediate(context.Context) error {
	c.calls++
	return nil
}

type fakeMonitor struct{ signals int }

func (f *fakeMonitor) Signal() { f.signals++ }

func (f *fakeMonitor) State() network.State { return network.State{Online: true} }

func TestSyncNow(t *testing.T) {
	sched := &countingScheduler{}

	rec := httptest.NewRecorder()
	NewSyncHandler(fakeReach(false), sched, &fakeMonitor{}, zerolog.Nop()).SyncNow(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, sched.calls)

	rec = httptest.NewRecorder()
	NewSyncHandler(fakeReach(true), sched, &fakeMonitor{}, zerolog.Nop()).SyncNow(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, sched.calls)
}

func TestConnectivityChangedSignalsMonitor(t *testing.T) {
	mon := &fakeMonitor{}
	h := NewSyncHandler(fakeReach(true), &countingScheduler{}, mon, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ConnectivityChanged(rec, httptest.NewRequest(http.MethodPost, "/api/connectivity", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, mon.signals)

	rec = httptest.NewRecorder()
	h.Connectivity(rec, httptest.NewRequest(http.MethodGet, "/api/connectivity", nil))
	var state network.State
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&state))
	assert.True(t, state.Online)
}

func TestContactCreateAndDelete(t *testing.T) {
	dir := &mockDirectory{}
	h := NewContactHandler(dir, zerolog.Nop())
	router := mux.NewRouter()
	router.HandleFunc("/api/contacts", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/api/contacts/{id}", h.Delete).Methods(http.MethodDelete)

	dir.On("Add", mock.Anything, mock.MatchedBy(func(c models.EmergencyContact) bool {
		return c.UserID == "u1" && c.FullName == "Ann" && c.ID == ""
	})).Return(models.EmergencyContact{ID: "c-1", UserID: "u1", FullName: "Ann"}, nil)
	dir.On("Remove", mock.Anything, "u1", "missing").Return(repository.ErrContactNotFound)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/contacts",
		strings.NewReader(`{"id":"forged","user_id":"u2","full_name":"Ann","priority_level":"High"}`)), "u1"))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/contacts",
		strings.NewReader(`{"full_name":"Bo","priority_level":"Urgent"}`)), "u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodDelete, "/api/contacts/missing", nil), "u1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type memoryTokens struct{ tokens map[string]string }

func (m *memoryTokens) SetPushToken(_ context.Context, userID, token string) error {
	m.tokens[userID] = token
	return nil
}

func (m *memoryTokens) GetPushToken(_ context.Context, userID string) (string, error) {
	token, ok := m.tokens[userID]
	if !ok {
		return "", repository.ErrPushTokenNotFound
	}
	return token, nil
}

func (m *memoryTokens) DeletePushToken(_ context.Context, userID string) error {
	delete(m.tokens, userID)
	return nil
}

func TestPushTokenSetAndDelete(t *testing.T) {
	tokens := &memoryTokens{tokens: map[string]string{}}
	h := NewPushTokenHandler(tokens, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Set(rec, asUser(httptest.NewRequest(http.MethodPut, "/api/push-token", strings.NewReader(`{"token":" fcm-abc "}`)), "u1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "fcm-abc", tokens.tokens["u1"])

	rec = httptest.NewRecorder()
	h.Set(rec, asUser(httptest.NewRequest(http.MethodPut, "/api/push-token", strings.NewReader(`{"token":""}`)), "u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Delete(rec, asUser(httptest.NewRequest(http.MethodDelete, "/api/push-token", nil), "u1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, tokens.tokens, "u1")
}

type historyRemote struct {
	gotUser  string
	gotLimit int
	err      error
}

func (h *historyRemote) ListByUser(_ context.Context, userID string, limit int) ([]models.RemoteAlert, error) {
	h.gotUser, h.gotLimit = userID, limit
	if h.err != nil {
		return nil, h.err
	}
	return []models.RemoteAlert{{AlertID: "a-1", UserID: userID}}, nil
}

func TestAlertHistory(t *testing.T) {
	remote := &historyRemote{}
	h := NewAlertHandler(&mockAlertService{}, &mockDirectory{}, remote, &savedEvents{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.History(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/alerts/history?limit=5", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", remote.gotUser)
	assert.Equal(t, 5, remote.gotLimit)

	remote.err = errors.New("unreachable")
	rec = httptest.NewRecorder()
	h.History(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/alerts/history", nil), "u1"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 50, remote.gotLimit)
}

type mockNotificationService struct {
	notification.Service
	mock.Mock
}

func (m *mockNotificationService) List(ctx context.Context, filter repository.NotificationFilter) ([]models.Notification, error) {
	args := m.Called(ctx, filter)
	notifs, _ := args.Get(0).([]models.Notification)
	return notifs, args.Error(1)
}

func (m *mockNotificationService) UnreadCounts(ctx context.Context, userID string) (map[models.NotificationEvent]int, error) {
	args := m.Called(ctx, userID)
	counts, _ := args.Get(0).(map[models.NotificationEvent]int)
	return counts, args.Error(1)
}

func TestNotificationListPassesFilter(t *testing.T) {
	svc := &mockNotificationService{}
	want := repository.NotificationFilter{
		UserID:     "u1",
		Events:     []models.NotificationEvent{models.NotificationEventAlertSaved, models.NotificationEventSyncCompleted},
		AlertID:    "a-1",
		UnreadOnly: true,
		Limit:      10,
	}
	svc.On("List", mock.Anything, want).Return([]models.Notification{{ID: "n-1", EventType: models.NotificationEventAlertSaved}}, nil)
	h := NewNotificationHandler(svc, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/notifications?event=alert_saved&event=sync_completed&alert_id=a-1&unread=true&limit=10", nil)
	rec := httptest.NewRecorder()
	h.List(rec, asUser(req, "u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Notifications []models.Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Notifications, 1)
	svc.AssertExpectations(t)
}

func TestNotificationListRejectsUnknownEvent(t *testing.T) {
	svc := &mockNotificationService{}
	h := NewNotificationHandler(svc, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.List(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/notifications?event=alert_deleted", nil), "u1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestNotificationUnreadCounts(t *testing.T) {
	svc := &mockNotificationService{}
	svc.On("UnreadCounts", mock.Anything, "u1").Return(map[models.NotificationEvent]int{
		models.NotificationEventAlertSaved:    2,
		models.NotificationEventSyncCompleted: 1,
	}, nil)
	h := NewNotificationHandler(svc, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.UnreadCounts(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/notifications/unread", nil), "u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Total   int            `json:"total"`
		ByEvent map[string]int `json:"by_event"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 2, body.ByEvent["alert_saved"])
}
