package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/bizops/internal/api"
	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/notify"
	"github.com/nhle/bizops/internal/reminder"
	"github.com/nhle/bizops/internal/scheduler"
	"github.com/nhle/bizops/internal/store"
	"github.com/nhle/bizops/tests/testutil"
)

type env struct {
	store   *store.SQLStore
	hub     *notify.Hub
	sched   *scheduler.Scheduler
	handler http.Handler
}

func newEnv(t *testing.T, jobs ...scheduler.Job) *env {
	t.Helper()

	logger := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	reminder.NewMetrics(reg)

	s := testutil.NewTestStore(t)
	hub := notify.NewHub(nil, logger)
	sched := scheduler.New(logger, scheduler.Config{Registerer: reg})
	for _, j := range jobs {
		require.NoError(t, sched.Add(j))
	}

	return &env{
		store: s,
		hub:   hub,
		sched: sched,
		handler: api.NewHandler(api.Deps{
			Store:       s,
			Jobs:        sched,
			Feed:        hub,
			Gatherer:    reg,
			CORSOrigins: []string{"http://localhost:3000"},
			Logger:      logger,
		}),
	}
}

func (e *env) do(t *testing.T, method, path, user string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) seedNotification(t *testing.T, userID, title string) *model.Notification {
	t.Helper()
	n := &model.Notification{
		UserID:            userID,
		Type:              model.NotificationTaskDue,
		Title:             title,
		Message:           title + " message",
		RelatedEntityType: model.EntityTask,
		RelatedEntityID:   "task-1",
	}
	require.NoError(t, e.store.CreateNotification(context.Background(), n))
	return n
}

func TestHealthNeedsNoUser(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/api/notifications", "/api/notifications/unread/count", "/api/reminders/jobs"} {
		rec := e.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestListNotificationsIsOwnerScoped(t *testing.T) {
	e := newEnv(t)
	alice := testutil.SeedUser(t, e.store, model.RoleEmployee)
	bob := testutil.SeedUser(t, e.store, model.RoleEmployee)

	e.seedNotification(t, alice.ID, "first")
	second := e.seedNotification(t, alice.ID, "second")
	e.seedNotification(t, bob.ID, "bob's")

	rec := e.do(t, http.MethodGet, "/api/notifications", alice.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	for _, n := range got {
		assert.Equal(t, alice.ID, n["user_id"])
		assert.Contains(t, n, "is_read")
		assert.Contains(t, n, "related_entity_id")
	}

	require.NoError(t, e.store.MarkNotificationRead(context.Background(), alice.ID, second.ID))
	rec = e.do(t, http.MethodGet, "/api/notifications?unreadOnly=true&limit=10", alice.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0]["title"])

	rec = e.do(t, http.MethodGet, "/api/notifications?limit=zero", alice.ID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stranger := testutil.SeedUser(t, e.store, model.RoleEmployee)
	rec = e.do(t, http.MethodGet, "/api/notifications", stranger.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestMarkReadAndDelete(t *testing.T) {
	e := newEnv(t)
	alice := testutil.SeedUser(t, e.store, model.RoleEmployee)
	bob := testutil.SeedUser(t, e.store, model.RoleEmployee)
	n := e.seedNotification(t, alice.ID, "mine")
	e.seedNotification(t, alice.ID, "also mine")

	rec := e.do(t, http.MethodGet, "/api/notifications/unread/count", alice.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())

	rec = e.do(t, http.MethodPut, "/api/notifications/"+n.ID+"/read", bob.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPut, "/api/notifications/"+n.ID+"/read", alice.ID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/notifications/unread/count", alice.ID)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = e.do(t, http.MethodPut, "/api/notifications/read-all", alice.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":1}`, rec.Body.String())

	rec = e.do(t, http.MethodDelete, "/api/notifications/"+n.ID, bob.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/notifications/"+n.ID, alice.ID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/notifications/"+n.ID, alice.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobEndpoints(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	e := newEnv(t,
		scheduler.Job{
			Name:     model.JobOverdueTasks,
			Interval: time.Hour,
			Run:      func(context.Context) error { return nil },
		},
		scheduler.Job{
			Name:     model.JobLedger,
			Interval: time.Hour,
			Run: func(ctx context.Context) error {
				close(started)
				select {
				case <-release:
				case <-ctx.Done():
				}
				return nil
			},
		},
	)

	rec := e.do(t, http.MethodPost, "/api/reminders/jobs/"+model.JobOverdueTasks+"/run", "admin")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/reminders/jobs/nope/run", "admin")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	done := make(chan int, 1)
	go func() {
		done <- e.do(t, http.MethodPost, "/api/reminders/jobs/"+model.JobLedger+"/run", "admin").Code
	}()
	<-started
	rec = e.do(t, http.MethodPost, "/api/reminders/jobs/"+model.JobLedger+"/run", "admin")
	assert.Equal(t, http.StatusConflict, rec.Code)
	close(release)
	assert.Equal(t, http.StatusAccepted, <-done)

	rec = e.do(t, http.MethodGet, "/api/reminders/jobs", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	var statuses []scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, model.JobOverdueTasks, statuses[0].Name)
	assert.Equal(t, 1, statuses[0].Runs)
	assert.Equal(t, scheduler.StateIdle, statuses[1].State)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	// Vectors without observations are not exported, but the registry
	// still answers.
	assert.NotContains(t, rec.Body.String(), "bizops_reminder_emails_total{")
}

func TestLiveFeedStreamsOwnNotifications(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.handler)
	t.Cleanup(srv.Close)

	header := http.Header{}
	header.Set("X-User-ID", "u-1")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })

	require.Eventually(t, func() bool { return e.hub.Connections("u-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	e.hub.Publish(model.Notification{ID: "n-2", UserID: "u-2", Title: "not yours"})
	e.hub.Publish(model.Notification{ID: "n-1", UserID: "u-1", Title: "Overdue Task"})

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got model.Notification
	require.NoError(t, ws.ReadJSON(&got))
	assert.Equal(t, "n-1", got.ID)
	assert.Equal(t, "Overdue Task", got.Title)

	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRunJobOutlivesClientDisconnect(t *testing.T) {
	finished := make(chan error, 1)
	started := make(chan struct{})
	e := newEnv(t, scheduler.Job{
		Name:     model.JobOverdueInvoices,
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			close(started)
			select {
			case <-ctx.Done():
				finished <- ctx.Err()
			case <-time.After(100 * time.Millisecond):
				finished <- nil
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/reminders/jobs/"+model.JobOverdueInvoices+"/run", nil).WithContext(ctx)
	req.Header.Set("X-User-ID", "admin")

	go func() {
		<-started
		cancel()
	}()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.NoError(t, <-finished, "the run kept going after the client left")
}
