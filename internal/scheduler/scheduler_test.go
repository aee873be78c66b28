package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/bizops/internal/mail"
	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/reminder"
	"github.com/nhle/bizops/tests/testutil"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(zaptest.NewLogger(t), Config{Registerer: prometheus.NewRegistry()})
	t.Cleanup(s.Stop)
	return s
}

func TestRunNowRecordsStatus(t *testing.T) {
	s := newTestScheduler(t)
	var calls atomic.Int32
	require.NoError(t, s.Add(Job{
		Name:     "count",
		Interval: time.Hour,
		Run: func(context.Context) error {
			calls.Add(1)
			return nil
		},
	}))

	require.NoError(t, s.RunNow(context.Background(), "count"))
	assert.Equal(t, int32(1), calls.Load())

	st := s.Statuses()
	require.Len(t, st, 1)
	assert.Equal(t, "count", st[0].Name)
	assert.Equal(t, "1h0m0s", st[0].Interval)
	assert.Equal(t, StateIdle, st[0].State)
	assert.Equal(t, 1, st[0].Runs)
	assert.NotNil(t, st[0].LastStart)
	assert.NotNil(t, st[0].LastFinish)
	assert.Empty(t, st[0].LastError)
}

func TestRunNowUnknownJob(t *testing.T) {
	s := newTestScheduler(t)
	err := s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunNowRejectsOverlap(t *testing.T) {
	s := newTestScheduler(t)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Add(Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started

	assert.Equal(t, StateRunning, s.Statuses()[0].State)
	assert.ErrorIs(t, s.RunNow(context.Background(), "slow"), ErrJobRunning)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, s.Statuses()[0].Runs)
}

func TestPanicIsRecovered(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Add(Job{
		Name:     "boom",
		Interval: time.Hour,
		Run:      func(context.Context) error { panic("nil map") },
	}))

	err := s.RunNow(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	st := s.Statuses()[0]
	assert.Equal(t, StateError, st.State)
	assert.Contains(t, st.LastError, "nil map")

	// The lock was released despite the panic.
	err = s.RunNow(context.Background(), "boom")
	assert.NotErrorIs(t, err, ErrJobRunning)
}

func TestJobErrorSetsErrorState(t *testing.T) {
	s := newTestScheduler(t)
	fail := true
	require.NoError(t, s.Add(Job{
		Name:     "flaky",
		Interval: time.Hour,
		Run: func(context.Context) error {
			if fail {
				return errors.New("db down")
			}
			return nil
		},
	}))

	require.Error(t, s.RunNow(context.Background(), "flaky"))
	assert.Equal(t, StateError, s.Statuses()[0].State)

	fail = false
	require.NoError(t, s.RunNow(context.Background(), "flaky"))
	st := s.Statuses()[0]
	assert.Equal(t, StateIdle, st.State)
	assert.Empty(t, st.LastError)
	assert.Equal(t, 2, st.Runs)
}

func TestTickerRunsJobsUntilStopped(t *testing.T) {
	s := newTestScheduler(t)
	var calls atomic.Int32
	require.NoError(t, s.Add(Job{
		Name:     "fast",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			calls.Add(1)
			return nil
		},
	}))

	s.Start(context.Background())
	s.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestSlowRunSkipsTicks(t *testing.T) {
	s := newTestScheduler(t)
	release := make(chan struct{})
	require.NoError(t, s.Add(Job{
		Name:       "slow",
		Interval:   5 * time.Millisecond,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	}))

	// Hold the lock from outside so every tick sees a run in progress.
	unlock, err := s.locker.TryLock(context.Background(), "slow")
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return promtest.ToFloat64(s.skipped.WithLabelValues("slow")) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, s.Statuses()[0].Skipped, 2)
	assert.Zero(t, s.Statuses()[0].Runs)

	unlock()
	close(release)
	s.Stop()
}

func TestStopCancelsInFlightRun(t *testing.T) {
	s := newTestScheduler(t)
	started := make(chan struct{})
	require.NoError(t, s.Add(Job{
		Name:       "long",
		Interval:   time.Hour,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	s.Start(context.Background())
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, StateError, s.Statuses()[0].State)
}

func TestAddValidation(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add(Job{Name: "", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Add(Job{Name: "zero", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "a", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Add(Job{Name: "a", Interval: time.Second, Run: noop}))

	s.Start(context.Background())
	assert.Error(t, s.Add(Job{Name: "b", Interval: time.Second, Run: noop}))
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, err := l.TryLock(ctx, "job")
	require.NoError(t, err)
	_, err = l.TryLock(ctx, "job")
	assert.ErrorIs(t, err, ErrJobRunning)

	other, err := l.TryLock(ctx, "other")
	require.NoError(t, err)
	other()

	unlock()
	unlock, err = l.TryLock(ctx, "job")
	require.NoError(t, err)
	unlock()
}

func TestRedisLockerReportsBackendErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client, time.Minute, zap.NewNop())
	assert.Equal(t, "bizops:lock:job:ledger", l.Key(model.JobLedger))

	_, err := l.TryLock(context.Background(), model.JobLedger)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrJobRunning)

	// The in-process guard was released after the failure.
	unlock, err := l.local.TryLock(context.Background(), model.JobLedger)
	require.NoError(t, err)
	unlock()
}

func TestReminderJobs(t *testing.T) {
	st := testutil.NewTestStore(t)
	logger := zaptest.NewLogger(t)
	e := reminder.New(st, mail.NewNoop(logger), nil, logger, nil, reminder.DefaultOptions())

	cfg := model.ReminderConfig{
		Mode: model.ModeSplit,
		Jobs: map[string]model.JobConfig{
			model.JobOverdueTasks:         {IntervalSec: 3600, Enabled: true, RunOnStart: true},
			model.JobUpcomingTasks:        {IntervalSec: 21600, Enabled: true},
			model.JobOverdueInvoices:      {IntervalSec: 86400, Enabled: true},
			model.JobUpcomingAppointments: {IntervalSec: 21600, Enabled: true},
			model.JobLedger:               {IntervalSec: 3600, Enabled: false},
		},
	}

	jobs := ReminderJobs(e, cfg)
	var names []string
	for _, j := range jobs {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{
		model.JobOverdueTasks,
		model.JobUpcomingTasks,
		model.JobOverdueInvoices,
		model.JobUpcomingAppointments,
	}, names)
	assert.True(t, jobs[0].RunOnStart)
	assert.Equal(t, 24*time.Hour, jobs[2].Interval)

	cfg.Mode = model.ModeSingle
	jobs = ReminderJobs(e, cfg)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobAll, jobs[0].Name)
	assert.Equal(t, time.Hour, jobs[0].Interval)

	s := newTestScheduler(t)
	require.NoError(t, s.Add(jobs[0]))
	require.NoError(t, s.RunNow(context.Background(), model.JobAll))
}

func TestLockAllReleasesOnConflict(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	held, err := l.TryLock(ctx, "b")
	require.NoError(t, err)

	_, err = LockAll(ctx, l, []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrJobRunning)

	// "a" was handed back when "b" turned out to be held.
	unlockA, err := l.TryLock(ctx, "a")
	require.NoError(t, err)
	unlockA()
	held()

	unlock, err := LockAll(ctx, l, []string{"a", "b", "c"})
	require.NoError(t, err)
	_, err = l.TryLock(ctx, "c")
	assert.ErrorIs(t, err, ErrJobRunning)
	unlock()

	unlockC, err := l.TryLock(ctx, "c")
	require.NoError(t, err)
	unlockC()
}

func TestLeaseLockerSharedThroughStore(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore(t)
	server := NewLeaseLocker(st, time.Minute, zap.NewNop())
	cli := NewLeaseLocker(st, time.Minute, zap.NewNop())

	unlock, err := server.TryLock(ctx, model.JobOverdueTasks)
	require.NoError(t, err)

	_, err = cli.TryLock(ctx, model.JobOverdueTasks)
	assert.ErrorIs(t, err, ErrJobRunning, "another locker on the same database sees the lease")

	other, err := cli.TryLock(ctx, model.JobLedger)
	require.NoError(t, err)
	other()

	unlock()
	unlock, err = cli.TryLock(ctx, model.JobOverdueTasks)
	require.NoError(t, err)
	unlock()
}

func TestLeaseLockerTakesOverExpiredLease(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	crashed := NewLeaseLocker(st, time.Minute, zap.NewNop())
	crashed.now = func() time.Time { return now }
	_, err := crashed.TryLock(ctx, model.JobLedger)
	require.NoError(t, err)

	next := NewLeaseLocker(st, time.Minute, zap.NewNop())
	next.now = func() time.Time { return now.Add(30 * time.Second) }
	_, err = next.TryLock(ctx, model.JobLedger)
	assert.ErrorIs(t, err, ErrJobRunning)

	next.now = func() time.Time { return now.Add(2 * time.Minute) }
	unlock, err := next.TryLock(ctx, model.JobLedger)
	require.NoError(t, err)
	unlock()
}

func TestManualRunAllWaitsForScheduledScan(t *testing.T) {
	st := testutil.NewTestStore(t)
	logger := zaptest.NewLogger(t)
	e := reminder.New(st, mail.NewNoop(logger), nil, logger, nil, reminder.DefaultOptions())
	locker := NewLeaseLocker(st, time.Minute, zap.NewNop())

	s := New(logger, Config{Locker: locker, Registerer: prometheus.NewRegistry()})
	t.Cleanup(s.Stop)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Add(Job{
		Name:     model.JobOverdueTasks,
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), model.JobOverdueTasks) }()
	<-started

	keys := ScanLocks(e, model.JobAll)
	assert.Contains(t, keys, model.JobOverdueTasks)
	_, err := LockAll(context.Background(), locker, keys)
	assert.ErrorIs(t, err, ErrJobRunning)

	close(release)
	require.NoError(t, <-done)

	unlock, err := LockAll(context.Background(), locker, keys)
	require.NoError(t, err)
	unlock()
}

func TestSingleModeJobHoldsScanLocks(t *testing.T) {
	st := testutil.NewTestStore(t)
	logger := zaptest.NewLogger(t)
	e := reminder.New(st, mail.NewNoop(logger), nil, logger, nil, reminder.DefaultOptions())
	locker := NewLocalLocker()

	jobs := ReminderJobs(e, model.ReminderConfig{Mode: model.ModeSingle})
	require.Len(t, jobs, 1)
	assert.Equal(t, reminder.DefaultScans, jobs[0].Locks)

	s := New(logger, Config{Locker: locker, Registerer: prometheus.NewRegistry()})
	t.Cleanup(s.Stop)
	require.NoError(t, s.Add(jobs[0]))

	manual, err := locker.TryLock(context.Background(), model.JobUpcomingTasks)
	require.NoError(t, err)
	assert.ErrorIs(t, s.RunNow(context.Background(), model.JobAll), ErrJobRunning)
	manual()

	require.NoError(t, s.RunNow(context.Background(), model.JobAll))
	assert.Equal(t, []string{model.JobLedger}, ScanLocks(e, model.JobLedger))
}
