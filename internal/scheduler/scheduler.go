// Package scheduler runs named jobs on fixed intervals with a
// run-in-progress guard, so a slow run is never overlapped by the next
// tick of the same job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	// ErrJobRunning is returned when a run is requested while the previous
	// run of the same job is still active.
	ErrJobRunning = errors.New("job is already running")

	// ErrUnknownJob is returned for a job name that was never added.
	ErrUnknownJob = errors.New("unknown job")
)

// defaultRunTimeout bounds a single run when Config.RunTimeout is unset.
const defaultRunTimeout = 10 * time.Minute

// Job is a unit of periodic work.
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context) error

	// Locks lists the lock keys held while the job runs. Empty means
	// the job's own name.
	Locks []string
}

func (j Job) lockKeys() []string {
	if len(j.Locks) == 0 {
		return []string{j.Name}
	}
	return j.Locks
}

// State is the lifecycle state of a job.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateError   State = "error"
)

// Status is a snapshot of one job.
type Status struct {
	Name       string     `json:"name"`
	Interval   string     `json:"interval"`
	State      State      `json:"state"`
	LastStart  *time.Time `json:"last_start,omitempty"`
	LastFinish *time.Time `json:"last_finish,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	Runs       int        `json:"runs"`
	Skipped    int        `json:"skipped"`
}

// Config holds optional scheduler dependencies.
type Config struct {
	// Locker guards against overlapping runs. Defaults to a LocalLocker.
	Locker Locker

	// Registerer receives the skipped-ticks counter. Nil skips
	// registration.
	Registerer prometheus.Registerer

	// RunTimeout bounds each run. Defaults to 10 minutes.
	RunTimeout time.Duration
}

type entry struct {
	job    Job
	status Status
}

// Scheduler owns a set of jobs and their tickers.
type Scheduler struct {
	logger     *zap.Logger
	locker     Locker
	runTimeout time.Duration
	skipped    *prometheus.CounterVec

	mu      sync.Mutex
	jobs    []*entry
	byName  map[string]*entry
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// New creates an empty scheduler.
func New(logger *zap.Logger, cfg Config) *Scheduler {
	if cfg.Locker == nil {
		cfg.Locker = NewLocalLocker()
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	return &Scheduler{
		logger:     logger.With(zap.String("component", "scheduler")),
		locker:     cfg.Locker,
		runTimeout: cfg.RunTimeout,
		skipped: promauto.With(cfg.Registerer).NewCounterVec(prometheus.CounterOpts{
			Name: "bizops_scheduler_skipped_ticks_total",
			Help: "Ticks skipped because the previous run was still active.",
		}, []string{"job"}),
		byName: make(map[string]*entry),
	}
}

// Add registers a job. Jobs must be added before Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("adding job: name and run func are required")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("adding job %s: interval must be positive", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("adding job %s: scheduler already started", job.Name)
	}
	if _, ok := s.byName[job.Name]; ok {
		return fmt.Errorf("adding job %s: duplicate name", job.Name)
	}

	e := &entry{
		job: job,
		status: Status{
			Name:     job.Name,
			Interval: job.Interval.String(),
			State:    StateIdle,
		},
	}
	s.jobs = append(s.jobs, e)
	s.byName[job.Name] = e
	return nil
}

// Start launches one goroutine per job. Calling Start on a running
// scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, e := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop cancels every loop and in-flight run and waits for them to
// return. Calling Stop on a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow runs the named job synchronously through the same guard the
// tickers use.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, e)
}

// Statuses returns a snapshot of every job in registration order.
func (s *Scheduler) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.jobs))
	for _, e := range s.jobs {
		st := e.status
		if st.LastStart != nil {
			t := *st.LastStart
			st.LastStart = &t
		}
		if st.LastFinish != nil {
			t := *st.LastFinish
			st.LastFinish = &t
		}
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	ticker := time.NewTicker(e.job.Interval)
	defer ticker.Stop()

	if e.job.RunOnStart {
		s.tick(ctx, e)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, e)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, e *entry) {
	err := s.run(ctx, e)
	if !errors.Is(err, ErrJobRunning) {
		return
	}
	s.skipped.WithLabelValues(e.job.Name).Inc()
	s.mu.Lock()
	e.status.Skipped++
	s.mu.Unlock()
	s.logger.Warn("previous run still active, skipping tick", zap.String("job", e.job.Name))
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	unlock, err := LockAll(ctx, s.locker, e.job.lockKeys())
	if err != nil {
		if !errors.Is(err, ErrJobRunning) {
			s.logger.Error("acquiring job lock", zap.String("job", e.job.Name), zap.Error(err))
		}
		return err
	}
	defer unlock()

	start := time.Now()
	s.mu.Lock()
	e.status.State = StateRunning
	e.status.LastStart = &start
	s.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()
	err = s.safeRun(runCtx, e.job)

	finish := time.Now()
	s.mu.Lock()
	e.status.Runs++
	e.status.LastFinish = &finish
	if err != nil {
		e.status.State = StateError
		e.status.LastError = err.Error()
	} else {
		e.status.State = StateIdle
		e.status.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			zap.String("job", e.job.Name),
			zap.Duration("took", finish.Sub(start)),
			zap.Error(err),
		)
	}
	return err
}

// safeRun converts a panic inside the job into an error.
func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked",
				zap.String("job", job.Name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx)
}
