package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker hands out one lock per job name. TryLock returns ErrJobRunning
// when the lock is held elsewhere; the returned func releases it.
type Locker interface {
	TryLock(ctx context.Context, job string) (unlock func(), err error)
}

// LocalLocker guards jobs within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) TryLock(_ context.Context, job string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[job] {
		return nil, ErrJobRunning
	}
	l.held[job] = true
	return func() {
		l.mu.Lock()
		delete(l.held, job)
		l.mu.Unlock()
	}, nil
}

// releaseScript deletes the key only while it still holds our token, so
// an expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker guards jobs across processes sharing one Redis. Locks
// expire after ttl so a crashed holder cannot wedge a job forever.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *zap.Logger

	// local keeps this process from racing itself between SET NX and
	// release.
	local *LocalLocker
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		prefix: "bizops:lock:job:",
		logger: logger,
		local:  NewLocalLocker(),
	}
}

// Key returns the Redis key used for job.
func (l *RedisLocker) Key(job string) string {
	return l.prefix + job
}

func (l *RedisLocker) TryLock(ctx context.Context, job string) (func(), error) {
	unlockLocal, err := l.local.TryLock(ctx, job)
	if err != nil {
		return nil, err
	}

	key := l.Key(job)
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		unlockLocal()
		return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		unlockLocal()
		return nil, ErrJobRunning
	}

	return func() {
		defer unlockLocal()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("releasing job lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// LeaseStore persists job leases shared by every process using the same
// database.
type LeaseStore interface {
	AcquireJobLease(ctx context.Context, name, holder string, now, until time.Time) (bool, error)
	ReleaseJobLease(ctx context.Context, name, holder string) error
}

// LeaseLocker guards jobs across processes through the database, so a
// manual scan and a running server see each other's locks without Redis.
// Leases expire after ttl, which should outlast a run.
type LeaseLocker struct {
	store  LeaseStore
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
	local  *LocalLocker
}

func NewLeaseLocker(s LeaseStore, ttl time.Duration, logger *zap.Logger) *LeaseLocker {
	return &LeaseLocker{
		store:  s,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		local:  NewLocalLocker(),
	}
}

func (l *LeaseLocker) TryLock(ctx context.Context, job string) (func(), error) {
	unlockLocal, err := l.local.TryLock(ctx, job)
	if err != nil {
		return nil, err
	}

	holder := uuid.New().String()
	now := l.now()
	ok, err := l.store.AcquireJobLease(ctx, job, holder, now, now.Add(l.ttl))
	if err != nil {
		unlockLocal()
		return nil, err
	}
	if !ok {
		unlockLocal()
		return nil, ErrJobRunning
	}

	return func() {
		defer unlockLocal()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.ReleaseJobLease(ctx, job, holder); err != nil {
			l.logger.Warn("releasing job lease", zap.String("job", job), zap.Error(err))
		}
	}, nil
}

// LockAll takes the lock for every key in order. If any key is held, the
// ones already taken are released and the error is returned.
func LockAll(ctx context.Context, l Locker, keys []string) (func(), error) {
	unlocks := make([]func(), 0, len(keys))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, key := range keys {
		unlock, err := l.TryLock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
