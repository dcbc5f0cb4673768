// Package lock serializes releases per blanket order.
//
// A release reads an order, reconciles it and writes it back. Two releases
// racing on the same order would each see the old remaining quantities, so
// the service holds a lock keyed by order ID for the whole read-modify-write.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/bso/internal/logging"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when the lock is held elsewhere and could not be
// acquired within the configured attempts.
var ErrBusy = errors.New("lock busy")

// ErrLockLost is the cancellation cause of fn's context when a held Redis
// lock could not be extended. It matches ErrBusy.
var ErrLockLost = fmt.Errorf("%w: lock lost before release finished", ErrBusy)

// Locker runs fn while holding the lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Options controls acquisition.
type Options struct {
	// Expiry is how long a Redis lock lives if its holder dies.
	Expiry time.Duration
	// Refresh is how often a held Redis lock is extended back to Expiry.
	Refresh time.Duration
	// Tries is the number of acquisition attempts before ErrBusy.
	Tries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// DefaultOptions returns options suited to a release, which finishes in well
// under a second.
func DefaultOptions() Options {
	return Options{
		Expiry:     10 * time.Second,
		Refresh:    3 * time.Second,
		Tries:      20,
		RetryDelay: 100 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Expiry <= 0 {
		o.Expiry = d.Expiry
	}
	if o.Tries <= 0 {
		o.Tries = d.Tries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.Refresh <= 0 || o.Refresh >= o.Expiry {
		o.Refresh = min(d.Refresh, o.Expiry/3)
	}
	return o
}

// Key returns the lock key for a blanket order.
func Key(orderID string) string {
	return "lock:bso:" + orderID
}

// Redis is a Locker backed by redsync, for deployments with several
// instances behind a load balancer.
type Redis struct {
	rs   *redsync.Redsync
	opts Options
}

// NewRedis builds a Redis locker on an existing client.
func NewRedis(client redis.UniversalClient, opts Options) *Redis {
	return &Redis{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts.withDefaults(),
	}
}

// WithLock holds the mutex for key while fn runs, extending it every
// Options.Refresh. If an extension fails the lock may already belong to
// someone else, so fn's context is cancelled with ErrLockLost.
func (r *Redis) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("lock: empty key")
	}

	mutex := r.rs.NewMutex(key,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
		redsync.WithRetryDelay(r.opts.RetryDelay),
	)

	logger := logging.WithFields(ctx, "lock_key", key)

	if err := mutex.LockContext(ctx); err != nil {
		if isContention(err) {
			logger.Debug("lock busy")
			return fmt.Errorf("%w: %s", ErrBusy, key)
		}
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}

	defer func() {
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			logger.Warn("failed to release lock", "unlock_ok", ok, "error", err)
		}
	}()

	held, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.keepAlive(held, mutex, stop, cancel, logger)
	}()

	err := fn(held)
	close(stop)
	wg.Wait()

	if cause := context.Cause(held); errors.Is(cause, ErrLockLost) && err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLockLost, key, err)
	}
	return err
}

func (r *Redis) keepAlive(ctx context.Context, mutex *redsync.Mutex, stop <-chan struct{}, cancel context.CancelCauseFunc, logger *slog.Logger) {
	ticker := time.NewTicker(r.opts.Refresh)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := mutex.ExtendContext(ctx)
			if ok && err == nil {
				continue
			}
			logger.Warn("lock extension failed", "extend_ok", ok, "error", err)
			cancel(ErrLockLost)
			return
		}
	}
}

// redsync reports contention either as ErrFailed or as a "lock already
// taken" error depending on how many nodes answered.
func isContention(err error) bool {
	if errors.Is(err, redsync.ErrFailed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "lock already taken") || strings.Contains(msg, "failed to acquire lock")
}

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	opts Options

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an in-process locker. Only Tries and RetryDelay are used;
// together they bound how long WithLock waits. A local slot never expires.
func NewLocal(opts Options) *Local {
	return &Local{
		opts:  opts.withDefaults(),
		slots: make(map[string]*slot),
	}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	s := l.ref(key)
	defer l.unref(key)

	wait := time.Duration(l.opts.Tries) * l.opts.RetryDelay
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrBusy, key)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.ch }()

	return fn(ctx)
}

func (l *Local) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s := l.slots[key]; s != nil {
		s.refs--
		if s.refs == 0 {
			delete(l.slots, key)
		}
	}
}
