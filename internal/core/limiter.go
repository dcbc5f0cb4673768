package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTooManyReleases matches any *BusyError.
var ErrTooManyReleases = errors.New("too many concurrent releases, please try again later")

// DefaultMaxConcurrentReleases is the default limit for parallel releases.
const DefaultMaxConcurrentReleases = 10

// DefaultMaxWaitTime is how long a release waits for a slot before rejecting.
const DefaultMaxWaitTime = 10 * time.Second

// BusyError reports a release turned away because every slot stayed taken
// for the whole wait. RetryAfter is a hint for the client.
type BusyError struct {
	Active     int
	Waited     time.Duration
	RetryAfter time.Duration
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%v (%d active, waited %s)", ErrTooManyReleases, e.Active, e.Waited.Round(time.Millisecond))
}

func (e *BusyError) Is(target error) bool { return target == ErrTooManyReleases }

// ReleaseLimiter bounds how many releases hold a transaction and an order
// lock at once. Shutdown uses WaitForDrain to let in-flight releases commit.
type ReleaseLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.Mutex
	active  int
	waiting int
	idle    chan struct{} // closed while active == 0
}

// NewReleaseLimiter allows at most maxConcurrent releases, each waiting up to
// maxWait for a slot. Non-positive values use the defaults.
func NewReleaseLimiter(maxConcurrent int, maxWait time.Duration) *ReleaseLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentReleases
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	idle := make(chan struct{})
	close(idle)
	return &ReleaseLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		idle:    idle,
	}
}

// Acquire takes a slot and returns the func that gives it back. The func is
// safe to call more than once. A full limiter yields *BusyError after maxWait;
// a cancelled ctx yields ctx.Err().
func (l *ReleaseLimiter) Acquire(ctx context.Context) (func(), error) {
	l.mu.Lock()
	l.waiting++
	l.mu.Unlock()

	start := time.Now()
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	var err error
	select {
	case l.slots <- struct{}{}:
	case <-timer.C:
		err = &BusyError{Waited: time.Since(start), RetryAfter: l.maxWait}
	case <-ctx.Done():
		err = ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.waiting--
	if err != nil {
		var busy *BusyError
		if errors.As(err, &busy) {
			busy.Active = l.active
		}
		return func() {}, err
	}

	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++

	var once sync.Once
	return func() { once.Do(l.release) }, nil
}

func (l *ReleaseLimiter) release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		close(l.idle)
	}
	l.mu.Unlock()

	<-l.slots
}

// WaitForDrain blocks until no release is in progress or ctx is done.
func (l *ReleaseLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LimiterStatus is a snapshot of the limiter, served on /healthz.
type LimiterStatus struct {
	Active        int    `json:"active"`
	Waiting       int    `json:"waiting"`
	Available     int    `json:"available"`
	MaxConcurrent int    `json:"max_concurrent"`
	MaxWait       string `json:"max_wait"`
}

// Status returns the current limiter state.
func (l *ReleaseLimiter) Status() LimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStatus{
		Active:        l.active,
		Waiting:       l.waiting,
		Available:     cap(l.slots) - l.active,
		MaxConcurrent: cap(l.slots),
		MaxWait:       l.maxWait.String(),
	}
}
