package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, opts Options) *Redis {
	t.Helper()
	l, _ := newRedisLockerWithServer(t, opts)
	return l
}

func newRedisLockerWithServer(t *testing.T, opts Options) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, opts), mr
}

func lockers(t *testing.T, opts Options) map[string]Locker {
	return map[string]Locker{
		"redis": newRedisLocker(t, opts),
		"local": NewLocal(opts),
	}
}

func TestWithLock_RunsFn(t *testing.T) {
	for name, l := range lockers(t, DefaultOptions()) {
		t.Run(name, func(t *testing.T) {
			ran := false
			err := l.WithLock(context.Background(), Key("bso-1"), func(context.Context) error {
				ran = true
				return nil
			})
			require.NoError(t, err)
			assert.True(t, ran)
		})
	}
}

func TestWithLock_ReturnsFnError(t *testing.T) {
	boom := errors.New("boom")
	for name, l := range lockers(t, DefaultOptions()) {
		t.Run(name, func(t *testing.T) {
			err := l.WithLock(context.Background(), Key("bso-1"), func(context.Context) error {
				return boom
			})
			assert.ErrorIs(t, err, boom)

			// lock must be released after an error
			err = l.WithLock(context.Background(), Key("bso-1"), func(context.Context) error { return nil })
			assert.NoError(t, err)
		})
	}
}

func TestWithLock_Busy(t *testing.T) {
	opts := Options{Expiry: 5 * time.Second, Tries: 2, RetryDelay: 10 * time.Millisecond}
	for name, l := range lockers(t, opts) {
		t.Run(name, func(t *testing.T) {
			held := make(chan struct{})
			release := make(chan struct{})
			done := make(chan error, 1)

			go func() {
				done <- l.WithLock(context.Background(), Key("bso-1"), func(context.Context) error {
					close(held)
					<-release
					return nil
				})
			}()
			<-held

			err := l.WithLock(context.Background(), Key("bso-1"), func(context.Context) error {
				t.Error("fn must not run while lock is held")
				return nil
			})
			assert.ErrorIs(t, err, ErrBusy)

			// a different order is unaffected
			err = l.WithLock(context.Background(), Key("bso-2"), func(context.Context) error { return nil })
			assert.NoError(t, err)

			close(release)
			require.NoError(t, <-done)
		})
	}
}

func TestLocal_Serializes(t *testing.T) {
	l := NewLocal(Options{Tries: 100, RetryDelay: 10 * time.Millisecond})

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), Key("bso-1"), func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxSeen)
					if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Empty(t, l.slots, "slots should be released")
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal(Options{Tries: 1000, RetryDelay: time.Second})
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "k", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, "k", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedis_ExtendsLockPastExpiry(t *testing.T) {
	opts := Options{Expiry: 10 * time.Second, Refresh: 20 * time.Millisecond, Tries: 1, RetryDelay: time.Millisecond}
	first, mr := newRedisLockerWithServer(t, opts)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	second := NewRedis(client, opts)

	var innerErr error
	err := first.WithLock(context.Background(), Key("bso-1"), func(ctx context.Context) error {
		// 18s of lock time pass while the holder is still working
		for i := 0; i < 3; i++ {
			mr.FastForward(6 * time.Second)
			time.Sleep(100 * time.Millisecond)
		}
		innerErr = second.WithLock(context.Background(), Key("bso-1"), func(context.Context) error {
			t.Error("second writer must not run while the first holds the lock")
			return nil
		})
		return ctx.Err()
	})

	require.NoError(t, err)
	assert.ErrorIs(t, innerErr, ErrBusy)
}

func TestRedis_LostLockCancelsFn(t *testing.T) {
	opts := Options{Expiry: 10 * time.Second, Refresh: 20 * time.Millisecond, Tries: 1, RetryDelay: time.Millisecond}
	l, mr := newRedisLockerWithServer(t, opts)

	err := l.WithLock(context.Background(), Key("bso-1"), func(ctx context.Context) error {
		mr.FastForward(11 * time.Second)

		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("context not cancelled after the lock expired")
		}
		assert.ErrorIs(t, context.Cause(ctx), ErrLockLost)
		return ctx.Err()
	})

	assert.ErrorIs(t, err, ErrLockLost)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptions_RefreshDefaultsBelowExpiry(t *testing.T) {
	o := Options{Expiry: 9 * time.Second, Refresh: 9 * time.Second}.withDefaults()
	assert.Equal(t, 3*time.Second, o.Refresh)

	o = Options{}.withDefaults()
	assert.Equal(t, DefaultOptions(), o)
}
