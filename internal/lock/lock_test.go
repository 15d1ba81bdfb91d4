package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/logger"
)

// setupTestRedis returns a client backed by an in-memory miniredis server.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

// assertMutualExclusion runs workers that each take the lock and checks
// that no two ever hold it at once.
func assertMutualExclusion(t *testing.T, l Locker, key string) {
	const workers = 10
	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
		done    int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			atomic.AddInt32(&done, 1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen, "lock must never be held twice")
	assert.Equal(t, int32(workers), done)
}

func TestKeyedMutex_MutualExclusion(t *testing.T) {
	km := NewKeyedMutex()
	assertMutualExclusion(t, km, "event:1")
	assert.Zero(t, km.size(), "entries should be dropped after release")
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	release1, err := km.Acquire(context.Background(), "event:1")
	require.NoError(t, err)
	defer release1()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	release2, err := km.Acquire(ctx, "event:2")
	require.NoError(t, err, "a different event must not block")
	release2()
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	km := NewKeyedMutex()
	release, err := km.Acquire(context.Background(), "event:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Acquire(ctx, "event:1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	release()
	release() // second call is a no-op
	assert.Zero(t, km.size())
}

func TestRedis_MutualExclusion(t *testing.T) {
	client, _ := setupTestRedis(t)
	r := NewRedis(client, logger.Discard(), 5*time.Second, 5*time.Second)
	assertMutualExclusion(t, r, "event:42")

	held, err := r.Held(context.Background(), "event:42")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestRedis_WaitTimeout(t *testing.T) {
	client, _ := setupTestRedis(t)
	r := NewRedis(client, logger.Discard(), 5*time.Second, 30*time.Millisecond)

	release, err := r.Acquire(context.Background(), "event:1")
	require.NoError(t, err)
	defer release()

	_, err = r.Acquire(context.Background(), "event:1")
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestRedis_ReleaseOnlyOwnLock(t *testing.T) {
	client, mr := setupTestRedis(t)
	r := NewRedis(client, logger.Discard(), time.Second, time.Second)
	ctx := context.Background()

	release, err := r.Acquire(ctx, "event:7")
	require.NoError(t, err)

	// the lock expires and someone else takes it
	mr.FastForward(2 * time.Second)
	other, err := r.Acquire(ctx, "event:7")
	require.NoError(t, err)

	// stale release must not free the new holder's lock
	release()
	held, err := r.Held(ctx, "event:7")
	require.NoError(t, err)
	assert.True(t, held)

	other()
	held, err = r.Held(ctx, "event:7")
	require.NoError(t, err)
	assert.False(t, held)
}
