package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestSetGetAndExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New[string](WithClock(clock.Now))

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Set("k", "v", time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	clock.Advance(59 * time.Second)
	_, ok = c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry at its expiry instant is absent")
	assert.Equal(t, 0, c.Stats().Size, "expired entry is dropped on read")
}

func TestDefaultTTL(t *testing.T) {
	clock := newFakeClock()
	c := New[int](WithClock(clock.Now), WithDefaultTTL(time.Second))

	c.Set("a", 1, 0)
	clock.Advance(2 * time.Second)
	_, ok := c.Get("a")
	assert.False(t, ok)

	forever := New[int](WithClock(clock.Now))
	forever.Set("a", 1, 0)
	clock.Advance(24 * time.Hour)
	_, ok = forever.Get("a")
	assert.True(t, ok)
}

func TestDeletePatternIsExact(t *testing.T) {
	c := New[int]()
	for _, k := range []string{
		"user:123:a", "user:123:b:c", "user:1234:a", "user:12:a",
		"profile:123:doc", "xuser:123:a", "user:123",
	} {
		c.Set(k, 1, 0)
	}

	n := c.DeletePattern("user:123:*")

	assert.Equal(t, 2, n)
	var left []string
	for _, k := range []string{"user:123:a", "user:123:b:c", "user:1234:a", "user:12:a", "profile:123:doc", "xuser:123:a", "user:123"} {
		if _, ok := c.Get(k); ok {
			left = append(left, k)
		}
	}
	sort.Strings(left)
	assert.Equal(t, []string{"profile:123:doc", "user:123", "user:1234:a", "user:12:a", "xuser:123:a"}, left)
}

func TestDeletePatternEscapesRegexpMeta(t *testing.T) {
	c := New[int]()
	c.Set("a.b:1", 1, 0)
	c.Set("axb:1", 1, 0)

	assert.Equal(t, 1, c.DeletePattern("a.b:*"))
	_, ok := c.Get("axb:1")
	assert.True(t, ok)
}

func TestInvalidateUser(t *testing.T) {
	c := New[int]()
	c.Set(UserKey("user", "7", "x"), 1, 0)
	c.Set(UserKey("profile", "7", "doc"), 1, 0)
	c.Set(UserKey("context", "7", "record"), 1, 0)
	c.Set(UserKey("context", "70", "record"), 1, 0)
	c.Set("response:abc", 1, 0)

	assert.Equal(t, 3, c.InvalidateUser("7"))
	assert.Equal(t, 2, c.Stats().Size)
}

func TestClearAndDelete(t *testing.T) {
	c := New[int]()
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	c.Clear()
	assert.Equal(t, 0, c.Stats().Size)
}

func TestGetOrSetSingleFlight(t *testing.T) {
	c := New[string]()
	var calls atomic.Int32

	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return "computed", nil
	}

	const n = 25
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrSet(context.Background(), "k", fetch, time.Minute, time.Second)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "computed", results[i])
	}
	assert.Equal(t, 0, c.Stats().InFlight, "lock is removed once the fetch settles")

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "computed", got)
}

func TestGetOrSetHitSkipsFetch(t *testing.T) {
	c := New[string]()
	c.Set("k", "cached", 0)

	got, err := c.GetOrSet(context.Background(), "k", func(context.Context) (string, error) {
		t.Fatal("fetch must not run on a hit")
		return "", nil
	}, time.Minute, time.Second)

	require.NoError(t, err)
	assert.Equal(t, "cached", got)
}

func TestGetOrSetErrorIsNotCached(t *testing.T) {
	c := New[string]()
	boom := errors.New("boom")
	var calls atomic.Int32

	fail := func(context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	}

	_, err := c.GetOrSet(context.Background(), "k", fail, time.Minute, time.Second)
	require.ErrorIs(t, err, boom)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().InFlight)

	_, err = c.GetOrSet(context.Background(), "k", fail, time.Minute, time.Second)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load(), "a failed fetch is retried by the next caller")
}

func TestGetOrSetPanicBecomesError(t *testing.T) {
	c := New[string]()

	_, err := c.GetOrSet(context.Background(), "k", func(context.Context) (string, error) {
		panic("kaboom")
	}, time.Minute, time.Second)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, 0, c.Stats().InFlight)
}

func TestGetOrSetWaiterTimeoutStartsSecondFetch(t *testing.T) {
	c := New[string]()
	release := make(chan struct{})
	var calls atomic.Int32

	firstDone := make(chan string, 1)
	go func() {
		v, _ := c.GetOrSet(context.Background(), "k", func(context.Context) (string, error) {
			calls.Add(1)
			<-release
			return "first", nil
		}, time.Minute, time.Second)
		firstDone <- v
	}()

	require.Eventually(t, func() bool { return c.Stats().InFlight == 1 }, time.Second, time.Millisecond)

	got, err := c.GetOrSet(context.Background(), "k", func(context.Context) (string, error) {
		calls.Add(1)
		return "second", nil
	}, time.Minute, 20*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "second", got)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(1), c.Stats().Timeouts)

	close(release)
	assert.Equal(t, "first", <-firstDone)
}

func TestGetOrSetWaiterRetriesAfterFailedFetch(t *testing.T) {
	c := New[string]()
	release := make(chan struct{})
	boom := errors.New("boom")

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrSet(context.Background(), "k", func(context.Context) (string, error) {
			<-release
			return "", boom
		}, time.Minute, time.Second)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return c.Stats().InFlight == 1 }, time.Second, time.Millisecond)

	waiter := make(chan string, 1)
	go func() {
		v, _ := c.GetOrSet(context.Background(), "k", func(context.Context) (string, error) {
			return "recovered", nil
		}, time.Minute, time.Second)
		waiter <- v
	}()

	// Give the waiter time to join the failing flight.
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.ErrorIs(t, <-firstErr, boom)
	assert.Equal(t, "recovered", <-waiter)
}

func TestWaitOnSettledFlight(t *testing.T) {
	c := New[string]()
	ctx := context.Background()

	v, done, err := c.wait(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.False(t, done, "nothing cached, caller fetches")
	assert.Empty(t, v)
	assert.Equal(t, int64(0), c.Stats().Timeouts)

	c.Set("k", "settled", time.Minute)
	v, done, err = c.wait(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "settled", v)
}

func TestLateWaitersJoinTheRunningFlight(t *testing.T) {
	c := New[string]()
	release := make(chan struct{})
	var calls atomic.Int32

	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "one", nil
	}

	first := make(chan string, 1)
	go func() {
		v, _ := c.GetOrSet(context.Background(), "k", fetch, time.Minute, time.Second)
		first <- v
	}()
	require.Eventually(t, func() bool { return c.Stats().InFlight == 1 }, time.Second, time.Millisecond)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrSet(context.Background(), "k", fetch, time.Minute, time.Second)
			assert.NoError(t, err)
			assert.Equal(t, "one", v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, "one", <-first)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrSetFetchOutlivesCaller(t *testing.T) {
	c := New[string]()
	release := make(chan struct{})
	fetchCtxErr := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrSet(ctx, "k", func(fctx context.Context) (string, error) {
			<-release
			fetchCtxErr <- fctx.Err()
			return "late", nil
		}, time.Minute, time.Second)
		done <- err
	}()

	require.Eventually(t, func() bool { return c.Stats().InFlight == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	assert.NoError(t, <-fetchCtxErr, "fetch context is detached from the caller")
	require.Eventually(t, func() bool {
		v, ok := c.Get("k")
		return ok && v == "late"
	}, time.Second, time.Millisecond)
}

func TestSweeperRemovesExpiredAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock()
	c := New[int](WithClock(clock.Now))
	c.Set("short", 1, time.Second)
	c.Set("long", 1, time.Hour)

	c.StartSweeper(context.Background(), 5*time.Millisecond)
	clock.Advance(time.Minute)

	require.Eventually(t, func() bool { return c.Stats().Size == 1 }, time.Second, 5*time.Millisecond)
	c.Close()
	c.Close()
}

func TestCloseWithoutSweeper(t *testing.T) {
	c := New[int]()
	c.Close()
	c.StartSweeper(context.Background(), time.Millisecond)
}

func TestDigestIsStable(t *testing.T) {
	a := Digest("hola", "anxiety", "venting", "trabajo")
	b := Digest("hola", "anxiety", "venting", "trabajo")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, Digest("hola", "anxiety", "venting", "familia"))
	assert.NotEqual(t, Digest("ab", "c"), Digest("a", "bc"))
}
