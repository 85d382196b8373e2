// Package cache is an in-process TTL cache with glob invalidation and a
// single-flight GetOrSet.
//
// Entries expire lazily on read; StartSweeper adds a periodic purge. Values
// are shared, not copied: callers must not mutate what they store or get.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Size     int   `json:"size"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Sets     int64 `json:"sets"`
	Deletes  int64 `json:"deletes"`
	Fetches  int64 `json:"fetches"`
	Timeouts int64 `json:"timeouts"`
	InFlight int   `json:"in_flight"`
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	inflight   map[string]uint64
	generation uint64
	stats      Stats

	defaultTTL time.Duration
	now        func() time.Time
	group      singleflight.Group

	sweepOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	defaultTTL time.Duration
	now        func() time.Time
}

// WithDefaultTTL is the TTL used when Set or GetOrSet receive ttl <= 0.
// Zero means entries never expire.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) { o.defaultTTL = ttl }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates an empty cache. Call Close if StartSweeper was used.
func New[V any](opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return &Cache[V]{
		entries:    make(map[string]entry[V]),
		inflight:   make(map[string]uint64),
		defaultTTL: o.defaultTTL,
		now:        o.now,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache[V]) getLocked(key string) (V, bool) {
	e, ok := c.entries[key]
	if ok && e.expired(c.now()) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	return e.value, true
}

// Set stores v under key for ttl, or for the default TTL when ttl <= 0.
func (c *Cache[V]) Set(key string, v V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, v, ttl)
}

func (c *Cache[V]) setLocked(key string, v V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	e := entry[V]{value: v}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	c.stats.Sets++
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	c.stats.Deletes++
	return true
}

// DeletePattern removes every key matching glob, where '*' matches any run
// of characters and everything else is literal. It returns the number of
// keys removed.
func (c *Cache[V]) DeletePattern(glob string) int {
	re := globToRegexp(glob)

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if re.MatchString(k) {
			delete(c.entries, k)
			n++
		}
	}
	c.stats.Deletes += int64(n)
	return n
}

func globToRegexp(glob string) *regexp.Regexp {
	parts := strings.Split(glob, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// UserPrefixes are the key families scoped to one user.
var UserPrefixes = []string{"user", "profile", "context"}

// UserKey builds a user-scoped key such as "profile:42:doc".
func UserKey(prefix, userID string, parts ...string) string {
	return strings.Join(append([]string{prefix, userID}, parts...), ":")
}

// InvalidateUser drops every user-scoped key of userID.
func (c *Cache[V]) InvalidateUser(userID string) int {
	n := 0
	for _, p := range UserPrefixes {
		n += c.DeletePattern(fmt.Sprintf("%s:%s:*", p, userID))
	}
	return n
}

// Clear drops every entry. In-flight fetches are not affected.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Deletes += int64(len(c.entries))
	c.entries = make(map[string]entry[V])
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.entries)
	s.InFlight = len(c.inflight)
	return s
}

// GetOrSet returns the cached value of key or computes it with fetch.
//
// Only one fetch per key runs at a time. A caller that finds a fetch in
// flight waits for it at most lockTimeout; if the value is still missing
// afterwards (timeout, or the awaited fetch failed) it starts a fetch of its
// own, which may overlap the first one. Fetches run detached from the
// caller's cancellation and still populate the cache when nobody is waiting.
// Errors are returned to every waiter of that fetch and never cached.
func (c *Cache[V]) GetOrSet(ctx context.Context, key string, fetch func(context.Context) (V, error), ttl, lockTimeout time.Duration) (V, error) {
	c.mu.Lock()
	if v, ok := c.getLocked(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	_, busy := c.inflight[key]
	c.mu.Unlock()

	if busy {
		v, done, err := c.wait(ctx, key, lockTimeout)
		if done {
			return v, err
		}
	}

	return c.fetch(ctx, key, fetch, ttl)
}

// wait joins the in-flight call of key. done is false when the caller should
// go on and fetch itself.
func (c *Cache[V]) wait(ctx context.Context, key string, lockTimeout time.Duration) (V, bool, error) {
	// Joining never starts a fetch: if the flight settled in the meantime
	// this callback runs and reports a miss.
	ch := c.group.DoChan(key, func() (any, error) { return nil, errMissed })

	timer := time.NewTimer(lockTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		var zero V
		return zero, true, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			if v, ok := c.Get(key); ok {
				return v, true, nil
			}
			if v, ok := res.Val.(V); ok {
				return v, true, nil
			}
		}
		if errors.Is(res.Err, errMissed) {
			// Our own probe ran: the awaited flight was already gone and any
			// flight registered since is someone else's to keep.
			if v, ok := c.Get(key); ok {
				return v, true, nil
			}
			var zero V
			return zero, false, nil
		}
	case <-timer.C:
		c.mu.Lock()
		c.stats.Timeouts++
		c.mu.Unlock()
	}

	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	// The stuck flight keeps running; forgetting it lets a new one start.
	c.group.Forget(key)
	var zero V
	return zero, false, nil
}

var errMissed = errors.New("cache: no flight to join")

func (c *Cache[V]) fetch(ctx context.Context, key string, fetch func(context.Context) (V, error), ttl time.Duration) (V, error) {
	detached := context.WithoutCancel(ctx)
	run := func() (out any, err error) {
		c.mu.Lock()
		c.generation++
		gen := c.generation
		c.inflight[key] = gen
		c.stats.Fetches++
		c.mu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("cache: fetch %s panicked: %v", key, r)
			}
			c.mu.Lock()
			if c.inflight[key] == gen {
				delete(c.inflight, key)
			}
			c.mu.Unlock()
		}()

		v, err := fetch(detached)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	}

	for {
		ch := c.group.DoChan(key, run)
		select {
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		case res := <-ch:
			if errors.Is(res.Err, errMissed) {
				// Joined a waiter's empty probe instead of starting our own.
				continue
			}
			if res.Err != nil {
				var zero V
				return zero, res.Err
			}
			v, _ := res.Val.(V)
			return v, nil
		}
	}
}

// StartSweeper purges expired entries every interval until ctx is done or
// Close is called. Only the first call has an effect.
func (c *Cache[V]) StartSweeper(ctx context.Context, interval time.Duration) {
	c.sweepOnce.Do(func() {
		go c.sweepLoop(ctx, interval)
	})
}

func (c *Cache[V]) sweepLoop(ctx context.Context, interval time.Duration) {
	defer close(c.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep deletes every expired entry and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Close stops the sweeper, if any, and waits for it to exit.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		started := true
		c.sweepOnce.Do(func() { started = false })
		if started {
			<-c.stopped
		}
	})
}

// Digest hashes parts into a stable hex key component.
func Digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
