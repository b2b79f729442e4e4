package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mutualfund-api/pkg/logging"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type failingStore struct{}

func (failingStore) Hit(context.Context, string, time.Duration, time.Time) (int64, time.Time, error) {
	return 0, time.Time{}, ErrBackendUnavailable
}

func (failingStore) Undo(context.Context, string, time.Time) error {
	return ErrBackendUnavailable
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) RateLimited(policy string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[policy]++
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// deniedHandler 模拟密码错误，计入窗口
var deniedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusUnauthorized)
})

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return m, NewRedisStore(client, "rl_test")
}

func TestLoginLimitWindow(t *testing.T) {
	const window = 15 * time.Minute

	backends := []struct {
		name  string
		setup func(t *testing.T, clock *fakeClock) (Store, func())
	}{
		{"memory", func(t *testing.T, clock *fakeClock) (Store, func()) {
			return NewMemoryStore(), func() { clock.Advance(window) }
		}},
		{"redis", func(t *testing.T, clock *fakeClock) (Store, func()) {
			m, s := newRedisStore(t)
			return s, func() {
				clock.Advance(window)
				m.FastForward(window)
			}
		}},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
			obs := &countingObserver{counts: map[string]int{}}
			store, elapse := b.setup(t, clock)
			l := New(store, LoginPolicy(5, window),
				WithClock(clock.Now), WithObserver(obs), WithLogger(logging.Discard()))
			h := l.Middleware(deniedHandler)

			for i := 1; i <= 5; i++ {
				rec := hit(h, "10.0.0.1:5000")
				require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i)
				assert.Equal(t, "5", rec.Header().Get("RateLimit-Limit"))
				assert.Equal(t, strconv.Itoa(5-i), rec.Header().Get("RateLimit-Remaining"))
				assert.Equal(t, "900", rec.Header().Get("RateLimit-Reset"))
			}

			rec := hit(h, "10.0.0.1:5001")
			require.Equal(t, http.StatusTooManyRequests, rec.Code)
			assert.Equal(t, "0", rec.Header().Get("RateLimit-Remaining"))
			assert.Equal(t, "900", rec.Header().Get("Retry-After"))
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, "Too many login attempts, please try again later.", body["message"])
			assert.Equal(t, 1, obs.counts["login"])

			// 其他客户端不受影响
			assert.Equal(t, http.StatusUnauthorized, hit(h, "10.0.0.2:5000").Code)

			elapse()
			assert.Equal(t, http.StatusUnauthorized, hit(h, "10.0.0.1:5000").Code)
		})
	}
}

func TestSuccessfulRequestsNotCounted(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"redis": func(t *testing.T) Store {
			_, s := newRedisStore(t)
			return s
		},
	}
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
			l := New(store, LoginPolicy(2, time.Minute), WithClock(clock.Now), WithLogger(logging.Discard()))
			ok := l.Middleware(okHandler)
			denied := l.Middleware(deniedHandler)

			for i := 0; i < 10; i++ {
				rec := hit(ok, "10.0.0.1:1")
				require.Equal(t, http.StatusOK, rec.Code)
				assert.Equal(t, "2", rec.Header().Get("RateLimit-Remaining"))
			}

			rec := hit(denied, "10.0.0.1:1")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "1", rec.Header().Get("RateLimit-Remaining"))
			rec = hit(ok, "10.0.0.1:1")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "1", rec.Header().Get("RateLimit-Remaining"))

			assert.Equal(t, http.StatusUnauthorized, hit(denied, "10.0.0.1:1").Code)
			// 窗口内已有 2 次失败，正确的请求也被拒绝
			assert.Equal(t, http.StatusTooManyRequests, hit(ok, "10.0.0.1:1").Code)
		})
	}
}

type undoFailingStore struct {
	*MemoryStore
}

func (undoFailingStore) Undo(context.Context, string, time.Time) error {
	return ErrBackendUnavailable
}

func TestRemainingHeaderAfterUndo(t *testing.T) {
	silent := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	t.Run("implicit 200", func(t *testing.T) {
		h := New(NewMemoryStore(), LoginPolicy(3, time.Minute), WithLogger(logging.Discard())).Middleware(silent)
		rec := hit(h, "1.1.1.1:1")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("RateLimit-Remaining"))
	})

	t.Run("undo fails", func(t *testing.T) {
		h := New(undoFailingStore{NewMemoryStore()}, LoginPolicy(3, time.Minute), WithLogger(logging.Discard())).Middleware(okHandler)
		rec := hit(h, "1.1.1.1:1")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("RateLimit-Remaining"))
		assert.Equal(t, "1", hit(h, "1.1.1.1:1").Header().Get("RateLimit-Remaining"))
	})
}

func TestCountAllRequestsWhenNotSkipping(t *testing.T) {
	p := LoginPolicy(1, time.Minute)
	p.SkipSuccessful = false
	h := New(NewMemoryStore(), p, WithLogger(logging.Discard())).Middleware(okHandler)

	assert.Equal(t, http.StatusOK, hit(h, "1.1.1.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "1.1.1.1:1").Code)
}

func TestPoliciesAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	clock := &fakeClock{t: time.Now()}
	login := New(store, LoginPolicy(1, time.Minute), WithClock(clock.Now), WithLogger(logging.Discard())).Middleware(deniedHandler)
	register := New(store, RegisterPolicy(1, time.Minute), WithClock(clock.Now), WithLogger(logging.Discard())).Middleware(deniedHandler)

	assert.Equal(t, http.StatusUnauthorized, hit(login, "1.1.1.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(login, "1.1.1.1:1").Code)
	assert.Equal(t, http.StatusUnauthorized, hit(register, "1.1.1.1:1").Code)

	rec := hit(register, "1.1.1.1:1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many registration attempts, please try again later.")
}

func TestFailureModes(t *testing.T) {
	t.Run("fail open", func(t *testing.T) {
		h := New(failingStore{}, LoginPolicy(5, time.Minute),
			WithFailureMode(FailOpen), WithLogger(logging.Discard())).Middleware(okHandler)
		rec := hit(h, "1.1.1.1:1")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("RateLimit-Limit"))
	})

	t.Run("fail closed", func(t *testing.T) {
		obs := &countingObserver{counts: map[string]int{}}
		h := New(failingStore{}, LoginPolicy(5, time.Minute),
			WithFailureMode(FailClosed), WithObserver(obs), WithLogger(logging.Discard())).Middleware(okHandler)
		rec := hit(h, "1.1.1.1:1")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		assert.Equal(t, 1, obs.counts["login"])
	})

	t.Run("redis down", func(t *testing.T) {
		m, s := newRedisStore(t)
		m.Close()
		_, _, err := s.Hit(context.Background(), "k", time.Minute, time.Now())
		assert.True(t, errors.Is(err, ErrBackendUnavailable))
	})
}

func TestRedisStoreSetsExpiry(t *testing.T) {
	m, s := newRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	count, reset, err := s.Hit(ctx, "login:1.1.1.1", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, now.Add(time.Minute), reset)
	assert.Equal(t, time.Minute, m.TTL("rl_test:login:1.1.1.1"))

	count, _, err = s.Hit(ctx, "login:1.1.1.1", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// 丢失过期时间的计数会被补设
	m.Set("rl_test:orphan", "3")
	count, _, err = s.Hit(ctx, "orphan", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.Equal(t, time.Minute, m.TTL("rl_test:orphan"))
}

func TestRedisStoreUndo(t *testing.T) {
	m, s := newRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 2; i++ {
		_, _, err := s.Hit(ctx, "login:1.1.1.1", time.Minute, now)
		require.NoError(t, err)
	}
	require.NoError(t, s.Undo(ctx, "login:1.1.1.1", now))
	v, err := m.Get("rl_test:login:1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.Equal(t, time.Minute, m.TTL("rl_test:login:1.1.1.1"))

	// 窗口已过期的键不会被重新创建
	require.NoError(t, s.Undo(ctx, "login:2.2.2.2", now))
	assert.False(t, m.Exists("rl_test:login:2.2.2.2"))
}

func TestMemoryStoreEvictsExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for _, k := range []string{"a", "b", "c"} {
		_, _, err := s.Hit(ctx, k, time.Minute, now)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.Len())

	_, _, err := s.Hit(ctx, "d", time.Minute, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	// 过期窗口上的撤销不影响新窗口
	require.NoError(t, s.Undo(ctx, "d", now.Add(4*time.Minute)))
	count, _, err := s.Hit(ctx, "d", time.Minute, now.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "192.0.2.1", clientIP(req))
	assert.Equal(t, "203.0.113.7", forwardedIP(req))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "192.0.2.1", forwardedIP(req))
}
