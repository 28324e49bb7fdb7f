package ratelimit_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kubikal7/ski-jumping-management/internal/ratelimit"
)

// testRedis is nil when no container runtime is available; Redis tests skip.
var testRedis *redis.Client

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis container unavailable, skipping redis tests: %v\n", err)
		os.Exit(m.Run())
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}
	testRedis = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	if err := testRedis.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ping redis: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = testRedis.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func redisLimiter(t *testing.T, limit int, window time.Duration) *ratelimit.RedisLimiter {
	t.Helper()
	if testRedis == nil {
		t.Skip("redis not available")
	}
	return ratelimit.NewRedisLimiter(testRedis, fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano()), limit, window)
}

func TestRedisLimiterAllow(t *testing.T) {
	ctx := context.Background()
	l := redisLimiter(t, 5, time.Minute)

	for i := range 5 {
		ok, err := l.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}
	ok, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, ok, "6th request should be denied")

	ok, err = l.Allow(ctx, "user:2")
	require.NoError(t, err)
	assert.True(t, ok, "keys are counted separately")
}

func TestRedisLimiterWindowExpires(t *testing.T) {
	ctx := context.Background()
	l := redisLimiter(t, 2, 500*time.Millisecond)

	for range 3 {
		_, _ = l.Allow(ctx, "ip")
	}
	time.Sleep(1100 * time.Millisecond)

	ok, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, ok, "a new window starts with a fresh budget")
}

func TestRedisLimiterConcurrent(t *testing.T) {
	ctx := context.Background()
	l := redisLimiter(t, 100, time.Minute)

	var wg sync.WaitGroup
	results := make(chan bool, 200)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Allow(ctx, "shared")
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	allowed := 0
	for ok := range results {
		if ok {
			allowed++
		}
	}
	// A window boundary during the burst can admit a few more.
	assert.GreaterOrEqual(t, allowed, 100)
	assert.LessOrEqual(t, allowed, 200)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}
func (failingLimiter) Close() error { return nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func TestMiddleware(t *testing.T) {
	m := ratelimit.NewMemoryLimiter(0.001, 1)
	defer func() { _ = m.Close() }()
	h := ratelimit.Middleware(m, ratelimit.IPKeyFunc, func(*http.Request) string { return "req-1" }, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"RATE_LIMITED"`)
	assert.Contains(t, rec.Body.String(), `"req-1"`)

	other := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareFailsOpen(t *testing.T) {
	h := ratelimit.Middleware(failingLimiter{}, ratelimit.IPKeyFunc, nil, nil)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareEmptyKeySkips(t *testing.T) {
	h := ratelimit.Middleware(failingLimiter{}, func(*http.Request) string { return "" }, nil, nil)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", ratelimit.IPKeyFunc(req))

	req.RemoteAddr = "192.0.2.7:80"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "192.0.2.7", ratelimit.IPKeyFunc(req))

	assert.Equal(t, "login:192.0.2.7", ratelimit.PrefixKey("login", ratelimit.IPKeyFunc)(req))
}
