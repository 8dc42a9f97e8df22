package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newLimiterRouter(window time.Duration, clock func() time.Time) *gin.Engine {
	gin.SetMode(gin.TestMode)
	limiter := &rateLimiter{
		window:        window,
		last:          make(map[string]time.Time),
		sweepInterval: 10 * window,
		now:           clock,
	}
	r := gin.New()
	r.Use(limiter.handle)
	r.POST("/chat", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doRequest(r *gin.Engine, method, path, ip string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":1234"
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitBlocksWithinWindow(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	r := newLimiterRouter(time.Second, clock)

	require.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/chat", "10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, doRequest(r, http.MethodPost, "/chat", "10.0.0.1"))

	now = now.Add(time.Second)
	require.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/chat", "10.0.0.1"))
}

func TestRateLimitKeysByIPAndPath(t *testing.T) {
	now := time.Now()
	r := newLimiterRouter(time.Second, func() time.Time { return now })

	require.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/chat", "10.0.0.1"))
	// A different client or a different endpoint is not affected.
	require.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/chat", "10.0.0.2"))
	require.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/status", "10.0.0.1"))
}

func TestRateLimitZeroWindowDisables(t *testing.T) {
	r := newLimiterRouter(0, time.Now)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/chat", "10.0.0.1"))
	}
}

func TestRateLimitConcurrentAccess(t *testing.T) {
	r := newLimiterRouter(time.Millisecond, time.Now)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doRequest(r, http.MethodPost, "/chat", "10.0.0.1")
		}()
	}
	wg.Wait()
}
