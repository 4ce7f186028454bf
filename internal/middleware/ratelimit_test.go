package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRateLimitBlocksAfterThreshold(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/limited", RateLimit(NewMemoryRateStore(), 2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitDisabledWithoutStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/open", RateLimit(nil, 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMemoryRateStoreWindowReset(t *testing.T) {
	store := &memoryRateStore{
		data:  make(map[string]*memoryCounter),
		tick:  time.NewTicker(time.Hour),
		clock: time.Now,
	}

	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }

	count, _, err := store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, _, err = store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	now = now.Add(2 * time.Minute)
	count, _, err = store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
