package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimit_PerIP(t *testing.T) {
	h := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	hit := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusOK, hit("10.0.0.1:1000").Code)
	require.Equal(t, http.StatusOK, hit("10.0.0.1:1001").Code)

	rr := hit("10.0.0.1:1002")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "too_many_requests", decodeErr(t, rr).Code)
	require.Equal(t, "1", rr.Header().Get("Retry-After"))

	// другой IP со своим бакетом
	require.Equal(t, http.StatusOK, hit("10.0.0.2:1000").Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(0, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestIPLimiters_RefillAndSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newIPLimiters(1, 1)
	l.now = func() time.Time { return now }

	require.True(t, l.allow("a"))
	require.False(t, l.allow("a"))

	now = now.Add(time.Second)
	require.True(t, l.allow("a"))

	now = now.Add(limiterIdleTTL + time.Second)
	require.True(t, l.allow("b"))

	l.mu.Lock()
	_, stale := l.clients["a"]
	l.mu.Unlock()
	require.False(t, stale)
}
