package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func hit(h http.Handler, remote, fwd string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/create-session", nil)
	req.RemoteAddr = remote
	if fwd != "" {
		req.Header.Set("X-Forwarded-For", fwd)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiterPerClient(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 2)
	l.now = func() time.Time { return now }
	h := l.Limit(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1000", ""))
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1001", ""))
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1002", ""))
	// A different client has its own bucket.
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1000", ""))
	// Tokens refill over time.
	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1003", ""))
}

func TestRateLimiterIgnoresForwardedForByDefault(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	h := l.Limit(okHandler())
	assert.Equal(t, http.StatusOK, hit(h, "198.51.100.7:1", "203.0.113.1"))
	// A fresh header per request must not buy a fresh bucket.
	for i := 2; i < 50; i++ {
		fwd := fmt.Sprintf("203.0.113.%d", i)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "198.51.100.7:1", fwd), fwd)
	}
	assert.Len(t, l.clients, 1)
}

func TestRateLimiterTrustedProxy(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	require.NoError(t, l.TrustProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", ""}))
	h := l.Limit(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.9:1", "203.0.113.5, 10.0.0.3"))
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.9:2", "203.0.113.5"))
	// A client-supplied leftmost entry is skipped; the proxy-appended hop counts.
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.0.2.1:3", "198.51.100.1, 203.0.113.5"))
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.9:4", "203.0.113.6"))
	// Untrusted peers are keyed by their own address whatever they send.
	assert.Equal(t, http.StatusOK, hit(h, "198.51.100.7:5", "203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "198.51.100.7:6", "203.0.113.8"))
	// Only trusted hops in the header: fall back to the peer.
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.10:7", "10.0.0.11"))
}

func TestTrustProxiesRejectsGarbage(t *testing.T) {
	l := NewRateLimiter(1, 1)
	require.Error(t, l.TrustProxies([]string{"not-an-ip"}))
	require.NoError(t, l.TrustProxies([]string{"2001:db8::/32", "::ffff:10.1.2.3"}))
	assert.True(t, l.isTrusted("2001:db8::1"))
	assert.True(t, l.isTrusted("10.1.2.3"))
	assert.False(t, l.isTrusted("10.1.2.4"))
}

func TestRateLimiterDisabled(t *testing.T) {
	var l *RateLimiter
	h := l.Limit(okHandler())
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", ""))
	}
	h = NewRateLimiter(0, 1).Limit(okHandler())
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", ""))
	}
}
