package petrahttp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lovell/petra/store"
)

func newTestMiddleware(t *testing.T, handler http.Handler) (*Middleware, store.Store) {
	t.Helper()
	s, err := store.NewFSStore(t.TempDir(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	mw := NewMiddleware(Config{
		Enabled:    true,
		Store:      s,
		DefaultTTL: time.Hour,
	}, handler)
	return mw, s
}

func TestMiddleware_MissThenHit(t *testing.T) {
	calls := 0
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	})

	mw, _ := newTestMiddleware(t, upstream)

	req := httptest.NewRequest("GET", "http://example.com/a", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	require.Equal(t, "hello", rec.Body.String())

	req2 := httptest.NewRequest("GET", "http://example.com/a", nil)
	rec2 := httptest.NewRecorder()
	mw.ServeHTTP(rec2, req2)
	require.Equal(t, "HIT", rec2.Header().Get("X-Cache"))
	require.Equal(t, "hello", rec2.Body.String())

	require.Equal(t, 1, calls)
	stats := mw.GetStats()
	require.EqualValues(t, 1, stats.Hits)
	require.EqualValues(t, 1, stats.Misses)
	require.EqualValues(t, 1, stats.Puts)
}

func TestMiddleware_BypassesUncacheableRequest(t *testing.T) {
	calls := 0
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	mw, _ := newTestMiddleware(t, upstream)

	req := httptest.NewRequest("POST", "http://example.com/a", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	require.Equal(t, 1, calls)
	require.EqualValues(t, 1, mw.GetStats().Bypasses)
}

func TestMiddleware_DoesNotCacheSetCookie(t *testing.T) {
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "session=abc")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("private"))
	})
	mw, _ := newTestMiddleware(t, upstream)

	req := httptest.NewRequest("GET", "http://example.com/a", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	require.NotEqual(t, "MISS", rec.Header().Get("X-Cache"))
	require.EqualValues(t, 0, mw.GetStats().Puts)
}
