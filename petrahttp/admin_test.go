package petrahttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lovell/petra/store"
)

func newTestAdminHandler(t *testing.T) (*AdminHandler, store.Store) {
	t.Helper()
	s, err := store.NewFSStore(t.TempDir(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	mw := NewMiddleware(Config{Enabled: true, Store: s}, http.NotFoundHandler())
	kg := NewKeyGenerator()
	return NewAdminHandler(mw, s, kg, ""), s
}

func putViaKeyGen(t *testing.T, kg *KeyGenerator, s store.Store, rawURL string) string {
	t.Helper()
	req := httptest.NewRequest("GET", rawURL, nil)
	key := kg.GenerateKey(req)
	meta := &store.Meta{TTL: time.Hour, CachedAt: time.Now(), StatusCode: 200}
	require.NoError(t, s.Put(context.Background(), key, bytes.NewReader([]byte("body")), meta))
	return key
}

func TestAdminHandler_HandlePurgeHost(t *testing.T) {
	ah, s := newTestAdminHandler(t)
	kg := NewKeyGenerator()

	key1 := putViaKeyGen(t, kg, s, "http://example.com/one")
	key2 := putViaKeyGen(t, kg, s, "http://example.com/two?x=1")
	otherKey := putViaKeyGen(t, kg, s, "http://other.com/one")

	body, _ := json.Marshal(map[string]string{"host": "example.com"})
	req := httptest.NewRequest("POST", "/admin/purge-host", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ah.HandlePurgeHost(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, _, found, err := s.Get(context.Background(), key1)
	require.NoError(t, err)
	require.False(t, found)

	_, _, found, err = s.Get(context.Background(), key2)
	require.NoError(t, err)
	require.False(t, found)

	_, _, found, err = s.Get(context.Background(), otherKey)
	require.NoError(t, err)
	require.True(t, found)
}

func TestAdminHandler_HandlePurgePath(t *testing.T) {
	ah, s := newTestAdminHandler(t)
	kg := NewKeyGenerator()

	staticKey := putViaKeyGen(t, kg, s, "http://example.com/static/app.css")
	apiKey := putViaKeyGen(t, kg, s, "http://example.com/api/users")

	body, _ := json.Marshal(map[string]string{"host": "example.com", "path": "/static/"})
	req := httptest.NewRequest("POST", "/admin/purge-path", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ah.HandlePurgePath(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, _, found, err := s.Get(context.Background(), staticKey)
	require.NoError(t, err)
	require.False(t, found)

	_, _, found, err = s.Get(context.Background(), apiKey)
	require.NoError(t, err)
	require.True(t, found)
}

func TestAdminHandler_HandlePurgeHost_RequiresHost(t *testing.T) {
	ah, _ := newTestAdminHandler(t)

	body, _ := json.Marshal(map[string]string{"host": ""})
	req := httptest.NewRequest("POST", "/admin/purge-host", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ah.HandlePurgeHost(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
