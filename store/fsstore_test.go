package store

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFSStore_PutAndGet(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), 2)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := "test-key-123"
	data := []byte("Hello, World!")
	meta := &Meta{
		ContentType: "text/plain",
		StatusCode:  200,
		TTL:         time.Hour,
		CachedAt:    time.Now(),
	}

	require.NoError(t, s.Put(ctx, key, bytes.NewReader(data), meta))

	reader, gotMeta, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	defer reader.Close()

	require.Equal(t, meta.ContentType, gotMeta.ContentType)
	require.Equal(t, meta.StatusCode, gotMeta.StatusCode)

	buf := new(bytes.Buffer)
	buf.ReadFrom(reader)
	require.Equal(t, data, buf.Bytes())
}

func TestFSStore_Delete(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), 2)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := "test-key-456"
	meta := &Meta{TTL: time.Hour, CachedAt: time.Now()}

	require.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte("data")), meta))
	_, _, found, _ := s.Get(ctx, key)
	require.True(t, found)

	require.NoError(t, s.Delete(ctx, key))

	_, _, found, _ = s.Get(ctx, key)
	require.False(t, found)
}

func TestFSStore_Expiration(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), 2)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := "test-key-expired"
	meta := &Meta{TTL: 50 * time.Millisecond, CachedAt: time.Now()}

	require.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte("data")), meta))
	time.Sleep(150 * time.Millisecond)

	_, _, found, _ := s.Get(ctx, key)
	require.False(t, found)
}

func TestFSStore_Sharding(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root, 2)
	require.NoError(t, err)
	defer s.Close()

	key := "abcd1234567890"
	want := filepath.Join(root, "ab", "cd", key+".data")
	require.Equal(t, want, s.dataPath(key))
}

func TestFSStore_PurgePrefix(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), 2)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	meta := func() *Meta { return &Meta{TTL: time.Hour, CachedAt: time.Now()} }

	require.NoError(t, s.Put(ctx, "images/a.png", bytes.NewReader([]byte("a")), meta()))
	require.NoError(t, s.Put(ctx, "images/b.png", bytes.NewReader([]byte("b")), meta()))
	require.NoError(t, s.Put(ctx, "videos/c.mp4", bytes.NewReader([]byte("c")), meta()))

	require.NoError(t, s.PurgePrefix(ctx, "images/"))

	_, _, found, _ := s.Get(ctx, "images/a.png")
	require.False(t, found)
	_, _, found, _ = s.Get(ctx, "images/b.png")
	require.False(t, found)
	_, _, found, _ = s.Get(ctx, "videos/c.mp4")
	require.True(t, found)
}

func TestFSStore_GetStampsLastAccessedAndAccessCount(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), 2)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := "test-key-access"
	meta := &Meta{TTL: time.Hour, CachedAt: time.Now()}
	require.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte("data")), meta))

	r1, got1, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	r1.Close()
	require.Equal(t, int64(1), got1.AccessCount)
	require.False(t, got1.LastAccessedAt.IsZero())

	r2, got2, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	r2.Close()
	require.Equal(t, int64(2), got2.AccessCount)

	// A fresh Put resets the access history.
	require.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte("new-data")), &Meta{TTL: time.Hour, CachedAt: time.Now()}))
	r3, got3, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	r3.Close()
	require.Equal(t, int64(1), got3.AccessCount)
}

func TestMeta_IsExpired(t *testing.T) {
	tests := []struct {
		name     string
		ttl      time.Duration
		cachedAt time.Time
		want     bool
	}{
		{"not expired", time.Hour, time.Now(), false},
		{"expired", time.Millisecond, time.Now().Add(-time.Second), true},
		{"no expiration", 0, time.Now().Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := &Meta{TTL: tt.ttl, CachedAt: tt.cachedAt}
			require.Equal(t, tt.want, meta.IsExpired())
		})
	}
}
