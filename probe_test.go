package petra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProbe_MissOnMissingFileCreatesShard(t *testing.T) {
	inst := newTestInstance(t)
	shard := filepath.Join(inst.opts.CacheDirectory, "ab")
	filename := filepath.Join(shard, "abcdef")

	res := inst.probe(shard, filename)
	require.False(t, res.hit)

	info, err := os.Stat(shard)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestProbe_HitOnFreshEntry(t *testing.T) {
	inst := newTestInstance(t)
	shard := filepath.Join(inst.opts.CacheDirectory, "ab")
	filename := filepath.Join(shard, "abcdef")
	require.NoError(t, os.MkdirAll(shard, 0o755))
	require.NoError(t, os.WriteFile(filename, []byte("body"), 0o644))

	atime := time.Now().Add(-time.Hour)
	mtime := time.Now().Add(10 * time.Second)
	require.NoError(t, os.Chtimes(filename, atime, mtime))

	res := inst.probe(shard, filename)
	require.True(t, res.hit)
	require.WithinDuration(t, mtime, res.mtime, time.Second)
}

func TestProbe_MissOnExpiredEntry(t *testing.T) {
	inst := newTestInstance(t)
	shard := filepath.Join(inst.opts.CacheDirectory, "ab")
	filename := filepath.Join(shard, "abcdef")
	require.NoError(t, os.MkdirAll(shard, 0o755))
	require.NoError(t, os.WriteFile(filename, []byte("body"), 0o644))
	require.NoError(t, os.Chtimes(filename, time.Unix(1, 0), time.Unix(1, 0)))

	res := inst.probe(shard, filename)
	require.False(t, res.hit)
}

func TestProbe_MissOnZeroSizeEntry(t *testing.T) {
	inst := newTestInstance(t)
	shard := filepath.Join(inst.opts.CacheDirectory, "ab")
	filename := filepath.Join(shard, "abcdef")
	require.NoError(t, os.MkdirAll(shard, 0o755))
	require.NoError(t, os.WriteFile(filename, nil, 0o644))
	require.NoError(t, os.Chtimes(filename, time.Now(), time.Now().Add(time.Hour)))

	res := inst.probe(shard, filename)
	require.False(t, res.hit)
}

func TestProbe_MissOnDirectoryInPlaceOfFile(t *testing.T) {
	inst := newTestInstance(t)
	shard := filepath.Join(inst.opts.CacheDirectory, "ab")
	filename := filepath.Join(shard, "abcdef")
	require.NoError(t, os.MkdirAll(filename, 0o755))

	res := inst.probe(shard, filename)
	require.False(t, res.hit)
}
