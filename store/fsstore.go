package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lovell/petra/internal/lock"
)

// FSStore implements Store on the local filesystem: data is written to
// a .tmp sibling and renamed into place, metadata lives in a companion
// JSON sidecar, and keys are sharded into subdirectories so no one
// directory holds every entry.
//
// Every operation holds a per-key lock from the FSStore's own table, the
// same primitive the core petra.Instance uses for its own fetch/purge
// coordination (internal/lock.Table), rather
// than a single store-wide mutex: a Put for one key never blocks a Get for
// an unrelated key, and a Get that loses a race with a concurrent Delete
// observes a clean miss instead of a half-written sidecar.
type FSStore struct {
	rootDir    string
	shardDepth int
	locks      *lock.Table
}

// NewFSStore creates a filesystem-backed store rooted at rootDir, created
// if it doesn't already exist. shardDepth controls how many two-character
// path segments are carved from the front of each key; a value outside
// [0, 4] is replaced by 2.
func NewFSStore(rootDir string, shardDepth int) (*FSStore, error) {
	if shardDepth < 0 || shardDepth > 4 {
		shardDepth = 2
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: failed to create cache directory: %w", err)
	}
	return &FSStore{rootDir: rootDir, shardDepth: shardDepth, locks: lock.NewTable()}, nil
}

// Get opens the cached body for key, if present and unexpired. On a hit it
// also stamps LastAccessedAt and bumps AccessCount in the sidecar before
// returning the meta the caller sees, and refreshes the data file's atime
// to match, so an external tool walking the cache directory with `ls -u`
// sees the same recency the sidecar reports.
func (fs *FSStore) Get(ctx context.Context, key string) (io.ReadCloser, *Meta, bool, error) {
	dataPath := fs.dataPath(key)
	metaPath := fs.metaPath(key)

	fs.locks.Lock(key)
	defer fs.locks.Unlock(key)

	if _, err := os.Stat(dataPath); os.IsNotExist(err) {
		return nil, nil, false, nil
	}

	meta, err := readMeta(metaPath)
	if err != nil {
		return nil, nil, false, fmt.Errorf("store: failed to read metadata: %w", err)
	}

	if meta.IsExpired() {
		fs.removeLocked(key)
		return nil, nil, false, nil
	}

	file, err := os.Open(dataPath)
	if err != nil {
		return nil, nil, false, fmt.Errorf("store: failed to open cache file: %w", err)
	}

	now := time.Now()
	meta.LastAccessedAt = now
	meta.AccessCount++
	if err := writeMeta(metaPath, meta); err != nil {
		file.Close()
		return nil, nil, false, fmt.Errorf("store: failed to update access metadata: %w", err)
	}
	if err := os.Chtimes(dataPath, now, now); err != nil {
		// Atime tracking is a convenience, not part of the hit/miss
		// contract; a filesystem that rejects the chtimes call (or
		// mounts noatime) should not fail an otherwise good read.
	}

	return file, meta, true, nil
}

// Put stores a response, replacing any existing entry for key and
// resetting its access history.
func (fs *FSStore) Put(ctx context.Context, key string, body io.Reader, meta *Meta) error {
	dataPath := fs.dataPath(key)
	metaPath := fs.metaPath(key)

	fs.locks.Lock(key)
	defer fs.locks.Unlock(key)

	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return fmt.Errorf("store: failed to create cache directory: %w", err)
	}

	tmpPath := dataPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("store: failed to create temp file: %w", err)
	}
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmpFile, body)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("store: failed to write cache data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("store: failed to close temp file: %w", err)
	}

	meta.Size = written
	meta.AccessCount = 0
	meta.LastAccessedAt = time.Time{}
	if meta.CachedAt.IsZero() {
		meta.CachedAt = time.Now()
	}
	if err := writeMeta(metaPath, meta); err != nil {
		return fmt.Errorf("store: failed to write metadata: %w", err)
	}

	if err := os.Rename(tmpPath, dataPath); err != nil {
		return fmt.Errorf("store: failed to rename temp file: %w", err)
	}
	return nil
}

// Delete removes a cached response by key. Deleting a missing key is not
// an error.
func (fs *FSStore) Delete(ctx context.Context, key string) error {
	fs.locks.Lock(key)
	defer fs.locks.Unlock(key)
	fs.removeLocked(key)
	return nil
}

// removeLocked deletes the data and sidecar files for key. The caller must
// already hold fs.locks for key.
func (fs *FSStore) removeLocked(key string) {
	os.Remove(fs.dataPath(key))
	os.Remove(fs.metaPath(key))
}

// PurgePrefix removes every entry whose key has the given prefix. Each
// matched key is deleted under its own lock rather than one lock spanning
// the whole walk, so a long prefix purge doesn't stall unrelated Gets.
func (fs *FSStore) PurgePrefix(ctx context.Context, prefix string) error {
	return filepath.WalkDir(fs.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".data" {
			return nil
		}
		key, ok := fs.keyFromDataPath(path)
		if ok && len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			return fs.Delete(ctx, key)
		}
		return nil
	})
}

func (fs *FSStore) Close() error { return nil }

func (fs *FSStore) dataPath(key string) string { return fs.shardedPath(key, ".data") }
func (fs *FSStore) metaPath(key string) string { return fs.shardedPath(key, ".meta") }

func (fs *FSStore) shardedPath(key, suffix string) string {
	if fs.shardDepth == 0 {
		return filepath.Join(fs.rootDir, key+suffix)
	}
	var parts []string
	for i := 0; i < fs.shardDepth && i*2 < len(key); i++ {
		parts = append(parts, key[i*2:i*2+2])
	}
	return filepath.Join(fs.rootDir, filepath.Join(parts...), key+suffix)
}

// keyFromDataPath recovers the key whose data file is at path. A key may
// itself contain "/", so it is the longest trailing part of the path
// (below the shard directories) whose dataPath leads back to path.
func (fs *FSStore) keyFromDataPath(path string) (string, bool) {
	rel, err := filepath.Rel(fs.rootDir, path)
	if err != nil {
		return "", false
	}
	candidate := strings.TrimSuffix(filepath.ToSlash(rel), ".data")
	for {
		if fs.dataPath(candidate) == path {
			return candidate, true
		}
		idx := strings.IndexByte(candidate, '/')
		if idx == -1 {
			return "", false
		}
		candidate = candidate[idx+1:]
	}
}

func readMeta(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func writeMeta(path string, meta *Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
