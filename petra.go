// Package petra is an embeddable, filesystem-backed reverse HTTP cache.
// A host invokes Fetch with a remote URL and receives a path to a local
// file holding that URL's response body, plus the timestamps describing
// when the entry was cached and when it expires. On cache miss, petra
// fetches from upstream, streams the body to disk keyed by a fingerprint
// of the URL, and honors the upstream Cache-Control header bounded below
// by a configured minimum TTL. Concurrent Fetch calls for the same URL
// collapse into a single upstream request via the file locker in
// internal/lock.
package petra

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lovell/petra/internal/lock"
)

// processLocks is the single lock table shared by every Instance in the
// process, so two Instances over the same cache directory still collapse
// concurrent fetches of one entry into a single upstream request.
var processLocks = lock.NewTable()

// Result is what a successful Fetch or cache hit returns: a path to the
// cached body plus the timestamps describing its lifetime.
type Result struct {
	// Filename is the absolute path to the cached body on disk.
	Filename string

	// Atime is when the entry was created (or, on a cache hit, when it
	// was originally created).
	Atime time.Time

	// Mtime is the wall-clock instant at which the entry becomes stale.
	Mtime time.Time
}

// Instance is a constructed cache; see New.
type Instance struct {
	opts Options
	log  debugLogger

	locks *lock.Table

	stopPurger context.CancelFunc
	purgerDone chan struct{}
}

// New constructs a petra instance, applying defaults for any option left
// at its zero value. Construction is the only synchronous failure point
// in the library; it fails only if CacheDirectory cannot be created or
// is not readable and writable.
func New(opts ...Option) (*Instance, error) {
	o := buildOptions(opts...)

	if err := os.MkdirAll(o.CacheDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("petra: cache directory %q is not usable: %w", o.CacheDirectory, err)
	}
	if err := checkReadWrite(o.CacheDirectory); err != nil {
		return nil, fmt.Errorf("petra: cache directory %q is not usable: %w", o.CacheDirectory, err)
	}

	inst := &Instance{
		opts:  o,
		log:   debugLogger{Logger: o.Log, enabled: o.Debug},
		locks: processLocks,
	}

	inst.startPurger()

	return inst, nil
}

func (i *Instance) debugf(format string, v ...interface{}) {
	i.log.Debugf(format, v...)
}

// checkReadWrite verifies the process can both list and write to dir by
// creating and removing a throwaway probe file, performed explicitly and
// synchronously at construction time rather than deferred to the first
// cache write.
func checkReadWrite(dir string) error {
	if _, err := os.ReadDir(dir); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".petra-probe-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

// Fetch resolves url to a local file, fetching from upstream on miss.
// Concurrent Fetch calls for the same URL observe at most one upstream
// request: the file lock covers both the filesystem probe and any
// subsequent materialization, so a waiter that acquires the lock after
// the first holder succeeds simply observes a hit.
func (i *Instance) Fetch(ctx context.Context, url string) (Result, error) {
	fp := i.fingerprint(url)
	shard := shardDir(i.opts.CacheDirectory, fp)
	filename := entryPath(i.opts.CacheDirectory, fp)

	done := make(chan struct{})
	go func() {
		i.locks.Lock(filename)
		close(done)
	}()

	select {
	case <-ctx.Done():
		// The caller gave up waiting for the lock. We still must take
		// it eventually to keep Lock/Unlock balanced, but we no longer
		// block the caller on it: abandoning interest cannot cancel
		// work already in flight for other waiters.
		go func() {
			<-done
			i.locks.Unlock(filename)
		}()
		return Result{}, ctx.Err()
	case <-done:
	}
	defer i.locks.Unlock(filename)

	if p := i.probe(shard, filename); p.hit {
		return Result{Filename: filename, Atime: p.atime, Mtime: p.mtime}, nil
	}

	// Once the lock is held, the upstream fetch runs to completion even if
	// the caller's ctx is cancelled; only its values are passed on.
	res, err := i.fetch(context.WithoutCancel(ctx), url, filename)
	if err != nil {
		return Result{}, err
	}
	return Result{Filename: filename, Atime: res.atime, Mtime: res.mtime}, nil
}

// Purge removes the cached entry for url, if any. It never fails
// observably; a missing entry is a silent success.
func (i *Instance) Purge(ctx context.Context, url string) error {
	fp := i.fingerprint(url)
	filename := entryPath(i.opts.CacheDirectory, fp)

	i.locks.Lock(filename)
	defer i.locks.Unlock(filename)

	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		i.log.Printf("petra: warning: failed to purge %s: %v", filename, err)
	}
	return nil
}

// Close stops the background purger. It does not wait for any in-flight
// Fetch calls to complete.
func (i *Instance) Close() error {
	if i.stopPurger != nil {
		i.stopPurger()
	}
	if i.purgerDone != nil {
		<-i.purgerDone
	}
	return nil
}
