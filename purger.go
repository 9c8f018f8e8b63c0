package petra

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// staleThreshold is how far in the past an entry's mtime must lie before
// the purger removes it. Because mtime encodes the expiry instant rather
// than the creation instant, any file whose mtime is a day in the past
// has been stale for at least that long.
const staleThreshold = 24 * time.Hour

// startPurger schedules the periodic background sweep at construction
// time, running until Close cancels it.
func (i *Instance) startPurger() {
	ctx, cancel := context.WithCancel(context.Background())
	i.stopPurger = cancel
	i.purgerDone = make(chan struct{})

	go func() {
		defer close(i.purgerDone)

		ticker := time.NewTicker(i.opts.PurgeStaleInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				i.sweep()
			}
		}
	}()
}

// sweep enumerates regular files under the cache directory whose mtime
// is more than staleThreshold in the past and unlinks each under its
// lock. It tolerates files whose names don't match the fingerprint
// convention and a cache directory that has gone missing out from under
// it.
func (i *Instance) sweep() {
	cutoff := time.Now().Add(-staleThreshold)

	err := filepath.WalkDir(i.opts.CacheDirectory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // tolerate missing/unreadable entries, keep walking
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".part" {
			return nil // an in-progress materialization, not the purger's concern
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		i.locks.Lock(path)
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			i.log.Printf("petra: warning: purger failed to remove %s: %v", path, rmErr)
		}
		i.locks.Unlock(path)

		return nil
	})
	if err != nil {
		i.log.Printf("petra: warning: purge sweep failed: %v", err)
	}
}
