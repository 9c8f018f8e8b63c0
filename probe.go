package petra

import (
	"os"
	"time"
)

// probeResult is the outcome of consulting the filesystem for an entry.
type probeResult struct {
	hit   bool
	atime time.Time
	mtime time.Time
}

// probe implements the filesystem probe: decide hit/miss/expired from
// file metadata, and prepare the shard directory on miss so the fetcher
// can materialize a .part file into it without a second mkdir.
func (i *Instance) probe(shard, filename string) probeResult {
	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(shard, 0o755); mkErr != nil && !os.IsExist(mkErr) {
				i.log.Printf("petra: failed to create shard directory %s: %v", shard, mkErr)
			}
			return probeResult{}
		}
		// Non-ENOENT stat errors are logged and treated as a miss; the
		// upstream fetch will attempt to write into the same place and
		// surface a more actionable error if the problem is permissions.
		i.log.Printf("petra: warning: stat failed for %s: %v", filename, err)
		return probeResult{}
	}

	if !info.Mode().IsRegular() || info.Size() == 0 {
		i.debugf("probe: %s is not a positive-size regular file, treating as miss", filename)
		return probeResult{}
	}

	mtime := info.ModTime()
	if !mtime.After(time.Now()) {
		i.debugf("probe: %s is stale (mtime %s), treating as miss", filename, mtime)
		return probeResult{}
	}

	return probeResult{
		hit:   true,
		atime: atimeOf(info),
		mtime: mtime,
	}
}
