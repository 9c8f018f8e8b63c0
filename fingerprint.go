package petra

import "path/filepath"

// fingerprint computes the cache key for a URL. No normalization is
// performed: two URLs differing only in trailing slash or query-parameter
// order hash to distinct fingerprints.
func (i *Instance) fingerprint(url string) string {
	return i.opts.Hash(url)
}

// shardDir returns the two-character shard directory for a fingerprint.
func shardDir(root, fp string) string {
	if len(fp) < 2 {
		return filepath.Join(root, fp)
	}
	return filepath.Join(root, fp[0:2])
}

// entryPath returns the canonical on-disk path for a fingerprint.
func entryPath(root, fp string) string {
	return filepath.Join(shardDir(root, fp), fp)
}

// partPath returns the temporary sibling path materialized during
// upstream streaming.
func partPath(filename string) string {
	return filename + ".part"
}
