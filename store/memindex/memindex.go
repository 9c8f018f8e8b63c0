// Package memindex provides an in-memory existence index that sits in
// front of a store.Store to short-circuit misses without touching the
// backend. It never holds a response body — only whether a key is known
// live and when it expires — deferring to the backing Store for the
// body on every hit.
package memindex

import (
	"context"
	"io"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/lovell/petra/store"
)

// Index wraps a store.Store with a fast existence check.
type Index struct {
	backend store.Store
	cache   *ttlcache.Cache[string, struct{}]
}

// New wraps backend with an existence index. defaultTTL bounds how long
// a key is assumed live between backend checks when the entry itself
// carries no TTL; it does not override the backend's own expiry.
func New(backend store.Store, defaultTTL time.Duration) *Index {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	cache := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](defaultTTL),
	)
	go cache.Start()
	return &Index{backend: backend, cache: cache}
}

// Get consults the existence index first: a key the index has never
// seen (or has since evicted) is reported as a miss without touching
// the backend at all. A key the index knows about is always confirmed
// against the backend, since the index only ever tracks presence, not
// the body itself.
func (idx *Index) Get(ctx context.Context, key string) (io.ReadCloser, *store.Meta, bool, error) {
	if idx.cache.Get(key) == nil {
		return nil, nil, false, nil
	}

	body, meta, found, err := idx.backend.Get(ctx, key)
	if err != nil {
		return nil, nil, false, err
	}
	if !found {
		idx.cache.Delete(key)
		return nil, nil, false, nil
	}
	return body, meta, true, nil
}

func (idx *Index) Put(ctx context.Context, key string, body io.Reader, meta *store.Meta) error {
	if err := idx.backend.Put(ctx, key, body, meta); err != nil {
		return err
	}
	ttl := ttlcache.DefaultTTL
	if meta.TTL > 0 {
		ttl = meta.TTL
	}
	idx.cache.Set(key, struct{}{}, ttl)
	return nil
}

func (idx *Index) Delete(ctx context.Context, key string) error {
	idx.cache.Delete(key)
	return idx.backend.Delete(ctx, key)
}

func (idx *Index) PurgePrefix(ctx context.Context, prefix string) error {
	idx.cache.Range(func(item *ttlcache.Item[string, struct{}]) bool {
		key := item.Key()
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			idx.cache.Delete(key)
		}
		return true
	})
	return idx.backend.PurgePrefix(ctx, prefix)
}

func (idx *Index) Close() error {
	idx.cache.Stop()
	return idx.backend.Close()
}
