package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// VarnishStore fronts a Varnish cache by issuing HTTP PURGE requests.
// Varnish owns the actual body storage; this store exists so petrahttp
// can issue the same Delete/PurgePrefix calls against either a local
// FSStore or a Varnish-fronted origin without branching on backend.
//
// Get always reports a miss: petrahttp fronts Varnish with Varnish's
// own request handling, so a VarnishStore is only ever used for its
// Delete/PurgePrefix side (invalidation), never to serve bytes back.
type VarnishStore struct {
	baseURL    string
	httpClient *http.Client
}

// NewVarnishStore returns a VarnishStore that sends PURGE requests to
// baseURL. timeout bounds each PURGE request; zero uses 10 seconds.
func NewVarnishStore(baseURL string, timeout time.Duration) *VarnishStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &VarnishStore{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (vs *VarnishStore) Get(ctx context.Context, key string) (io.ReadCloser, *Meta, bool, error) {
	return nil, nil, false, nil
}

func (vs *VarnishStore) Put(ctx context.Context, key string, body io.Reader, meta *Meta) error {
	return nil
}

func (vs *VarnishStore) Delete(ctx context.Context, key string) error {
	return vs.purge(ctx, vs.baseURL+"/"+key)
}

func (vs *VarnishStore) PurgePrefix(ctx context.Context, prefix string) error {
	req, err := http.NewRequestWithContext(ctx, "BAN", vs.baseURL+"/"+prefix, nil)
	if err != nil {
		return fmt.Errorf("store: failed to build BAN request: %w", err)
	}
	req.Header.Set("X-Ban-Prefix", prefix)

	resp, err := vs.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store: varnish BAN request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("store: varnish BAN returned status %d", resp.StatusCode)
	}
	return nil
}

// Ban issues a BAN request carrying a raw Varnish ban expression rather
// than a bare key prefix, for callers that need VCL-level ban lists
// (e.g. "req.url ~ ^/images/" or header-based bans).
func (vs *VarnishStore) Ban(ctx context.Context, expression string) error {
	req, err := http.NewRequestWithContext(ctx, "BAN", vs.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("store: failed to build BAN request: %w", err)
	}
	req.Header.Set("X-Ban-Expression", expression)

	resp, err := vs.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store: varnish BAN request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("store: varnish BAN returned status %d", resp.StatusCode)
	}
	return nil
}

func (vs *VarnishStore) Close() error { return nil }

func (vs *VarnishStore) purge(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, "PURGE", url, nil)
	if err != nil {
		return fmt.Errorf("store: failed to build PURGE request: %w", err)
	}

	resp, err := vs.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store: varnish PURGE request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("store: varnish PURGE returned status %d", resp.StatusCode)
	}
	return nil
}
