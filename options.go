package petra

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HashFunc is the injected pure function url -> fingerprint. The default
// produces a 64-character lowercase hex SHA-256 digest.
type HashFunc func(url string) string

// HTTPDoer is the streaming request primitive the upstream fetcher is
// built on. *http.Client satisfies it; hosts may inject a client with a
// custom Transport (proxying, connection pooling, mocking in tests).
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options collects the construction-time configuration of an Instance.
// Every field has a default applied by New when left at its zero value;
// construction fails only if CacheDirectory is not readable and
// writable.
type Options struct {
	// CacheDirectory is the root of the on-disk cache.
	CacheDirectory string

	// MinimumTTL floors the effective TTL of every entry.
	MinimumTTL time.Duration

	// PurgeStaleInterval is the period of the background stale sweep.
	PurgeStaleInterval time.Duration

	// MediaTypes allow-lists upstream Content-Type values. Empty means
	// any content type is accepted.
	MediaTypes []string

	// RequestTimeout bounds time-to-first-byte (connect + headers).
	RequestTimeout time.Duration

	// ResponseTimeout bounds the body, measured from header receipt.
	// Zero disables the response timer.
	ResponseTimeout time.Duration

	// UserAgent is sent upstream on every request.
	UserAgent string

	// Hash is the injected url -> fingerprint function.
	Hash HashFunc

	// Client performs the upstream GET. Defaults to an *http.Client
	// whose own Timeout is left unset; RequestTimeout and
	// ResponseTimeout are enforced via context deadlines instead, so a
	// slow body doesn't need a larger client-wide timeout.
	Client HTTPDoer

	// Log is the sink for operational messages.
	Log Logger

	// Debug turns on verbose trace messages routed to Log.
	Debug bool
}

// Option mutates an Options value during construction.
type Option func(*Options)

// WithCacheDirectory overrides the cache root.
func WithCacheDirectory(dir string) Option {
	return func(o *Options) { o.CacheDirectory = dir }
}

// WithMinimumTTL overrides the TTL floor.
func WithMinimumTTL(d time.Duration) Option {
	return func(o *Options) { o.MinimumTTL = d }
}

// WithPurgeStaleInterval overrides the background sweep period.
func WithPurgeStaleInterval(d time.Duration) Option {
	return func(o *Options) { o.PurgeStaleInterval = d }
}

// WithMediaTypes sets the Content-Type allow-list.
func WithMediaTypes(types ...string) Option {
	return func(o *Options) { o.MediaTypes = types }
}

// WithRequestTimeout overrides the connect/header deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Options) { o.RequestTimeout = d }
}

// WithResponseTimeout overrides the body deadline. Zero disables it.
func WithResponseTimeout(d time.Duration) Option {
	return func(o *Options) { o.ResponseTimeout = d }
}

// WithUserAgent overrides the outgoing User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *Options) { o.UserAgent = ua }
}

// WithHash injects a custom fingerprint function.
func WithHash(h HashFunc) Option {
	return func(o *Options) { o.Hash = h }
}

// WithHTTPClient injects a custom upstream request primitive.
func WithHTTPClient(c HTTPDoer) Option {
	return func(o *Options) { o.Client = c }
}

// WithLogger injects a custom log sink.
func WithLogger(l Logger) Option {
	return func(o *Options) { o.Log = l }
}

// WithDebug turns on verbose trace logging.
func WithDebug(enabled bool) Option {
	return func(o *Options) { o.Debug = enabled }
}

func defaultHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func defaultCacheDirectory() string {
	return filepath.Join(os.TempDir(), "petra")
}

func defaultOptions() Options {
	return Options{
		CacheDirectory:     defaultCacheDirectory(),
		MinimumTTL:         7 * 24 * time.Hour,
		PurgeStaleInterval: 1 * time.Hour,
		MediaTypes:         nil,
		RequestTimeout:     10 * time.Second,
		ResponseTimeout:    10 * time.Second,
		UserAgent:          "lovell/petra",
		Hash:               defaultHash,
		Client:             &http.Client{},
		Log:                stdLogger{},
		Debug:              false,
	}
}

func buildOptions(opts ...Option) Options {
	o := defaultOptions()
	for _, apply := range opts {
		if apply == nil {
			continue
		}
		apply(&o)
	}
	if o.Hash == nil {
		o.Hash = defaultHash
	}
	if o.Client == nil {
		o.Client = &http.Client{}
	}
	if o.Log == nil {
		o.Log = stdLogger{}
	}
	if o.CacheDirectory == "" {
		o.CacheDirectory = defaultCacheDirectory()
	}
	return o
}
