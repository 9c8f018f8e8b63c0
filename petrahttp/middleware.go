package petrahttp

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/lovell/petra/petrahttp/optimize"
	"github.com/lovell/petra/store"
)

// OptimizationMode selects when the optimization pipeline runs.
type OptimizationMode string

const (
	OptimizationDisabled OptimizationMode = "disabled"
	OptimizationSync     OptimizationMode = "sync"
	OptimizationAsync    OptimizationMode = "async"
)

// JobQueue enqueues asynchronous optimization jobs.
type JobQueue interface {
	Enqueue(job OptimizationJob) error
}

// OptimizationJob names a cached entry that needs optimizing.
type OptimizationJob struct {
	Key      string
	Store    store.Store
	Pipeline *optimize.Pipeline
}

// Config configures Middleware.
type Config struct {
	Enabled bool

	Store       store.Store
	KeyGen      *KeyGenerator
	PathMatcher *PathMatcher

	DefaultTTL   time.Duration
	MaxCacheSize int64

	OptimizationMode     OptimizationMode
	OptimizationPipeline *optimize.Pipeline
	WorkerQueue          JobQueue

	OnCacheEvent func(hostname, eventType string, size int64)
}

// Middleware wraps an http.Handler with a read-through cache.
type Middleware struct {
	config  Config
	handler http.Handler
	stats   *Stats
}

// Stats tracks cache counters.
type Stats struct {
	mu       sync.RWMutex
	Hits     int64
	Misses   int64
	Puts     int64
	Errors   int64
	Bypasses int64
}

// NewMiddleware wraps handler with caching according to config.
func NewMiddleware(config Config, handler http.Handler) *Middleware {
	if config.KeyGen == nil {
		config.KeyGen = NewKeyGenerator()
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = time.Hour
	}
	if config.MaxCacheSize <= 0 {
		config.MaxCacheSize = 10 * 1024 * 1024
	}
	return &Middleware{config: config, handler: handler, stats: &Stats{}}
}

func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !m.config.Enabled {
		m.handler.ServeHTTP(w, r)
		return
	}

	if !m.isCacheable(r) {
		m.stats.incrementBypasses()
		m.handler.ServeHTTP(w, r)
		return
	}

	key := m.config.KeyGen.GenerateKey(r)
	ctx := r.Context()

	reader, meta, found, err := m.config.Store.Get(ctx, key)
	if err != nil {
		m.stats.incrementErrors()
		m.handler.ServeHTTP(w, r)
		return
	}

	if found {
		m.stats.incrementHits()
		m.notify(r.Host, "hit", 0)
		m.serveCachedResponse(w, r, reader, meta)
		return
	}

	m.stats.incrementMisses()
	m.notify(r.Host, "miss", 0)
	m.fetchAndCache(w, r, key)
}

func (m *Middleware) isCacheable(r *http.Request) bool {
	if !IsCacheable(r) {
		return false
	}
	if m.config.PathMatcher != nil {
		return m.config.PathMatcher.Match(r.URL.Path)
	}
	return true
}

func (m *Middleware) serveCachedResponse(w http.ResponseWriter, r *http.Request, reader io.ReadCloser, meta *store.Meta) {
	defer reader.Close()

	w.Header().Set("X-Cache", "HIT")
	w.Header().Set("Age", strconv.FormatInt(meta.Age(), 10))

	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	if meta.Encoding != "" {
		w.Header().Set("Content-Encoding", meta.Encoding)
	}
	if meta.ETag != "" {
		w.Header().Set("ETag", meta.ETag)
	}

	if remaining := meta.TTL - time.Since(meta.CachedAt); remaining > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.FormatInt(int64(remaining.Seconds()), 10))
	}

	for k, v := range meta.Headers {
		w.Header().Set(k, v)
	}

	w.WriteHeader(meta.StatusCode)
	bytesSent, _ := io.Copy(w, reader)
	if bytesSent > 0 {
		m.notify(r.Host, "traffic", bytesSent)
	}
}

func (m *Middleware) fetchAndCache(w http.ResponseWriter, r *http.Request, key string) {
	recorder := &responseRecorder{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		headers:        make(http.Header),
		body:           &bytes.Buffer{},
	}

	m.handler.ServeHTTP(recorder, r)

	if !IsResponseCacheable(recorder.statusCode, recorder.headers) ||
		int64(recorder.body.Len()) > m.config.MaxCacheSize {
		m.writeRecordedResponse(w, recorder, r)
		return
	}

	meta := &store.Meta{
		ContentType: recorder.headers.Get("Content-Type"),
		StatusCode:  recorder.statusCode,
		TTL:         m.config.DefaultTTL,
		CachedAt:    time.Now(),
		ETag:        recorder.headers.Get("ETag"),
		Headers:     make(map[string]string),
	}
	for _, h := range []string{"Last-Modified", "Vary"} {
		if v := recorder.headers.Get(h); v != "" {
			meta.Headers[h] = v
		}
	}

	bodyBytes := recorder.body.Bytes()

	switch m.config.OptimizationMode {
	case OptimizationSync:
		if m.config.OptimizationPipeline != nil {
			if optimized, optimizedMeta, err := m.config.OptimizationPipeline.ApplyToBytes(r.Context(), bodyBytes, meta); err == nil {
				bodyBytes = optimized
				meta = optimizedMeta
			}
		}
	case OptimizationAsync:
		if m.config.WorkerQueue != nil && m.config.OptimizationPipeline != nil {
			m.config.WorkerQueue.Enqueue(OptimizationJob{
				Key:      key,
				Store:    m.config.Store,
				Pipeline: m.config.OptimizationPipeline,
			})
		}
	}

	if err := m.config.Store.Put(r.Context(), key, bytes.NewReader(bodyBytes), meta); err == nil {
		m.stats.incrementPuts()
		m.notify(r.Host, "put", int64(len(bodyBytes)))
	}

	w.Header().Set("X-Cache", "MISS")
	m.writeRecordedResponse(w, recorder, r)
}

func (m *Middleware) writeRecordedResponse(w http.ResponseWriter, recorder *responseRecorder, r *http.Request) {
	for k, values := range recorder.headers {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(recorder.statusCode)
	bodyBytes := recorder.body.Bytes()
	w.Write(bodyBytes)
	if len(bodyBytes) > 0 {
		m.notify(r.Host, "traffic", int64(len(bodyBytes)))
	}
}

func (m *Middleware) notify(hostname, eventType string, size int64) {
	if m.config.OnCacheEvent != nil {
		m.config.OnCacheEvent(hostname, eventType, size)
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	headers    http.Header
	body       *bytes.Buffer
}

func (rr *responseRecorder) WriteHeader(statusCode int) {
	rr.statusCode = statusCode
	for k, v := range rr.ResponseWriter.Header() {
		rr.headers[k] = v
	}
}

// Write only buffers; writeRecordedResponse sends the buffered body to the
// client once the caching decision has been made.
func (rr *responseRecorder) Write(data []byte) (int, error) {
	return rr.body.Write(data)
}

// GetStats returns a snapshot of current counters.
func (m *Middleware) GetStats() Stats {
	m.stats.mu.RLock()
	defer m.stats.mu.RUnlock()
	return Stats{
		Hits:     m.stats.Hits,
		Misses:   m.stats.Misses,
		Puts:     m.stats.Puts,
		Errors:   m.stats.Errors,
		Bypasses: m.stats.Bypasses,
	}
}

func (s *Stats) incrementHits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Hits++
}

func (s *Stats) incrementMisses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Misses++
}

func (s *Stats) incrementPuts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Puts++
}

func (s *Stats) incrementErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors++
}

func (s *Stats) incrementBypasses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Bypasses++
}
