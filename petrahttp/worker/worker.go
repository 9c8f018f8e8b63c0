// Package worker runs the background optimization queue consumed by
// petrahttp's asynchronous caching mode.
package worker

import (
	"bytes"
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lovell/petra/petrahttp/optimize"
	"github.com/lovell/petra/store"
)

// Job names a cached entry awaiting optimization.
type Job struct {
	ID       string
	Key      string
	Store    store.Store
	Pipeline *optimize.Pipeline
}

// Logger is the subset of *log.Logger worker needs.
type Logger interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

type defaultLogger struct{}

func (defaultLogger) Printf(format string, v ...interface{}) { log.Printf(format, v...) }
func (defaultLogger) Println(v ...interface{})               { log.Println(v...) }

// Config configures a Worker pool.
type Config struct {
	QueueSize     int
	WorkerCount   int
	RetryAttempts int
	RetryDelay    time.Duration
	Logger        Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:     1000,
		WorkerCount:   4,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Second,
		Logger:        defaultLogger{},
	}
}

// Worker runs a fixed pool of goroutines draining a bounded job queue.
type Worker struct {
	queue       chan Job
	workerCount int
	retries     int
	retryDelay  time.Duration
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      Logger
}

// New creates a Worker pool from config, applying defaults for any
// zero-valued field except RetryAttempts: zero RetryAttempts means no
// retries, and only a negative value is replaced by the default.
func New(config Config) *Worker {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.RetryAttempts < 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = defaultLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		queue:       make(chan Job, config.QueueSize),
		workerCount: config.WorkerCount,
		retries:     config.RetryAttempts,
		retryDelay:  config.RetryDelay,
		ctx:         ctx,
		cancel:      cancel,
		logger:      config.Logger,
	}
}

// Start launches the worker pool's goroutines.
func (w *Worker) Start() {
	w.logger.Printf("starting %d cache optimization workers", w.workerCount)
	for i := 0; i < w.workerCount; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
}

// Stop cancels the workers and waits for them to exit. Jobs still in the
// queue when Stop is called may be left unprocessed.
func (w *Worker) Stop() {
	w.logger.Println("stopping cache optimization workers")
	w.cancel()
	close(w.queue)
	w.wg.Wait()
	w.logger.Println("cache optimization workers stopped")
}

// Enqueue adds a job to the queue under a freshly generated ID. It
// drops the job rather than blocking when the queue is full.
func (w *Worker) Enqueue(key string, s store.Store, pipeline *optimize.Pipeline) error {
	job := Job{ID: uuid.NewString(), Key: key, Store: s, Pipeline: pipeline}
	select {
	case w.queue <- job:
		return nil
	default:
		w.logger.Println("optimization queue is full, dropping job for key:", job.Key)
		return nil
	}
}

func (w *Worker) run(workerID int) {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case job, ok := <-w.queue:
			if !ok {
				return
			}
			w.processWithRetry(workerID, job)
		}
	}
}

func (w *Worker) processWithRetry(workerID int, job Job) {
	var err error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if err = w.process(workerID, job); err == nil {
			return
		}
		if attempt < w.retries {
			w.logger.Printf("worker %d: job %s failed (attempt %d/%d): %v", workerID, job.ID, attempt+1, w.retries+1, err)
			time.Sleep(w.retryDelay)
		}
	}
	w.logger.Printf("worker %d: job %s for key %s gave up after %d attempts: %v", workerID, job.ID, job.Key, w.retries+1, err)
}

func (w *Worker) process(workerID int, job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reader, meta, found, err := job.Store.Get(ctx, job.Key)
	if err != nil {
		return err
	}
	if !found {
		w.logger.Printf("worker %d: content not found in cache for key %s", workerID, job.Key)
		return nil
	}
	defer reader.Close()

	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	optimized, optimizedMeta, err := job.Pipeline.ApplyToBytes(ctx, body, meta)
	if err != nil {
		return err
	}

	if err := job.Store.Put(ctx, job.Key, bytes.NewReader(optimized), optimizedMeta); err != nil {
		return err
	}

	w.logger.Printf("worker %d: optimized key %s (original: %d bytes, optimized: %d bytes)",
		workerID, job.Key, len(body), len(optimized))
	return nil
}

// QueueLen returns the number of jobs currently queued.
func (w *Worker) QueueLen() int { return len(w.queue) }

// QueueCap returns the configured queue capacity.
func (w *Worker) QueueCap() int { return cap(w.queue) }
