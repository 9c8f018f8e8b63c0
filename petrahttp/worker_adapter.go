package petrahttp

import "github.com/lovell/petra/petrahttp/worker"

// WorkerQueue adapts a *worker.Worker to the JobQueue interface
// Middleware expects, translating an OptimizationJob into the
// arguments worker.Worker.Enqueue takes.
type WorkerQueue struct {
	w *worker.Worker
}

// NewWorkerQueue wraps w as a JobQueue.
func NewWorkerQueue(w *worker.Worker) *WorkerQueue {
	return &WorkerQueue{w: w}
}

func (wq *WorkerQueue) Enqueue(job OptimizationJob) error {
	return wq.w.Enqueue(job.Key, job.Store, job.Pipeline)
}
