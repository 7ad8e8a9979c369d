package queue

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue is closed")

// Priority orders jobs within the queue. Workers always drain higher
// priorities first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityDefault
	PriorityLow
	numPriorities
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "default"
	}
}

// Job is a unit of work. Key identifies the job in logs; it does not have
// to be unique.
type Job interface {
	Key() string
	Run(ctx context.Context) error
}

type item struct {
	id   string
	job  Job
	done func(error)
}

// Queue is an in-process priority job queue. Jobs are run by a fixed pool
// of workers started with Start.
type Queue struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	lists  [numPriorities][]*item
	closed bool

	workers sync.WaitGroup
	pending sync.WaitGroup
}

// New creates an empty queue. Call Start before enqueueing work, otherwise
// jobs pile up unserved.
func New(logger *slog.Logger) *Queue {
	q := &Queue{logger: logger}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches n workers bound to ctx. When ctx is cancelled the workers
// finish their current job and exit.
func (q *Queue) Start(ctx context.Context, n int) {
	if n <= 0 {
		n = 1
	}

	// Wake blocked workers when the context dies.
	go func() {
		<-ctx.Done()
		q.cond.Broadcast()
	}()

	for i := 0; i < n; i++ {
		q.workers.Add(1)
		go q.worker(ctx, i)
	}
}

// Enqueue adds a single job. The returned ID correlates log lines for
// this job.
func (q *Queue) Enqueue(pri Priority, j Job) (string, error) {
	return q.enqueue(pri, j, nil)
}

// EnqueueBatch adds jobs as a group. done is called once, after every job
// in the batch has finished, with the errors of the jobs that failed.
// done may be nil.
func (q *Queue) EnqueueBatch(pri Priority, jobs []Job, done func(failed []error)) error {
	if len(jobs) == 0 {
		if done != nil {
			done(nil)
		}
		return nil
	}

	var (
		mu        sync.Mutex
		remaining = len(jobs)
		failed    []error
	)
	finish := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed = append(failed, err)
		}
		remaining--
		if remaining == 0 && done != nil {
			done(failed)
		}
	}

	for _, j := range jobs {
		if _, err := q.enqueue(pri, j, finish); err != nil {
			finish(err)
		}
	}
	return nil
}

func (q *Queue) enqueue(pri Priority, j Job, done func(error)) (string, error) {
	if pri < PriorityHigh || pri >= numPriorities {
		pri = PriorityDefault
	}

	it := &item{id: uuid.NewString(), job: j, done: done}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrClosed
	}
	q.lists[pri] = append(q.lists[pri], it)
	q.pending.Add(1)
	q.mu.Unlock()

	q.cond.Signal()
	q.logger.Debug("job enqueued", "job_id", it.id, "key", j.Key(), "priority", pri.String())
	return it.id, nil
}

// Close stops accepting new jobs. Already-queued jobs still run.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Wait blocks until every enqueued job has finished.
func (q *Queue) Wait() {
	q.pending.Wait()
}

// Shutdown closes the queue and waits for the workers to exit.
func (q *Queue) Shutdown() {
	q.Close()
	q.workers.Wait()
}

func (q *Queue) worker(ctx context.Context, n int) {
	defer q.workers.Done()

	for {
		it := q.next(ctx)
		if it == nil {
			return
		}

		start := time.Now()
		err := it.job.Run(ctx)
		if err != nil {
			q.logger.Error("job failed", "job_id", it.id, "key", it.job.Key(), "worker", n, "error", err)
		} else {
			q.logger.Debug("job done", "job_id", it.id, "key", it.job.Key(), "worker", n, "duration", time.Since(start))
		}
		if it.done != nil {
			it.done(err)
		}
		q.pending.Done()
	}
}

// next pops the highest-priority queued item, blocking until one is
// available, the queue drains after Close, or ctx is cancelled.
func (q *Queue) next(ctx context.Context) *item {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return nil
		}
		for pri := range q.lists {
			if len(q.lists[pri]) > 0 {
				it := q.lists[pri][0]
				q.lists[pri] = q.lists[pri][1:]
				return it
			}
		}
		if q.closed {
			return nil
		}
		q.cond.Wait()
	}
}

// Runner restarts a long-running loop after transient failures with capped
// exponential delays. After maxRestarts consecutive failures the last error
// is returned so the process can exit non-zero.
type Runner struct {
	Name        string
	MaxRestarts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *slog.Logger
}

// Run invokes fn until it returns nil, the context is cancelled, or the
// restart budget is spent.
func (r *Runner) Run(ctx context.Context, fn func(context.Context) error) error {
	restarts := 0
	for {
		err := fn(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		restarts++
		if restarts > r.MaxRestarts {
			r.Logger.Error("runner giving up", "name", r.Name, "restarts", restarts-1, "error", err)
			return err
		}

		delay := r.restartDelay(restarts)
		r.Logger.Warn("runner restarting", "name", r.Name, "restart", restarts, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Runner) restartDelay(restart int) time.Duration {
	base := r.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := time.Duration(math.Pow(2, float64(restart-1))) * base
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}
