package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"visionaid/internal/logger"
)

// ErrBusy is returned when the lane queue is full.
var ErrBusy = errors.New("worker queue full")

// ErrStopped is returned after Stop.
var ErrStopped = errors.New("worker stopped")

// Job is one unit of work executed on the lane goroutine.
type Job func(ctx context.Context)

type task struct {
	ctx context.Context
	job Job
}

// Runner executes jobs one at a time on a single goroutine, in submission order.
type Runner struct {
	taskCh chan task
	stopCh chan struct{}
	once   sync.Once
	log    *zap.Logger
}

// NewRunner starts a lane that buffers up to queueSize pending jobs.
func NewRunner(queueSize int, log *zap.Logger) *Runner {
	if queueSize < 0 {
		queueSize = 0
	}
	log = logger.OrNop(log)
	r := &Runner{
		taskCh: make(chan task, queueSize),
		stopCh: make(chan struct{}),
		log:    log,
	}
	go r.run()
	return r
}

// Submit enqueues job without waiting for it. It returns ErrBusy when the
// queue is full. A job whose ctx has ended by the time the lane reaches it is
// skipped; callers learn about completion through the job itself.
func (r *Runner) Submit(ctx context.Context, job Job) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-r.stopCh:
		return ErrStopped
	default:
	}
	select {
	case r.taskCh <- task{ctx: ctx, job: job}:
		return nil
	default:
		return ErrBusy
	}
}

// Stopped is closed once Stop has been called.
func (r *Runner) Stopped() <-chan struct{} {
	return r.stopCh
}

// Stop terminates the lane; queued jobs are dropped.
func (r *Runner) Stop() {
	r.once.Do(func() { close(r.stopCh) })
}

func (r *Runner) run() {
	for {
		select {
		case <-r.stopCh:
			r.log.Debug("worker lane stopped")
			return
		case t := <-r.taskCh:
			r.exec(t)
		}
	}
}

func (r *Runner) exec(t task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("worker job panicked", zap.Any("panic", rec))
		}
	}()
	if err := t.ctx.Err(); err != nil {
		r.log.Debug("skip cancelled job", zap.Error(err))
		return
	}
	t.job(t.ctx)
}
