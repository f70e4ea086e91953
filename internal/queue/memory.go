package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/faro-watch/faro/backend/internal/util"
	"github.com/faro-watch/faro/backend/pkg/logger"
)

var ErrQueueClosed = errors.New("job queue closed")

// JobQueue is an in-process work queue with the same retry schedule as the
// AMQP queues. It backs tests and the CLI.
type JobQueue struct {
	runner     *JobRunner
	retryBase  time.Duration
	maxRetries int

	ctx     context.Context
	work    chan memoryJob
	pending sync.WaitGroup
}

type memoryJob struct {
	msg     ArticleJobMsg
	retries int
}

type JobQueueOptions struct {
	Workers    int
	RetryBase  time.Duration
	MaxRetries int
}

// NewJobQueue starts the workers; they stop when ctx is done.
func NewJobQueue(ctx context.Context, runner *JobRunner, opts JobQueueOptions) *JobQueue {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = RetryBase
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	q := &JobQueue{
		runner:     runner,
		retryBase:  opts.RetryBase,
		maxRetries: opts.MaxRetries,
		ctx:        ctx,
		work:       make(chan memoryJob),
	}
	for range opts.Workers {
		go q.loop()
	}
	return q
}

func (q *JobQueue) EnqueueJob(ctx context.Context, msg ArticleJobMsg) error {
	q.pending.Add(1)
	select {
	case q.work <- memoryJob{msg: msg}:
		return nil
	case <-ctx.Done():
		q.pending.Done()
		return ctx.Err()
	case <-q.ctx.Done():
		q.pending.Done()
		return ErrQueueClosed
	}
}

// Wait blocks until every enqueued job has succeeded or failed for good.
func (q *JobQueue) Wait() {
	q.pending.Wait()
}

func (q *JobQueue) loop() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case j := <-q.work:
			q.run(j)
		}
	}
}

func (q *JobQueue) run(j memoryJob) {
	err := q.runner.Run(q.ctx, j.msg, j.retries+1)
	if err == nil {
		q.pending.Done()
		return
	}
	if j.retries >= q.maxRetries || errors.Is(err, ErrMalformed) {
		q.runner.Fail(q.ctx, j.msg, err)
		q.pending.Done()
		return
	}

	j.retries++
	delay := util.Backoff(q.retryBase, j.retries)
	logger.Info("[Queue] Scheduled retry", "job", j.msg.JobID, "retry", j.retries, "delay", delay)
	time.AfterFunc(delay, func() {
		select {
		case q.work <- j:
		case <-q.ctx.Done():
			q.pending.Done()
		}
	})
}
