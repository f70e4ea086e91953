package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/curation"
	"github.com/faro-watch/faro/backend/pkg/logger"
	"github.com/faro-watch/faro/backend/pkg/pipeline"
	"github.com/faro-watch/faro/backend/pkg/store"
)

// ErrMalformed marks a message that can never succeed.
var ErrMalformed = errors.New("malformed message")

// Enqueuer hands a job to the work queue.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, msg ArticleJobMsg) error
}

// ArticleProcessor runs the pipeline for one stored article.
type ArticleProcessor interface {
	ProcessArticleID(ctx context.Context, articleID string) (pipeline.Result, error)
}

// JobObserver is told about every job that reached a final state.
type JobObserver interface {
	JobFinished(status common.JobStatus)
}

// Submitter stores an article and queues a job for it.
type Submitter struct {
	articles store.ArticleStore
	jobs     store.JobStore
	queue    Enqueuer
}

func NewSubmitter(articles store.ArticleStore, jobs store.JobStore, queue Enqueuer) *Submitter {
	return &Submitter{articles: articles, jobs: jobs, queue: queue}
}

// Submit saves the article and enqueues it. The returned job is QUEUED.
func (s *Submitter) Submit(ctx context.Context, article common.Article) (common.Job, error) {
	if article.ID == "" {
		article.ID = common.NewID("art")
	}
	if err := s.articles.SaveArticle(ctx, article); err != nil {
		return common.Job{}, fmt.Errorf("failed to save article %s: %w", article.ID, err)
	}

	now := time.Now().UTC()
	job := common.Job{
		ID:        common.NewID("job"),
		ArticleID: article.ID,
		Status:    common.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return common.Job{}, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.queue.EnqueueJob(ctx, ArticleJobMsg{JobID: job.ID, ArticleID: article.ID}); err != nil {
		_, _ = s.jobs.UpdateJob(ctx, job.ID, func(j *common.Job) {
			j.Status = common.JobFailed
			j.LastError = err.Error()
		})
		return common.Job{}, fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	logger.Info("[Queue] Article submitted", "article", article.ID, "job", job.ID)
	return job, nil
}

// JobRunner executes article jobs and keeps their status current.
type JobRunner struct {
	jobs      store.JobStore
	processor ArticleProcessor
	observer  JobObserver
}

func NewJobRunner(jobs store.JobStore, processor ArticleProcessor, observer JobObserver) *JobRunner {
	return &JobRunner{jobs: jobs, processor: processor, observer: observer}
}

// Run makes one attempt (1-based) at the job. An error means the attempt
// failed and the job stays eligible for a retry.
func (r *JobRunner) Run(ctx context.Context, msg ArticleJobMsg, attempt int) error {
	if _, err := r.jobs.UpdateJob(ctx, msg.JobID, func(j *common.Job) {
		j.Status = common.JobRunning
		j.Attempts = attempt
	}); err != nil {
		return fmt.Errorf("failed to start job %s: %w", msg.JobID, err)
	}

	res, err := r.processor.ProcessArticleID(ctx, msg.ArticleID)
	if err != nil {
		logger.Warn("[Queue] Job attempt failed", "job", msg.JobID, "attempt", attempt, "err", err)
		_, _ = r.jobs.UpdateJob(ctx, msg.JobID, func(j *common.Job) {
			j.Status = common.JobQueued
			j.LastError = err.Error()
		})
		return err
	}

	if _, err := r.jobs.UpdateJob(ctx, msg.JobID, func(j *common.Job) {
		j.Status = common.JobSucceeded
		j.LastError = ""
	}); err != nil {
		return fmt.Errorf("failed to finish job %s: %w", msg.JobID, err)
	}
	logger.Info("[Queue] Job succeeded", "job", msg.JobID, "article", msg.ArticleID, "mentions", res.MentionsCreated, "nodes", res.NodesCreated)
	r.finished(common.JobSucceeded)
	return nil
}

// Fail marks the job FAILED after its retries are spent.
func (r *JobRunner) Fail(ctx context.Context, msg ArticleJobMsg, cause error) {
	_, err := r.jobs.UpdateJob(ctx, msg.JobID, func(j *common.Job) {
		j.Status = common.JobFailed
		if cause != nil {
			j.LastError = cause.Error()
		}
	})
	if err != nil {
		logger.Error("[Queue] Failed to mark job failed", "job", msg.JobID, "err", err)
	}
	logger.Error("[Queue] Job failed", "job", msg.JobID, "article", msg.ArticleID, "err", cause)
	r.finished(common.JobFailed)
}

func (r *JobRunner) finished(status common.JobStatus) {
	if r.observer != nil {
		r.observer.JobFinished(status)
	}
}

// ReviewRunner executes queued automated reviews.
type ReviewRunner struct {
	reviewer curation.Reviewer
	apply    curation.ApplyFunc
}

func NewReviewRunner(reviewer curation.Reviewer, apply curation.ApplyFunc) *ReviewRunner {
	return &ReviewRunner{reviewer: reviewer, apply: apply}
}

// Process reviews the mention of a ReviewJobMsg and applies the result.
func (r *ReviewRunner) Process(ctx context.Context, body []byte) error {
	var msg ReviewJobMsg
	if err := json.Unmarshal(body, &msg); err != nil || msg.Request.MentionID == "" {
		return fmt.Errorf("%w: review job", ErrMalformed)
	}
	result := curation.Run(ctx, r.reviewer, msg.Request)
	if _, err := r.apply(ctx, msg.Request.MentionID, result); err != nil {
		if errors.Is(err, curation.ErrItemNotFound) {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return fmt.Errorf("failed to apply review of %s: %w", msg.Request.MentionID, err)
	}
	return nil
}

func decodeArticleJob(body []byte) (ArticleJobMsg, error) {
	var msg ArticleJobMsg
	if err := json.Unmarshal(body, &msg); err != nil || msg.JobID == "" || msg.ArticleID == "" {
		return ArticleJobMsg{}, fmt.Errorf("%w: article job", ErrMalformed)
	}
	return msg, nil
}
