package curation

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/logger"
)

// Reviewer classifies a mention. Implementations never fail: a broken call
// answers flag with confidence 0.
type Reviewer interface {
	Review(ctx context.Context, req common.ReviewRequest) common.ReviewResult
}

// ApplyFunc delivers a reviewer result back to the queue.
type ApplyFunc func(ctx context.Context, mentionID string, result common.ReviewResult) (common.ReviewQueueItem, error)

// FailSafe is the result used whenever the reviewer cannot answer.
func FailSafe(explanation string) common.ReviewResult {
	return common.ReviewResult{Recommendation: common.RecommendFlag, Confidence: 0, Explanation: explanation}
}

// InlineDispatcher runs reviews on background goroutines of this process.
type InlineDispatcher struct {
	reviewer Reviewer
	apply    ApplyFunc
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
}

// NewInlineDispatcher returns a dispatcher running at most parallel reviews
// at a time.
func NewInlineDispatcher(reviewer Reviewer, apply ApplyFunc, parallel int) *InlineDispatcher {
	if parallel < 1 {
		parallel = 1
	}
	return &InlineDispatcher{reviewer: reviewer, apply: apply, sem: semaphore.NewWeighted(int64(parallel))}
}

// Dispatch starts the review and returns immediately.
func (d *InlineDispatcher) Dispatch(ctx context.Context, req common.ReviewRequest) error {
	// The review outlives the request that queued the mention.
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			logger.Error("[Curation] Failed to acquire review slot", "mention", req.MentionID, "err", err)
			return
		}
		defer d.sem.Release(1)

		result := Run(ctx, d.reviewer, req)
		if _, err := d.apply(ctx, req.MentionID, result); err != nil {
			logger.Error("[Curation] Failed to apply review", "mention", req.MentionID, "err", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched review has been applied.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

// Run calls reviewer and converts a panic into the fail-safe result.
func Run(ctx context.Context, reviewer Reviewer, req common.ReviewRequest) (result common.ReviewResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Curation] Reviewer panicked", "mention", req.MentionID, "panic", r)
			result = FailSafe(fmt.Sprintf("reviewer failed: %v", r))
		}
	}()
	if reviewer == nil {
		return FailSafe("no reviewer configured")
	}
	return reviewer.Review(ctx, req)
}
