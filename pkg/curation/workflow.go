// Package curation gates graph admission. Every PERSON or ORG mention gets
// one review queue item; registry-backed and clean mentions are approved on
// the spot, everything else waits for the automated reviewer or a curator.
package curation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/dedupe"
	"github.com/faro-watch/faro/backend/pkg/graph"
	"github.com/faro-watch/faro/backend/pkg/logger"
	"github.com/faro-watch/faro/backend/pkg/match"
	"github.com/faro-watch/faro/backend/pkg/store"
)

var (
	ErrItemNotFound      = errors.New("review item not found")
	ErrInvalidTransition = errors.New("invalid review transition")
	// ErrAdmission reports that a transition was stored but admitting the
	// mention into the graph failed. The item keeps its new status; Readmit
	// retries the admission.
	ErrAdmission = errors.New("graph admission failed")
)

// Deciders recorded on automatic transitions.
const (
	DecidedByRegistry = "system:registry"
	DecidedByClean    = "system:clean"
	DecidedByReviewer = "system:reviewer"
)

// ReviewerApproveConfidence is the reviewer confidence that must be
// exceeded for an automatic approval.
const ReviewerApproveConfidence = 0.85

// Admitter puts approved mentions into the graph.
type Admitter interface {
	AdmitMention(ctx context.Context, identities graph.IdentityLookup, item common.ReviewQueueItem, merged ...common.Mention) (graph.Admission, error)
}

// Dispatcher hands a review request to the automated reviewer without
// waiting for the answer.
type Dispatcher interface {
	Dispatch(ctx context.Context, req common.ReviewRequest) error
}

// Observer is notified of status changes.
type Observer interface {
	ItemStatus(status common.ReviewStatus, decidedBy string)
}

// Config wires a Workflow.
type Config struct {
	Queue    store.QueueStore
	Mentions store.MentionStore
	Articles store.ArticleStore
	Matcher  *match.Holder
	Dedupe   *dedupe.Deduplicator
	Admitter Admitter
	Observer Observer
}

// Workflow is the review queue state machine.
type Workflow struct {
	queue      store.QueueStore
	mentions   store.MentionStore
	articles   store.ArticleStore
	matcher    *match.Holder
	dedupe     *dedupe.Deduplicator
	admitter   Admitter
	dispatcher Dispatcher
	observer   Observer
	now        func() time.Time
}

// New returns a Workflow. Reviews are not dispatched until SetDispatcher is
// called.
func New(cfg Config) *Workflow {
	d := cfg.Dedupe
	if d == nil {
		d = dedupe.New(dedupe.DefaultLists(), dedupe.DefaultMinSimilarity)
	}
	return &Workflow{
		queue:    cfg.Queue,
		mentions: cfg.Mentions,
		articles: cfg.Articles,
		matcher:  cfg.Matcher,
		dedupe:   d,
		admitter: cfg.Admitter,
		observer: cfg.Observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetDispatcher sets where PENDING items are sent for automated review.
func (w *Workflow) SetDispatcher(d Dispatcher) {
	w.dispatcher = d
}

func (w *Workflow) observe(item common.ReviewQueueItem) {
	if w.observer != nil {
		w.observer.ItemStatus(item.Status, item.DecidedBy)
	}
}

// Snapshot returns the current registry matcher, or nil when the workflow
// matches against no registry.
func (w *Workflow) Snapshot() *match.Matcher {
	if w.matcher == nil {
		return nil
	}
	return w.matcher.Load()
}

func identitiesOf(m *match.Matcher) graph.IdentityLookup {
	if m == nil {
		return nil
	}
	return m.Registry()
}

// Enqueue is EnqueueWith over the current registry snapshot.
func (w *Workflow) Enqueue(ctx context.Context, mention common.Mention) (common.ReviewQueueItem, graph.Admission, error) {
	return w.EnqueueWith(ctx, w.Snapshot(), mention)
}

// EnqueueWith creates the queue item of mention and applies the entry
// rules, matching against snap. A run passes the same snap for all of its
// mentions so a registry import cannot land between two of them.
// Enqueueing an already queued mention returns the stored item; approved
// items are re-admitted, which is a no-op once the graph holds them.
func (w *Workflow) EnqueueWith(ctx context.Context, snap *match.Matcher, mention common.Mention) (common.ReviewQueueItem, graph.Admission, error) {
	if existing, err := w.queue.GetItem(ctx, mention.ID); err == nil {
		if !existing.Status.Approving() {
			return existing, graph.Admission{}, nil
		}
		adm, err := w.admit(ctx, snap, existing)
		return existing, adm, err
	} else if !errors.Is(err, store.ErrNotFound) {
		return common.ReviewQueueItem{}, graph.Admission{}, fmt.Errorf("failed to look up review item %s: %w", mention.ID, err)
	}

	now := w.now()
	item := common.ReviewQueueItem{
		MentionID: mention.ID,
		Status:    common.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if snap != nil {
		item.IdentityMatch = snap.Match(mention)
	}

	issues := w.dedupe.FlagForReview(mention)
	switch {
	case match.IsHighConfidence(item.IdentityMatch):
		item.Status = common.StatusAutoApproved
		item.DecidedBy = DecidedByRegistry
		item.DecidedAt = &now
	case len(issues) == 0 && item.IdentityMatch == nil:
		item.Status = common.StatusAutoApproved
		item.DecidedBy = DecidedByClean
		item.DecidedAt = &now
	default:
		item.Issues = issues
		if m := item.IdentityMatch; m != nil {
			item.Issues = append(item.Issues, fmt.Sprintf("fuzzy registry match %s scored %.0f", m.IdentityID, m.Score))
		}
		dups, err := w.duplicates(ctx, mention)
		if err != nil {
			return common.ReviewQueueItem{}, graph.Admission{}, err
		}
		item.DuplicateCandidates = dups
	}

	if err := w.queue.CreateItem(ctx, item); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) || errors.Is(err, store.ErrConflict) {
			existing, err := w.queue.GetItem(ctx, mention.ID)
			return existing, graph.Admission{}, err
		}
		return common.ReviewQueueItem{}, graph.Admission{}, fmt.Errorf("failed to create review item %s: %w", mention.ID, err)
	}
	w.observe(item)
	logger.Debug("[Curation] Enqueued mention", "mention", mention.ID, "text", mention.RawText, "status", item.Status)

	if item.Status.Approving() {
		adm, err := w.admit(ctx, snap, item)
		return item, adm, err
	}

	w.dispatch(ctx, mention)
	return item, graph.Admission{}, nil
}

func (w *Workflow) duplicates(ctx context.Context, mention common.Mention) ([]common.DuplicateCandidate, error) {
	candidates, err := w.mentions.ListMentionsByType(ctx, mention.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s mentions: %w", mention.Type, err)
	}
	return w.dedupe.FindDuplicates(mention, candidates), nil
}

func (w *Workflow) dispatch(ctx context.Context, mention common.Mention) {
	if w.dispatcher == nil {
		return
	}
	req := common.ReviewRequest{
		MentionID:         mention.ID,
		MentionText:       mention.RawText,
		NormalizedText:    mention.NormalizedText,
		EntityType:        mention.Type,
		CurrentConfidence: mention.ExtractionConfidence,
		ContextSnippet:    w.snippet(ctx, mention),
	}
	if err := w.dispatcher.Dispatch(ctx, req); err != nil {
		// The item stays PENDING for a curator.
		logger.Warn("[Curation] Failed to dispatch review", "mention", mention.ID, "err", err)
	}
}

func (w *Workflow) snippet(ctx context.Context, mention common.Mention) string {
	if w.articles == nil {
		return mention.RawText
	}
	article, err := w.articles.GetArticle(ctx, mention.SourceArticleID)
	if err != nil {
		return mention.RawText
	}
	return Snippet(article.RawText, mention.Offsets, SnippetRadius)
}

func (w *Workflow) admit(ctx context.Context, snap *match.Matcher, item common.ReviewQueueItem, merged ...common.Mention) (graph.Admission, error) {
	if w.admitter == nil {
		return graph.Admission{}, nil
	}
	adm, err := w.admitter.AdmitMention(ctx, identitiesOf(snap), item, merged...)
	if err != nil {
		return adm, fmt.Errorf("%w: mention %s: %w", ErrAdmission, item.MentionID, err)
	}
	return adm, nil
}

// Readmit admits an approved item again, for instance after an earlier
// admission failed. Items merged into it are folded in as well.
func (w *Workflow) Readmit(ctx context.Context, mentionID string) (common.ReviewQueueItem, graph.Admission, error) {
	item, err := w.Get(ctx, mentionID)
	if err != nil {
		return item, graph.Admission{}, err
	}
	if !item.Status.Approving() {
		return item, graph.Admission{}, fmt.Errorf("%w: %s is %s, not approved", ErrInvalidTransition, mentionID, item.Status)
	}

	var merged []common.Mention
	if item.Status == common.StatusApproved {
		items, err := w.queue.ListItems(ctx, common.StatusMerged)
		if err != nil {
			return item, graph.Admission{}, fmt.Errorf("failed to list merged items: %w", err)
		}
		for _, dup := range items {
			if dup.MergedInto != mentionID {
				continue
			}
			m, err := w.mentions.GetMention(ctx, dup.MentionID)
			if err != nil {
				return item, graph.Admission{}, fmt.Errorf("%w: failed to load mention %s: %w", ErrAdmission, dup.MentionID, err)
			}
			merged = append(merged, m)
		}
	}
	adm, err := w.admit(ctx, w.Snapshot(), item, merged...)
	return item, adm, err
}

// errStale aborts a reviewer transition on an item that is no longer
// PENDING.
var errStale = errors.New("review item already decided")

// ApplyReview applies an automated reviewer result to a PENDING item.
// Results arriving after a decision are dropped.
func (w *Workflow) ApplyReview(ctx context.Context, mentionID string, result common.ReviewResult) (common.ReviewQueueItem, error) {
	item, err := w.queue.Transition(ctx, mentionID, func(item *common.ReviewQueueItem) error {
		if item.Status != common.StatusPending {
			return errStale
		}
		verdict := result
		item.ReviewerVerdict = &verdict
		item.UpdatedAt = w.now()

		switch {
		case result.Recommendation == common.RecommendApprove && result.Confidence > ReviewerApproveConfidence:
			now := w.now()
			item.Status = common.StatusAutoApproved
			item.DecidedBy = DecidedByReviewer
			item.DecidedAt = &now
		case result.Recommendation == common.RecommendInvestigate:
			issue := "automated reviewer requested investigation"
			if result.Explanation != "" {
				issue += ": " + result.Explanation
			}
			item.Issues = append(item.Issues, issue)
		}
		return nil
	})
	switch {
	case errors.Is(err, errStale):
		logger.Debug("[Curation] Dropped late review", "mention", mentionID)
		return w.queue.GetItem(ctx, mentionID)
	case errors.Is(err, store.ErrNotFound):
		return common.ReviewQueueItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, mentionID)
	case err != nil:
		return common.ReviewQueueItem{}, fmt.Errorf("failed to apply review to %s: %w", mentionID, err)
	}

	logger.Info("[Curation] Applied review", "mention", mentionID, "recommendation", result.Recommendation, "confidence", result.Confidence, "status", item.Status)
	if item.Status.Approving() {
		w.observe(item)
		if _, err := w.admit(ctx, w.Snapshot(), item); err != nil {
			return item, err
		}
	}
	return item, nil
}

func (w *Workflow) decide(ctx context.Context, mentionID string, to common.ReviewStatus, curatorID, notes string) (common.ReviewQueueItem, error) {
	item, err := w.queue.Transition(ctx, mentionID, func(item *common.ReviewQueueItem) error {
		if item.Status != common.StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, item.MentionID, item.Status)
		}
		now := w.now()
		item.Status = to
		item.DecidedBy = curatorID
		item.DecidedAt = &now
		item.Notes = notes
		item.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return common.ReviewQueueItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, mentionID)
		}
		return common.ReviewQueueItem{}, err
	}
	w.observe(item)
	logger.Info("[Curation] Curator decision", "mention", mentionID, "status", to, "curator", curatorID)
	return item, nil
}

// Approve moves a PENDING item to APPROVED and admits the mention. The
// transition is stored before admission: an error wrapping ErrAdmission
// comes with the APPROVED item, and Readmit retries the admission.
func (w *Workflow) Approve(ctx context.Context, mentionID, curatorID, notes string) (common.ReviewQueueItem, error) {
	item, err := w.decide(ctx, mentionID, common.StatusApproved, curatorID, notes)
	if err != nil {
		return item, err
	}
	_, err = w.admit(ctx, w.Snapshot(), item)
	return item, err
}

// Reject moves a PENDING item to REJECTED.
func (w *Workflow) Reject(ctx context.Context, mentionID, curatorID, reason string) (common.ReviewQueueItem, error) {
	return w.decide(ctx, mentionID, common.StatusRejected, curatorID, reason)
}

// MergeDuplicates approves primaryID and marks every duplicate MERGED into
// it. All items must be PENDING; otherwise nothing changes. As with Approve,
// the transitions are stored first; a later failure wraps ErrAdmission and
// comes with the decided items.
func (w *Workflow) MergeDuplicates(ctx context.Context, primaryID string, duplicateIDs []string, curatorID string) ([]common.ReviewQueueItem, error) {
	if len(duplicateIDs) == 0 {
		return nil, fmt.Errorf("%w: merge into %s names no duplicates", ErrInvalidTransition, primaryID)
	}
	ids := append([]string{primaryID}, duplicateIDs...)
	for i, id := range ids {
		if slices.Contains(ids[:i], id) {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInvalidTransition, id)
		}
	}

	items, err := w.queue.TransitionMany(ctx, ids, func(items []*common.ReviewQueueItem) error {
		for _, item := range items {
			if item.Status != common.StatusPending {
				return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, item.MentionID, item.Status)
			}
		}
		now := w.now()
		for i, item := range items {
			item.DecidedBy = curatorID
			item.DecidedAt = &now
			item.UpdatedAt = now
			if i == 0 {
				item.Status = common.StatusApproved
				continue
			}
			item.Status = common.StatusMerged
			item.MergedInto = primaryID
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrItemNotFound, err)
		}
		return nil, err
	}
	for _, item := range items {
		w.observe(item)
	}

	primary, err := w.mentions.GetMention(ctx, primaryID)
	if err != nil {
		return items, fmt.Errorf("%w: failed to load mention %s: %w", ErrAdmission, primaryID, err)
	}
	merged := primary
	dups := make([]common.Mention, 0, len(duplicateIDs))
	for _, id := range duplicateIDs {
		dup, err := w.mentions.GetMention(ctx, id)
		if err != nil {
			return items, fmt.Errorf("%w: failed to load mention %s: %w", ErrAdmission, id, err)
		}
		merged = dedupe.MergeMentions(merged, dup)
		dups = append(dups, dup)
	}
	if merged.RawText != primary.RawText {
		// Keep the replaced spelling as an alternate name of the node.
		dups = append(dups, primary)
		if err := w.mentions.UpdateMentionText(ctx, primaryID, merged.RawText, merged.NormalizedText); err != nil {
			return items, fmt.Errorf("%w: failed to update mention %s: %w", ErrAdmission, primaryID, err)
		}
	}
	logger.Info("[Curation] Merged duplicates", "primary", primaryID, "duplicates", len(duplicateIDs), "curator", curatorID, "text", merged.RawText)

	_, err = w.admit(ctx, w.Snapshot(), items[0], dups...)
	return items, err
}

// Get returns the queue item of mentionID.
func (w *Workflow) Get(ctx context.Context, mentionID string) (common.ReviewQueueItem, error) {
	item, err := w.queue.GetItem(ctx, mentionID)
	if errors.Is(err, store.ErrNotFound) {
		return item, fmt.Errorf("%w: %s", ErrItemNotFound, mentionID)
	}
	return item, err
}

// List returns the items with status, or all items when status is empty.
func (w *Workflow) List(ctx context.Context, status common.ReviewStatus) ([]common.ReviewQueueItem, error) {
	return w.queue.ListItems(ctx, status)
}
