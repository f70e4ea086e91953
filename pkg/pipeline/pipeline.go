// Package pipeline runs articles through extraction, staging, curation and
// graph admission.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/curation"
	"github.com/faro-watch/faro/backend/pkg/extract"
	"github.com/faro-watch/faro/backend/pkg/leaselock"
	"github.com/faro-watch/faro/backend/pkg/logger"
	"github.com/faro-watch/faro/backend/pkg/match"
	"github.com/faro-watch/faro/backend/pkg/store"
	"github.com/faro-watch/faro/backend/pkg/textnorm"
)

// Result is the per-article report. Every processed article yields exactly
// one, failed or not.
type Result struct {
	ArticleID            string   `json:"article_id"`
	MentionsCreated      int      `json:"mentions_created"`
	RelationsCreated     int      `json:"relations_created"`
	NodesCreated         int      `json:"nodes_created"`
	EdgesCreated         int      `json:"edges_created"`
	FirstIdentityMatchID string   `json:"first_identity_match_id,omitempty"`
	Errors               []string `json:"errors"`
}

// Failed reports whether the article hit any error.
func (r Result) Failed() bool {
	return len(r.Errors) > 0
}

// Err joins the recorded errors, or returns nil.
func (r Result) Err() error {
	if !r.Failed() {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, msg := range r.Errors {
		errs[i] = errors.New(msg)
	}
	return fmt.Errorf("article %s: %w", r.ArticleID, errors.Join(errs...))
}

// Observer is notified after each article.
type Observer interface {
	ArticleProcessed(result Result, elapsed time.Duration)
}

// Store is the persistence the pipeline needs.
type Store interface {
	store.ArticleStore
	store.MentionStore
}

type Config struct {
	Store     Store
	Extractor *extract.Extractor
	Curation  *curation.Workflow
	// Locker serialises batch runs; nil runs unlocked.
	Locker leaselock.Locker
	// Parallel is the number of articles of a batch processed at once.
	// Values below 2 process sequentially.
	Parallel int
	Observer Observer
}

type Pipeline struct {
	store     Store
	extractor *extract.Extractor
	curation  *curation.Workflow
	locker    leaselock.Locker
	parallel  int
	observer  Observer
	now       func() time.Time
}

func New(cfg Config) *Pipeline {
	ex := cfg.Extractor
	if ex == nil {
		ex = extract.New(extract.DefaultRules())
	}
	return &Pipeline{
		store:     cfg.Store,
		extractor: ex,
		curation:  cfg.Curation,
		locker:    cfg.Locker,
		parallel:  cfg.Parallel,
		observer:  cfg.Observer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// MentionID is the stable id of a mention: the same article, type and
// offsets always give the same id.
func MentionID(articleID string, t common.MentionType, offsets common.ByteOffsets) string {
	return common.StableID("men", articleID, string(t), strconv.Itoa(offsets.Start), strconv.Itoa(offsets.End))
}

// RelationID is the stable id of a relation within an article.
func RelationID(articleID string, r common.RelationMention) string {
	return common.StableID("rel", articleID, r.Pattern, r.SubjectText, r.ObjectText, r.SentenceText)
}

func (p *Pipeline) snapshot() *match.Matcher {
	if p.curation == nil {
		return nil
	}
	return p.curation.Snapshot()
}

// ProcessArticle runs one article against the current registry snapshot.
// Failures, panics included, are recorded in the result; the article is
// marked processed only when none occurred.
func (p *Pipeline) ProcessArticle(ctx context.Context, article common.Article) Result {
	return p.processArticle(ctx, p.snapshot(), article)
}

func (p *Pipeline) processArticle(ctx context.Context, snap *match.Matcher, article common.Article) (res Result) {
	start := time.Now()
	res = Result{ArticleID: article.ID, Errors: []string{}}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Pipeline] Panic while processing article", "article", article.ID, "panic", r, "stack", string(debug.Stack()))
			res.Errors = append(res.Errors, fmt.Sprintf("panic: %v", r))
		}
		if p.observer != nil {
			p.observer.ArticleProcessed(res, time.Since(start))
		}
	}()

	if err := p.process(ctx, snap, article, &res); err != nil {
		res.Errors = append(res.Errors, err.Error())
	}
	if !res.Failed() {
		if err := p.store.MarkProcessed(ctx, article.ID, p.now()); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("failed to mark article processed: %v", err))
		}
	}

	if res.Failed() {
		logger.Warn("[Pipeline] Article finished with errors", "article", article.ID, "errors", len(res.Errors))
	} else {
		logger.Info("[Pipeline] Processed article", "article", article.ID,
			"mentions", res.MentionsCreated, "relations", res.RelationsCreated,
			"nodes", res.NodesCreated, "edges", res.EdgesCreated, "duration", time.Since(start))
	}
	return res
}

func (p *Pipeline) process(ctx context.Context, snap *match.Matcher, article common.Article, res *Result) error {
	var mentions []common.Mention
	var relations []common.RelationMention
	for c := range p.extractor.Extract(article.RawText, article.Language) {
		switch {
		case c.Mention != nil:
			m := *c.Mention
			m.SourceArticleID = article.ID
			m.ID = MentionID(article.ID, m.Type, m.Offsets)
			mentions = append(mentions, m)
		case c.Relation != nil:
			relations = append(relations, *c.Relation)
		}
	}

	for _, m := range mentions {
		created, err := p.store.AppendMention(ctx, m)
		if err != nil {
			return fmt.Errorf("failed to store mention %q: %w", m.RawText, err)
		}
		if created {
			res.MentionsCreated++
		}
	}

	// Relations reference mentions of the same article by normalized text.
	byKey := make(map[string]string, len(mentions))
	for _, m := range mentions {
		if m.Type == common.MentionLocation {
			continue
		}
		if _, taken := byKey[m.NormalizedText]; !taken {
			byKey[m.NormalizedText] = m.ID
		}
	}
	for _, r := range relations {
		r.SourceArticleID = article.ID
		r.ID = RelationID(article.ID, r)
		r.SubjectMentionID = byKey[textnorm.Key(r.SubjectText)]
		r.ObjectMentionID = byKey[textnorm.Key(r.ObjectText)]
		created, err := p.store.AppendRelation(ctx, r)
		if err != nil {
			return fmt.Errorf("failed to store relation %s: %w", r.ID, err)
		}
		if created {
			res.RelationsCreated++
		}
	}

	if p.curation == nil {
		return nil
	}
	for _, m := range mentions {
		if m.Type == common.MentionLocation {
			continue
		}
		item, adm, err := p.curation.EnqueueWith(ctx, snap, m)
		if err != nil {
			// One mention failing admission does not block the others.
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		if res.FirstIdentityMatchID == "" && item.IdentityMatch != nil {
			res.FirstIdentityMatchID = item.IdentityMatch.IdentityID
		}
		if adm.NodeCreated {
			res.NodesCreated++
		}
		res.EdgesCreated += adm.EdgesCreated
	}
	return nil
}

// ProcessArticleID loads and processes a stored article.
func (p *Pipeline) ProcessArticleID(ctx context.Context, articleID string) (Result, error) {
	article, err := p.store.GetArticle(ctx, articleID)
	if err != nil {
		return Result{ArticleID: articleID, Errors: []string{err.Error()}}, fmt.Errorf("failed to load article %s: %w", articleID, err)
	}
	res := p.ProcessArticle(ctx, article)
	return res, res.Err()
}

// ProcessBatch processes up to limit unprocessed articles and returns one
// result per article in listing order. The whole batch matches against the
// registry snapshot current when it starts. The error is reserved for
// failures of the batch itself: the lease or the article listing.
func (p *Pipeline) ProcessBatch(ctx context.Context, limit int) ([]Result, error) {
	var results []Result
	run := func(ctx context.Context) error {
		articles, err := p.store.ListUnprocessed(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to list unprocessed articles: %w", err)
		}
		logger.Info("[Pipeline] Starting batch", "articles", len(articles), "parallel", max(p.parallel, 1))
		results = p.processAll(ctx, articles)
		return nil
	}

	if p.locker == nil {
		err := run(ctx)
		return results, err
	}
	err := p.locker.WithLease(ctx, leaselock.KeyPipelineBatch, leaselock.Options{TTL: 2 * time.Minute}, run)
	return results, err
}

func (p *Pipeline) processAll(ctx context.Context, articles []common.Article) []Result {
	snap := p.snapshot()
	results := make([]Result, len(articles))
	if p.parallel < 2 {
		for i, a := range articles {
			results[i] = p.processArticle(ctx, snap, a)
		}
		return results
	}

	// ProcessArticle never fails, so the group only bounds concurrency.
	var g errgroup.Group
	g.SetLimit(p.parallel)
	for i, a := range articles {
		g.Go(func() error {
			results[i] = p.processArticle(ctx, snap, a)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
