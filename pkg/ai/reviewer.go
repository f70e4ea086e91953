package ai

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/logger"
)

// DefaultSnippetTokens caps the article context sent with a review request.
const DefaultSnippetTokens = 256

// DefaultReviewTimeout bounds one review call.
const DefaultReviewTimeout = 60 * time.Second

// Failure categories of a review call.
const (
	ReviewTransport = "transport"
	ReviewDecode    = "decode"
	ReviewInvalid   = "invalid"
)

// ReviewError describes why a review answer was replaced by the fail-safe
// result.
type ReviewError struct {
	Kind      string
	MentionID string
	Err       error
}

func (e *ReviewError) Error() string {
	return fmt.Sprintf("review of %s failed (%s): %v", e.MentionID, e.Kind, e.Err)
}

func (e *ReviewError) Unwrap() error {
	return e.Err
}

// Tokenizer is the subset of *tiktoken.Tiktoken used to cap snippets.
type Tokenizer interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func defaultTokenizer() Tokenizer {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("o200k_base")
		if err != nil {
			logger.Warn("[AI] Token encoding unavailable, capping snippets by characters", "err", err)
			return
		}
		encoding = enc
	})
	if encoding == nil {
		return nil
	}
	return encoding
}

// Reviewer asks a language model whether a mention is a genuine entity.
// It never fails: every error is logged and answered with flag/0.
type Reviewer struct {
	client        CompletionClient
	model         string
	timeout       time.Duration
	snippetTokens int
	tokenizer     func() Tokenizer
	onFailure     func(*ReviewError)
}

type ReviewerOption func(*Reviewer)

// WithReviewModel overrides the client's default model.
func WithReviewModel(model string) ReviewerOption {
	return func(r *Reviewer) { r.model = model }
}

// WithReviewTimeout bounds a single review call.
func WithReviewTimeout(d time.Duration) ReviewerOption {
	return func(r *Reviewer) { r.timeout = d }
}

// WithSnippetTokens caps the context snippet at n tokens.
func WithSnippetTokens(n int) ReviewerOption {
	return func(r *Reviewer) { r.snippetTokens = n }
}

// WithTokenizer replaces the o200k_base encoding.
func WithTokenizer(t Tokenizer) ReviewerOption {
	return func(r *Reviewer) { r.tokenizer = func() Tokenizer { return t } }
}

// WithFailureHook is called for every fail-safe answer.
func WithFailureHook(fn func(*ReviewError)) ReviewerOption {
	return func(r *Reviewer) { r.onFailure = fn }
}

func NewReviewer(client CompletionClient, opts ...ReviewerOption) *Reviewer {
	r := &Reviewer{
		client:        client,
		timeout:       DefaultReviewTimeout,
		snippetTokens: DefaultSnippetTokens,
		tokenizer:     defaultTokenizer,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Review classifies req.
func (r *Reviewer) Review(ctx context.Context, req common.ReviewRequest) common.ReviewResult {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(reviewPromptTemplate,
		req.EntityType, req.MentionText, req.NormalizedText, req.CurrentConfidence,
		r.capSnippet(req.ContextSnippet))
	opts := []GenerateOption{WithSystemPrompts(reviewSystemPrompt), WithTemperature(0.1)}
	if r.model != "" {
		opts = append(opts, WithModel(r.model))
	}

	var out common.ReviewResult
	err := r.client.GenerateCompletionWithFormat(ctx, "entity_review", "Verdict on an extracted entity mention", prompt, &out, opts...)
	if err != nil {
		kind := ReviewTransport
		if isDecodeError(err) {
			kind = ReviewDecode
		}
		return r.fail(&ReviewError{Kind: kind, MentionID: req.MentionID, Err: err})
	}
	if err := validate(&out); err != nil {
		return r.fail(&ReviewError{Kind: ReviewInvalid, MentionID: req.MentionID, Err: err})
	}

	logger.Debug("[AI] Reviewed mention", "mention", req.MentionID, "recommendation", out.Recommendation, "confidence", out.Confidence)
	return out
}

func (r *Reviewer) fail(err *ReviewError) common.ReviewResult {
	logger.Warn("[AI] Review failed, flagging for human review", "mention", err.MentionID, "kind", err.Kind, "err", err.Err)
	if r.onFailure != nil {
		r.onFailure(err)
	}
	return common.ReviewResult{
		Recommendation: common.RecommendFlag,
		Confidence:     0,
		Explanation:    "automated review unavailable: " + err.Kind,
	}
}

func validate(out *common.ReviewResult) error {
	switch common.Recommendation(strings.ToLower(strings.TrimSpace(string(out.Recommendation)))) {
	case common.RecommendApprove:
		out.Recommendation = common.RecommendApprove
	case common.RecommendFlag:
		out.Recommendation = common.RecommendFlag
	case common.RecommendInvestigate:
		out.Recommendation = common.RecommendInvestigate
	default:
		return fmt.Errorf("unknown recommendation %q", out.Recommendation)
	}
	if math.IsNaN(out.Confidence) || out.Confidence < 0 || out.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", out.Confidence)
	}
	return nil
}

func (r *Reviewer) capSnippet(snippet string) string {
	if r.snippetTokens <= 0 {
		return snippet
	}
	if tok := r.tokenizer(); tok != nil {
		tokens := tok.Encode(snippet, nil, nil)
		if len(tokens) <= r.snippetTokens {
			return snippet
		}
		return tok.Decode(tokens[:r.snippetTokens])
	}
	// Roughly four characters per token.
	runes := []rune(snippet)
	if limit := r.snippetTokens * 4; len(runes) > limit {
		return string(runes[:limit])
	}
	return snippet
}
