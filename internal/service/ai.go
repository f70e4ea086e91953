package service

import (
	"github.com/faro-watch/faro/backend/internal/metrics"
	"github.com/faro-watch/faro/backend/internal/util"
	"github.com/faro-watch/faro/backend/pkg/ai"
	oai "github.com/faro-watch/faro/backend/pkg/ai/ollama"
	gai "github.com/faro-watch/faro/backend/pkg/ai/openai"
	"github.com/faro-watch/faro/backend/pkg/curation"
)

// Review modes.
const (
	ReviewInline = "inline"
	ReviewQueue  = "queue"
	ReviewOff    = "off"
)

// NewCompletionClient builds the LLM client selected by AI_ADAPTER.
func NewCompletionClient() (ai.CompletionClient, error) {
	switch util.GetEnv("AI_ADAPTER") {
	case "ollama":
		return oai.NewReviewOllamaClient(oai.NewReviewOllamaClientParams{
			ReviewModel: util.GetEnv("AI_REVIEW_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 4)),
		})
	default:
		return gai.NewReviewOpenAIClient(gai.NewReviewOpenAIClientParams{
			ReviewModel: util.GetEnv("AI_REVIEW_MODEL"),

			ChatURL: util.GetEnv("AI_CHAT_URL"),
			ChatKey: util.GetEnv("AI_CHAT_KEY"),
		}), nil
	}
}

// NewReviewer wraps client in the automated reviewer, counting failures on
// reg when given.
func NewReviewer(client ai.CompletionClient, reg *metrics.Registry) *ai.Reviewer {
	opts := []ai.ReviewerOption{
		ai.WithReviewTimeout(util.GetEnvSeconds("AI_REVIEW_TIMEOUT_SECONDS", ai.DefaultReviewTimeout)),
	}
	if reg != nil {
		opts = append(opts, ai.WithFailureHook(reg.ReviewFailed))
	}
	return ai.NewReviewer(client, opts...)
}

// UseInlineReviews runs automated reviews inside this process.
func (s *Service) UseInlineReviews(reviewer curation.Reviewer, parallel int) *curation.InlineDispatcher {
	d := curation.NewInlineDispatcher(reviewer, s.Curation.ApplyReview, parallel)
	s.Curation.SetDispatcher(d)
	return d
}
