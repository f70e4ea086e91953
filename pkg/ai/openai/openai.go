package openai

import (
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/faro-watch/faro/backend/pkg/ai"
)

// ReviewOpenAIClient implements ai.CompletionClient on an OpenAI-compatible
// chat completions endpoint.
type ReviewOpenAIClient struct {
	reviewModel string
	chatURL     string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient *openai.Client
}

// NewReviewOpenAIClientParams configures a ReviewOpenAIClient. An empty
// ChatURL targets api.openai.com.
type NewReviewOpenAIClientParams struct {
	ReviewModel string

	ChatURL string
	ChatKey string
}

func NewReviewOpenAIClient(params NewReviewOpenAIClientParams) *ReviewOpenAIClient {
	return &ReviewOpenAIClient{
		reviewModel: params.ReviewModel,
		chatURL:     params.ChatURL,
		ChatClient:  newOpenaiClient(params.ChatURL, params.ChatKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// ResetMetrics clears all accumulated token and timing metrics.
func (c *ReviewOpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

// GetMetrics returns the metrics accumulated since the last reset.
func (c *ReviewOpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *ReviewOpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.Add(m)
}
