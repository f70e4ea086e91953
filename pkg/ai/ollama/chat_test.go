package ollama

import (
	"strings"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faro-watch/faro/backend/pkg/ai"
)

func TestRequestOptions(t *testing.T) {
	c, err := NewReviewOllamaClient(NewReviewOllamaClientParams{ReviewModel: "llama3", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)

	req := c.request("Juan Pérez?", 0.1, []ai.GenerateOption{ai.WithSystemPrompts("be careful"), ai.WithThinking("low")})
	assert.Equal(t, "llama3", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, 0.1, req.Options["temperature"])
	assert.NotNil(t, req.Think)
	require.NotNil(t, req.Stream)
	assert.False(t, *req.Stream)
	assert.NotContains(t, req.Options, "num_ctx")
}

func TestRequestGrowsContextForLongPrompts(t *testing.T) {
	c, err := NewReviewOllamaClient(NewReviewOllamaClientParams{ReviewModel: "llama3"})
	require.NoError(t, err)

	req := c.request(strings.Repeat("testaferro de Nicolás Maduro ", 2000), 0.1, nil)
	assert.Greater(t, req.Options["num_ctx"], defaultContext)
}

func TestCountTokensHasHeadroom(t *testing.T) {
	assert.GreaterOrEqual(t, countTokens([]api.Message{{Content: ""}}), 200)
}

func TestInvalidBaseURL(t *testing.T) {
	_, err := NewReviewOllamaClient(NewReviewOllamaClientParams{BaseURL: "://bad"})
	assert.Error(t, err)
}
