package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faro-watch/faro/backend/pkg/ai"
	"github.com/faro-watch/faro/backend/pkg/common"
)

func completionServer(t *testing.T, status int, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			require.NoError(t, json.Unmarshal(body, seen))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "review-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateCompletionWithFormat(t *testing.T) {
	var seen map[string]any
	srv := completionServer(t, http.StatusOK, `{"recommendation":"investigate","confidence":0.6,"explanation":"common name","suggested_category":""}`, &seen)
	c := NewReviewOpenAIClient(NewReviewOpenAIClientParams{ReviewModel: "review-model", ChatURL: srv.URL, ChatKey: "test-key"})

	var out common.ReviewResult
	err := c.GenerateCompletionWithFormat(context.Background(), "entity_review", "verdict", "Juan Pérez?", &out, ai.WithSystemPrompts("be careful"))
	require.NoError(t, err)
	assert.Equal(t, common.RecommendInvestigate, out.Recommendation)
	assert.InDelta(t, 0.6, out.Confidence, 1e-9)

	assert.Equal(t, "review-model", seen["model"])
	format, ok := seen["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
	msgs, ok := seen["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)

	metrics := c.GetMetrics()
	assert.Equal(t, 20, metrics.TotalTokens)
	c.ResetMetrics()
	assert.Zero(t, c.GetMetrics().TotalTokens)
}

func TestGenerateCompletion(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "plain answer", nil)
	c := NewReviewOpenAIClient(NewReviewOpenAIClientParams{ReviewModel: "review-model", ChatURL: srv.URL, ChatKey: "test-key"})

	got, err := c.GenerateCompletion(context.Background(), "hello", ai.WithModel("other"))
	require.NoError(t, err)
	assert.Equal(t, "plain answer", got)
	assert.NoError(t, c.LoadModel(context.Background()))
}

func TestGenerateCompletionWithFormatTransportError(t *testing.T) {
	srv := completionServer(t, http.StatusBadRequest, "", nil)
	c := NewReviewOpenAIClient(NewReviewOpenAIClientParams{ChatURL: srv.URL, ChatKey: "test-key"})

	var out common.ReviewResult
	err := c.GenerateCompletionWithFormat(context.Background(), "entity_review", "verdict", "x", &out)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ai.ErrDecode)
}

func TestReviewerOverOpenAI(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `{"recommendation":"approve","confidence":0.97,"explanation":"sanctioned official","suggested_category":""}`, nil)
	c := NewReviewOpenAIClient(NewReviewOpenAIClientParams{ReviewModel: "review-model", ChatURL: srv.URL, ChatKey: "test-key"})
	r := ai.NewReviewer(c, ai.WithSnippetTokens(0))

	got := r.Review(context.Background(), common.ReviewRequest{MentionID: "m1", MentionText: "Nicolás Maduro", EntityType: common.MentionPerson})
	assert.Equal(t, common.RecommendApprove, got.Recommendation)
	assert.InDelta(t, 0.97, got.Confidence, 1e-9)
}
