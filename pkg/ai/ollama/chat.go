package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"

	"github.com/faro-watch/faro/backend/pkg/ai"
)

// defaultContext is Ollama's default num_ctx.
const defaultContext = 4096

func (c *ReviewOllamaClient) request(prompt string, temperature float64, opts []ai.GenerateOption) *api.ChatRequest {
	options := ai.GenerateOptions{
		Model:       c.reviewModel,
		Temperature: temperature,
	}
	for _, o := range opts {
		o(&options)
	}

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}

	// Grow the context window when the prompt would not fit.
	if tokens := countTokens(msgs); tokens > defaultContext {
		req.Options["num_ctx"] = tokens
	}
	return req
}

// countTokens estimates the prompt size plus headroom for the answer. Without
// the encoding it assumes four bytes per token.
func countTokens(msgs []api.Message) int {
	tokens := 200
	enc, err := tiktoken.GetEncoding("o200k_base")
	for _, m := range msgs {
		if err != nil {
			tokens += len(m.Content)/4 + 1
			continue
		}
		tokens += len(enc.Encode(m.Content, nil, nil))
	}
	return tokens
}

func (c *ReviewOllamaClient) chat(ctx context.Context, req *api.ChatRequest) (string, error) {
	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})
	return final.Message.Content, nil
}

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *ReviewOllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	return c.chat(ctx, c.request(prompt, 0.3, opts))
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (c *ReviewOllamaClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if out == nil {
		return errors.New("out must be a non-nil pointer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	format, err := json.Marshal(ai.AnswerSchema(out))
	if err != nil {
		return err
	}

	req := c.request(prompt, 0.1, opts)
	req.Format = json.RawMessage(format)

	content, err := c.chat(ctx, req)
	if err != nil {
		return err
	}
	return ai.DecodeAnswer(content, out)
}

// LoadModel preloads the review model to cut first-request latency.
func (c *ReviewOllamaClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error {
	options := ai.GenerateOptions{Model: c.reviewModel}
	for _, o := range opts {
		o(&options)
	}
	return c.Client.Chat(ctx, &api.ChatRequest{Model: options.Model}, func(api.ChatResponse) error {
		return nil
	})
}
