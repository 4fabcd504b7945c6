// Package llmclient implements domain/llm.ChatProvider and domain/llm.Embedder
// on github.com/openai/openai-go/v3, grounded on the teacher's
// botengine/providers/openai_provider.go (message/tool-call marshaling,
// per-call client construction, RawContent round-tripping). Rate limiting
// and 429 backoff are new here (spec §4.11) since the teacher provider has
// none; they are layered on top of core/retry rather than bolted into the
// message-building code.
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/abarwater/aqua-router/core/retry"
	"github.com/abarwater/aqua-router/domain/llm"
)

const (
	defaultChatModel      = openai.ChatModelGPT4oMini
	defaultEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small
)

// statusError adapts an openai-go *openai.Error into core/retry's
// StatusError contract so 429s get the same backoff as every other
// external call in this system (spec §4.11).
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) HTTPStatus() int { return e.status }
func (e *statusError) Unwrap() error   { return e.err }

func wrapStatus(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &statusError{status: apiErr.StatusCode, err: err}
	}
	return err
}

// Client is a process-wide rate-limited OpenAI client. A single instance
// should be shared by every caller (classifier, resolver, catalog agent)
// so MinRequestInterval actually throttles the whole process as spec
// §4.11 requires, not just one caller's view of it.
type Client struct {
	api   openai.Client
	Model string

	MinRequestInterval time.Duration
	RetryPolicy        retry.Policy

	mu       sync.Mutex
	lastCall time.Time
}

// New constructs a Client. minInterval and maxRetries come from
// config.Config (LLMMinRequestInterval / LLMMaxRetries). opts is forwarded
// to the underlying openai client unchanged, letting tests point Client at
// an httptest server via option.WithBaseURL instead of the real API.
func New(apiKey string, minInterval time.Duration, maxRetries int, baseDelay time.Duration, opts ...option.RequestOption) *Client {
	policy := retry.DefaultPolicy()
	policy.IsRetryable = retry.IsRetryableStatus
	if maxRetries > 0 {
		policy.MaxAttempts = maxRetries + 1
	}
	if baseDelay > 0 {
		policy.BaseDelay = baseDelay
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	return &Client{
		api:                openai.NewClient(clientOpts...),
		Model:              string(defaultChatModel),
		MinRequestInterval: minInterval,
		RetryPolicy:        policy,
	}
}

// throttle blocks until MinRequestInterval has elapsed since the last call
// this process made to the provider, spec §4.11's "process-wide minimum
// spacing between LLM requests."
func (c *Client) throttle() {
	if c.MinRequestInterval <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	wait := c.MinRequestInterval - time.Since(c.lastCall)
	if wait > 0 {
		time.Sleep(wait)
	}
	c.lastCall = time.Now()
}

// Chat implements llm.ChatProvider.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	c.throttle()

	model := c.Model
	if model == "" {
		model = string(defaultChatModel)
	}

	temperature := req.Temperature
	if temperature > llm.MaxTemperatureFreeText {
		temperature = llm.MaxTemperatureFreeText
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, t := range req.History {
		if t.RawContent != nil {
			if msg, ok := t.RawContent.(openai.ChatCompletionMessageParamUnion); ok {
				messages = append(messages, msg)
				continue
			}
		}
		if len(t.ToolCalls) > 0 {
			messages = append(messages, assistantToolCallMessage(t))
			continue
		}
		if len(t.ToolResponses) > 0 {
			for _, tr := range t.ToolResponses {
				data, _ := json.Marshal(tr.Data)
				messages = append(messages, openai.ToolMessage(string(data), tr.ID))
			}
			continue
		}
		if t.Role == "bot" || t.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(t.Text))
		} else {
			messages = append(messages, openai.UserMessage(t.Text))
		}
	}
	if req.UserText != "" {
		messages = append(messages, openai.UserMessage(req.UserText))
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = toolParams(req.Tools)
	}

	var completion *openai.ChatCompletion
	err := retry.Do(ctx, c.RetryPolicy, func(ctx context.Context) error {
		resp, callErr := c.api.Chat.Completions.New(ctx, params)
		if callErr != nil {
			return wrapStatus(callErr)
		}
		completion = resp
		return nil
	})
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("llmclient: chat: %w", err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("llmclient: no completion choices returned")
	}

	choice := completion.Choices[0]
	out := llm.ChatResponse{
		Text:       choice.Message.Content,
		RawContent: choice.Message.ToParam(),
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	out.Usage = &llm.Usage{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}

	return out, nil
}

func assistantToolCallMessage(t llm.ChatTurn) openai.ChatCompletionMessageParamUnion {
	var toolCalls []openai.ChatCompletionMessageToolCallUnionParam
	for _, tc := range t.ToolCalls {
		argsData, _ := json.Marshal(tc.Args)
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: string(argsData),
				},
				Type: "function",
			},
		})
	}
	msg := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
	if t.Text != "" {
		msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(t.Text)}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

func toolParams(tools []llm.Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  openai.FunctionParameters(t.InputSchema),
				},
			},
		})
	}
	return out
}

// Embed implements llm.Embedder using the same rate-limited, retried client.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	c.throttle()

	params := openai.EmbeddingNewParams{
		Model: defaultEmbeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	}

	var resp *openai.CreateEmbeddingResponse
	err := retry.Do(ctx, c.RetryPolicy, func(ctx context.Context) error {
		r, callErr := c.api.Embeddings.New(ctx, params)
		if callErr != nil {
			return wrapStatus(callErr)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("llmclient: embed: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, fmt.Errorf("llmclient: no embedding data returned")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}
