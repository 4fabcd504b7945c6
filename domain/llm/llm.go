// Package llm is the agnostic chat-completion + embedding contract shared
// by the classifier (C7), resolver evaluator (C8) and catalog agent (C9),
// adapted from the teacher's botengine/domain provider split. Mindset,
// multimodal interpretation and per-bot routing are dropped — this system
// has exactly one persona and no image/video path (DESIGN.md).
package llm

import "context"

// ToolCall is one tool invocation the model asked for.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is what a tool call produced, fed back into the next Chat call.
type ToolResult struct {
	ID   string
	Name string
	Data any
}

// Tool describes one callable surface entry (name/description/JSON schema),
// reusing the teacher's botengine/domain/mcp.Tool shape even though no
// external MCP server is wired — the shape, not the protocol, is what's
// grounded.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ChatTurn is one piece of conversation history handed to the model.
type ChatTurn struct {
	Role          string // "user", or "bot"/"assistant" for model turns
	Text          string
	ToolCalls     []ToolCall
	ToolResponses []ToolResult
	RawContent    any // provider-native content, re-injected on the next turn
}

// ChatRequest is a single-step request into the provider. Only one tool
// call is ever requested per step (spec §4.7, §4.11 — "single call per step").
type ChatRequest struct {
	SystemPrompt string
	History      []ChatTurn
	UserText     string
	Tools        []Tool
	Temperature  float64
	MaxTokens    int
}

// Usage carries token accounting for observability, optional for any
// given provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// ChatResponse is the provider-agnostic reply: either plain text (the loop
// stops) or exactly one tool call (the loop continues).
type ChatResponse struct {
	Text       string
	ToolCalls  []ToolCall
	RawContent any
	Usage      *Usage
}

// Temperature ceilings from spec §4.11.
const (
	MaxTemperatureDeterministic = 0.2 // classification / evaluation
	MaxTemperatureFreeText      = 0.7 // agent free text
)

// ChatProvider is the thin interface every LLM-backed component depends on.
type ChatProvider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Embedder produces an L2-normalized embedding vector for text, used by
// the knowledge index (C4).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
