package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/corvid-labs/agentchain/types"
)

// ChatRequest is one synchronous model call.
type ChatRequest struct {
	Model       string            `json:"model"`
	Messages    []types.Message   `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
	// ResponseSchema, when set, asks the provider for a JSON object that
	// validates against this JSON Schema instead of free text.
	ResponseSchema json.RawMessage   `json:"response_schema,omitempty"`
	Timeout        time.Duration     `json:"timeout,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Usage reports token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatResponse is the provider's answer to a ChatRequest.
type ChatResponse struct {
	Content      string    `json:"content"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider,omitempty"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Usage        Usage     `json:"usage,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Provider adapts one upstream model API.
type Provider interface {
	// Completion issues a synchronous chat request and returns the full
	// response. Implementations must honor ctx cancellation.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider's identifier for logs and metrics.
	Name() string
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

// Completion implements Provider.
func (f ProviderFunc) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return f(ctx, req)
}

// Name implements Provider.
func (f ProviderFunc) Name() string { return "func" }

// StructuredCompletion runs a completion with a response schema and decodes
// the result into out. The provider's answer must be a single JSON object.
func StructuredCompletion(ctx context.Context, p Provider, req *ChatRequest, schema json.RawMessage, out any) error {
	r := *req
	r.ResponseSchema = schema
	resp, err := p.Completion(ctx, &r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(resp.Content), out); err != nil {
		return types.NewError(types.ErrUpstreamError, "provider returned malformed structured output").WithCause(err)
	}
	return nil
}
