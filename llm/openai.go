package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/types"
)

// OpenAIConfig configures the OpenAI-compatible HTTP provider. BaseURL may
// point at any server speaking the chat completions dialect.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIProvider speaks the OpenAI chat completions protocol.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider creates a provider against cfg.BaseURL.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("provider", "openai")),
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float32         `json:"temperature,omitempty"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason"`
	Message      openAIMessage `json:"message"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Completion implements Provider.
func (p *OpenAIProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	body := openAIRequest{
		Model:       model,
		Messages:    make([]openAIMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}
	if len(req.ResponseSchema) > 0 {
		body.ResponseFormat = json.RawMessage(`{"type":"json_object"}`)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "encode completion request").WithCause(err)
	}

	url := strings.TrimSuffix(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build completion request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewError(types.ErrUpstreamTimeout, "completion request timed out").WithCause(err)
		}
		return nil, types.NewError(types.ErrUpstreamError, "completion request failed").WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "read completion response").WithCause(err)
	}

	var out openAIResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode completion response").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("upstream returned status %d", resp.StatusCode)
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		e := types.NewError(types.ErrUpstreamError, msg)
		// 429 and 5xx are worth retrying; 4xx client errors are not.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			e = e.WithRetryable(true)
		} else {
			e = e.WithRetryable(false)
		}
		return nil, e
	}
	if len(out.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "upstream returned no choices")
	}

	choice := out.Choices[0]
	p.logger.Debug("completion finished",
		zap.String("model", out.Model),
		zap.String("finish_reason", choice.FinishReason),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return &ChatResponse{
		Content:      choice.Message.Content,
		Model:        out.Model,
		Provider:     p.Name(),
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
		CreatedAt: time.Now(),
	}, nil
}
