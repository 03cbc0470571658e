package llm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ScriptedProvider returns canned responses keyed by a substring of the last
// user message, falling back to a default answer. It backs local development
// and tests where no upstream model is configured.
type ScriptedProvider struct {
	mu       sync.Mutex
	rules    []scriptRule
	fallback string
	calls    int
}

type scriptRule struct {
	contains string
	reply    string
}

// NewScriptedProvider creates a provider that answers fallback for every
// request until rules are added.
func NewScriptedProvider(fallback string) *ScriptedProvider {
	return &ScriptedProvider{fallback: fallback}
}

// On registers a canned reply for requests whose last message contains the
// given substring. Matching is case-insensitive, first rule wins.
func (p *ScriptedProvider) On(contains, reply string) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, scriptRule{contains: strings.ToLower(contains), reply: reply})
	return p
}

// Calls returns how many completions have been served.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Completion implements Provider.
func (p *ScriptedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	content := p.fallback
	if n := len(req.Messages); n > 0 {
		last := strings.ToLower(req.Messages[n-1].Content)
		for _, r := range p.rules {
			if strings.Contains(last, r.contains) {
				content = r.reply
				break
			}
		}
	}

	return &ChatResponse{
		Content:      content,
		Model:        req.Model,
		Provider:     p.Name(),
		FinishReason: "stop",
		CreatedAt:    time.Now(),
	}, nil
}

// Name implements Provider.
func (p *ScriptedProvider) Name() string { return "scripted" }
