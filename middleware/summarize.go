package middleware

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/graph"
	"github.com/corvid-labs/agentchain/llm"
	"github.com/corvid-labs/agentchain/types"
)

// SummaryMarker prefixes the synthetic assistant message that stands in for
// summarized history. Its presence is how a reader tells compacted turns
// from verbatim ones.
const SummaryMarker = "[Conversation summary] "

const defaultEncoding = "cl100k_base"

// SummarizeConfig tunes the summarization node.
type SummarizeConfig struct {
	// TriggerTokens is the estimated-token threshold above which history is
	// compacted.
	TriggerTokens int
	// KeepMessages is how many of the most recent messages survive verbatim.
	KeepMessages int
	// Model is passed through to the provider for the summary call.
	Model string
	// Encoding names the tiktoken encoding. Defaults to cl100k_base.
	Encoding string
}

// Summarizer compacts old conversation turns into a single synthetic
// assistant message once the history grows past a token threshold.
type Summarizer struct {
	provider llm.Provider
	cfg      SummarizeConfig
	logger   *zap.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewSummarizer builds a summarizer. The tokenizer is initialized lazily on
// first use; when its data cannot be loaded the chars/4 heuristic is used
// instead.
func NewSummarizer(provider llm.Provider, cfg SummarizeConfig, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TriggerTokens <= 0 {
		cfg.TriggerTokens = 2000
	}
	if cfg.KeepMessages <= 0 {
		cfg.KeepMessages = 4
	}
	if cfg.Encoding == "" {
		cfg.Encoding = defaultEncoding
	}
	return &Summarizer{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "summarizer")),
	}
}

// Node returns the workflow step form of the summarizer.
func (s *Summarizer) Node() graph.NodeFunc {
	return s.step
}

// step compacts state.Messages when both thresholds are crossed. Re-running
// on an already-compacted history below the threshold is a no-op.
func (s *Summarizer) step(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
	msgs := state.Messages
	if len(msgs) <= s.cfg.KeepMessages {
		return &types.StateUpdate{}, nil
	}
	tokens := s.estimateTokens(msgs)
	if tokens <= s.cfg.TriggerTokens {
		return &types.StateUpdate{}, nil
	}

	cut := len(msgs) - s.cfg.KeepMessages
	older, kept := msgs[:cut], msgs[cut:]

	summary, err := s.summarize(ctx, older)
	if err != nil {
		// A failed summary never breaks the conversation. Keep the full
		// history and try again on a later turn.
		s.logger.Warn("summarization failed, keeping full history", zap.Error(err))
		return &types.StateUpdate{}, nil
	}

	compacted := make([]types.Message, 0, 1+len(kept))
	compacted = append(compacted, types.NewAssistantMessage(SummaryMarker+summary))
	compacted = append(compacted, kept...)

	s.logger.Info("history compacted",
		zap.Int("estimated_tokens", tokens),
		zap.Int("summarized_messages", len(older)),
		zap.Int("kept_messages", len(kept)))

	return &types.StateUpdate{
		CompactedMessages: compacted,
		ModelCallDelta:    1,
	}, nil
}

// summarize asks the provider to condense the older turns into a short brief.
func (s *Summarizer) summarize(ctx context.Context, older []types.Message) (string, error) {
	var b strings.Builder
	for _, m := range older {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	resp, err := s.provider.Completion(ctx, &llm.ChatRequest{
		Model: s.cfg.Model,
		Messages: []types.Message{
			types.NewSystemMessage("Summarize the following conversation into a concise brief. Preserve decisions, facts, and open tasks. Answer with the summary only."),
			types.NewUserMessage(b.String()),
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// estimateTokens counts tokens across the history, falling back to the
// chars/4 heuristic when the encoding is unavailable.
func (s *Summarizer) estimateTokens(msgs []types.Message) int {
	s.once.Do(func() {
		enc, err := tiktoken.GetEncoding(s.cfg.Encoding)
		if err != nil {
			s.logger.Warn("tokenizer unavailable, using chars/4 estimate",
				zap.String("encoding", s.cfg.Encoding), zap.Error(err))
			return
		}
		s.enc = enc
	})

	total := 0
	for _, m := range msgs {
		if s.enc != nil {
			total += len(s.enc.Encode(m.Content, nil, nil))
		} else {
			total += (len(m.Content) + 3) / 4
		}
		// Per-message framing overhead.
		total += 4
	}
	return total
}
