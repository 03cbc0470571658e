package middleware

import (
	"context"
	"fmt"

	"github.com/corvid-labs/agentchain/graph"
	"github.com/corvid-labs/agentchain/types"
)

// WithModelCallLimit wraps a node that performs one model call. Past max the
// workflow terminates gracefully with task_status=error instead of looping;
// the blocked call is not counted.
func WithModelCallLimit(fn graph.NodeFunc, max int) graph.NodeFunc {
	return func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
		if state.ModelCalls >= max {
			return &types.StateUpdate{
				TaskStatus: types.StatusError,
				Response:   fmt.Sprintf("model call limit reached (%d), stopping to avoid a runaway loop", max),
			}, nil
		}
		update, err := fn(ctx, state)
		if err != nil {
			return nil, err
		}
		if update == nil {
			update = &types.StateUpdate{}
		}
		update.ModelCallDelta++
		return update, nil
	}
}

// WithToolCallLimit is the tool-call counterpart of WithModelCallLimit.
func WithToolCallLimit(fn graph.NodeFunc, max int) graph.NodeFunc {
	return func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
		if state.ToolCalls >= max {
			return &types.StateUpdate{
				TaskStatus: types.StatusError,
				Response:   fmt.Sprintf("tool call limit reached (%d), stopping to avoid a runaway loop", max),
			}, nil
		}
		update, err := fn(ctx, state)
		if err != nil {
			return nil, err
		}
		if update == nil {
			update = &types.StateUpdate{}
		}
		update.ToolCallDelta++
		return update, nil
	}
}
