package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/checkpoint"
	"github.com/corvid-labs/agentchain/types"
)

// defaultMaxSteps bounds one invocation so a miswired conditional edge can
// never spin forever.
const defaultMaxSteps = 50

// StepObserver receives a callback after every node execution. Used by the
// orchestrator to feed shared-memory run tracking and prometheus metrics.
type StepObserver interface {
	ObserveStep(agent, node string, d time.Duration, err error)
}

// Result is the outcome of one workflow invocation.
type Result struct {
	State *types.ConversationState
	// Interrupted is true when the run suspended awaiting a permission
	// decision. InterruptNode names the node that raised it.
	Interrupted   bool
	InterruptNode string
}

// Runner drives a compiled graph for one agent, persisting a checkpoint
// after every node transition. Callers must serialize invocations per thread;
// the runner does not lock across processes.
type Runner struct {
	graph       *Graph
	checkpoints *checkpoint.Manager
	logger      *zap.Logger
	tracer      trace.Tracer
	observer    StepObserver
	maxSteps    int

	// denialResponse is the fallback answer when a permission is denied.
	denialResponse string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithObserver attaches a step observer.
func WithObserver(o StepObserver) RunnerOption {
	return func(r *Runner) { r.observer = o }
}

// WithMaxSteps overrides the per-invocation step bound.
func WithMaxSteps(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxSteps = n
		}
	}
}

// WithDenialResponse overrides the answer returned when the user denies a
// permission request.
func WithDenialResponse(text string) RunnerOption {
	return func(r *Runner) { r.denialResponse = text }
}

// NewRunner creates a runner for a compiled graph.
func NewRunner(g *Graph, checkpoints *checkpoint.Manager, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		graph:          g,
		checkpoints:    checkpoints,
		logger:         logger.With(zap.String("component", "graph_runner"), zap.String("agent", g.Name())),
		tracer:         otel.Tracer("agentchain/graph"),
		maxSteps:       defaultMaxSteps,
		denialResponse: "Understood, I won't perform that action. I worked with locally available data instead.",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Invoke runs the workflow for the state's thread. The stored history is
// loaded first and the incoming turn merged onto it; older messages are never
// overwritten. A thread suspended on a permission interrupt rejects plain
// invocations until Resume is called.
func (r *Runner) Invoke(ctx context.Context, incoming *types.ConversationState) (*Result, error) {
	threadID := incoming.ThreadID()

	state := incoming
	cp, err := r.checkpoints.Load(ctx, threadID)
	switch {
	case err == nil:
		if cp.ResumeNode != "" {
			return nil, types.NewError(types.ErrPermissionPending,
				fmt.Sprintf("thread %s is awaiting a permission decision", threadID))
		}
		state = mergeIncoming(cp.State, incoming)
	case errors.Is(err, checkpoint.ErrNotFound):
		// First invocation of this thread.
	default:
		return nil, err
	}

	state.TaskStatus = types.StatusProcessing
	state.Response = ""
	// Call counters are scoped to a single invocation. Resume does not reset
	// them: a resumed run continues the invocation that suspended.
	state.ModelCalls = 0
	state.ToolCalls = 0

	return r.run(ctx, state, r.graph.entry, cp)
}

// Resume continues a suspended workflow with the user's decision. On
// approval, execution restarts at the node after the interrupt with the grant
// recorded in shared memory. On denial, the pending operation is resolved and
// the workflow completes with a local-data fallback response.
func (r *Runner) Resume(ctx context.Context, threadID string, approved bool) (*Result, error) {
	cp, err := r.checkpoints.Load(ctx, threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, types.NewError(types.ErrNoPendingPermission, "no workflow state for thread "+threadID)
		}
		return nil, err
	}
	if cp.ResumeNode == "" {
		return nil, types.NewError(types.ErrNoPendingPermission, "thread "+threadID+" has no pending permission")
	}

	state := cp.State
	op := state.FirstPendingPermission()
	if op != nil {
		state.ResolvePendingOperation(op.ID)
	}

	resumeNode := cp.ResumeNode
	cp.ResumeNode = ""

	if !approved {
		state.TaskStatus = types.StatusComplete
		state.Response = r.denialResponse
		state.Messages = append(state.Messages, types.NewAssistantMessage(state.Response))
		cp.Node = End
		cp.State = state
		if err := r.checkpoints.Save(ctx, cp); err != nil {
			return nil, err
		}
		r.logger.Info("permission denied, workflow completed with fallback",
			zap.String("thread_id", threadID))
		return &Result{State: state}, nil
	}

	grant := map[string]any{
		"operation": "",
		"granted":   true,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if op != nil {
		grant["operation"] = op.ID
	}
	state.Apply(&types.StateUpdate{
		SharedMemory: map[string]any{types.MemPermissionGrants: grant},
		TaskStatus:   types.StatusProcessing,
	})

	r.logger.Info("permission approved, resuming workflow",
		zap.String("thread_id", threadID),
		zap.String("resume_node", resumeNode))

	return r.run(ctx, state, resumeNode, cp)
}

// run steps nodes from start until End, an interrupt, or an error fallback.
func (r *Runner) run(ctx context.Context, state *types.ConversationState, start string, cp *checkpoint.Checkpoint) (*Result, error) {
	threadID := state.ThreadID()
	if cp == nil {
		cp = &checkpoint.Checkpoint{ThreadID: threadID, Agent: r.graph.Name()}
	}

	node := start
	inFallback := false
	for steps := 0; node != End; steps++ {
		if steps >= r.maxSteps {
			state.TaskStatus = types.StatusError
			state.Response = "workflow exceeded the step limit"
			break
		}

		fn, ok := r.graph.nodes[node]
		if !ok {
			return nil, fmt.Errorf("graph %s: node %q not found", r.graph.Name(), node)
		}

		update, nodeErr := r.execNode(ctx, node, fn, state)
		if nodeErr != nil {
			r.logger.Warn("node failed",
				zap.String("thread_id", threadID),
				zap.String("node", node),
				zap.Error(nodeErr))

			state.Apply(&types.StateUpdate{
				SharedMemory: map[string]any{
					types.MemFailedOperations: types.FailedOperation{
						Agent:     r.graph.Name(),
						Operation: node,
						Error:     nodeErr.Error(),
						Timestamp: time.Now(),
					},
				},
				TaskStatus: types.StatusError,
			})

			if r.graph.fallback != "" && !inFallback {
				inFallback = true
				node = r.graph.fallback
				continue
			}
			if state.Response == "" {
				state.Response = "Something went wrong while handling your request. Please try again."
			}
			break
		}

		state.Apply(update)
		cp.Node = node
		cp.State = state

		if state.TaskStatus == types.StatusPermissionRequired {
			resume, err := r.graph.next(ctx, node, state)
			if err != nil {
				return nil, err
			}
			cp.ResumeNode = resume
			if err := r.checkpoints.Save(ctx, cp); err != nil {
				return nil, err
			}
			r.logger.Info("workflow suspended awaiting permission",
				zap.String("thread_id", threadID),
				zap.String("node", node))
			return &Result{State: state, Interrupted: true, InterruptNode: node}, nil
		}

		if err := r.checkpoints.Save(ctx, cp); err != nil {
			return nil, err
		}

		if state.TaskStatus == types.StatusError {
			if r.graph.fallback != "" && !inFallback {
				inFallback = true
				node = r.graph.fallback
				continue
			}
			break
		}

		next, err := r.graph.next(ctx, node, state)
		if err != nil {
			return nil, err
		}
		node = next
	}

	if !state.TaskStatus.Terminal() {
		state.TaskStatus = types.StatusComplete
	}
	cp.Node = End
	cp.ResumeNode = ""
	cp.State = state
	if err := r.checkpoints.Save(ctx, cp); err != nil {
		return nil, err
	}
	return &Result{State: state}, nil
}

// execNode runs one node inside a trace span and reports to the observer.
func (r *Runner) execNode(ctx context.Context, node string, fn NodeFunc, state *types.ConversationState) (*types.StateUpdate, error) {
	ctx, span := r.tracer.Start(ctx, "node."+node,
		trace.WithAttributes(
			attribute.String("agent", r.graph.Name()),
			attribute.String("thread_id", state.ThreadID()),
		))
	defer span.End()

	start := time.Now()
	update, err := fn(ctx, state)
	elapsed := time.Since(start)

	if r.observer != nil {
		r.observer.ObserveStep(r.graph.Name(), node, elapsed, err)
	}
	if err != nil {
		span.RecordError(err)
	}
	return update, err
}

// mergeIncoming lays the new turn on top of the stored history. Stored
// messages and shared memory are preserved; only genuinely new data arrives.
func mergeIncoming(stored, incoming *types.ConversationState) *types.ConversationState {
	stored.Query = incoming.Query
	if incoming.SessionID != "" {
		stored.SessionID = incoming.SessionID
	}
	stored.Apply(&types.StateUpdate{
		Messages:     incoming.Messages,
		SharedMemory: incoming.SharedMemory,
		Extra:        incoming.Extra,
	})
	return stored
}
