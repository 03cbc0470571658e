package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/agents"
	"github.com/corvid-labs/agentchain/graph"
	"github.com/corvid-labs/agentchain/memory"
	"github.com/corvid-labs/agentchain/types"
)

// Orchestrator resolves agents from the registry and drives chains and
// templates for one process. Per-thread invocations must be serialized by
// the caller; different threads run concurrently.
type Orchestrator struct {
	registry  *agents.Registry
	memory    *memory.Store
	templates *templateSet
	logger    *zap.Logger
}

// New creates an orchestrator.
func New(registry *agents.Registry, mem *memory.Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:  registry,
		memory:    mem,
		templates: newTemplateSet(),
		logger:    logger.With(zap.String("component", "orchestrator")),
	}
}

// RegisterTemplate adds a workflow template after validation.
func (o *Orchestrator) RegisterTemplate(t Template) error {
	return o.templates.register(t)
}

// Templates lists registered templates sorted by name.
func (o *Orchestrator) Templates() []Template {
	return o.templates.list()
}

// Agents lists registered agents.
func (o *Orchestrator) Agents() []agents.Info {
	return o.registry.List()
}

// Memory exposes the shared memory store for status and cleanup endpoints.
func (o *Orchestrator) Memory() *memory.Store {
	return o.memory
}

// ExecuteChain runs the named agents in order for the user's thread and
// returns a lazy event stream. Each agent's output reaches the next agent
// through the thread's checkpointed history and absorbed shared memory.
// Any failure emits stream_error and stops the chain; remaining agents never
// run.
func (o *Orchestrator) ExecuteChain(ctx context.Context, agentNames []string, initial *types.ConversationState) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		recent := &recentBuffer{}
		threadID := initial.ThreadID()

		if len(agentNames) == 0 {
			o.emit(ctx, ch, recent, errorEvent(types.NewError(types.ErrInvalidRequest, "chain has no agents")))
			return
		}

		cur := initial
		prevAgent := ""
		final := ""
		for _, name := range agentNames {
			agent, err := o.registry.Get(name)
			if err != nil {
				o.emit(ctx, ch, recent, errorEvent(err))
				return
			}

			if prevAgent != "" {
				if cur.SharedMemory == nil {
					cur.SharedMemory = make(map[string]any)
				}
				cur.SharedMemory[types.MemAgentHandoffs] = prevAgent + "->" + name
			}

			res, err := o.invokeTracked(ctx, agent, cur)
			if err != nil {
				o.emit(ctx, ch, recent, errorEvent(err))
				return
			}

			step := newEvent(EventAgentStep)
			step.Agent = name
			step.Result = res.State.Response
			step.Status = string(res.State.TaskStatus)
			if !o.emit(ctx, ch, recent, step) {
				return
			}

			if res.Interrupted {
				// The chain cannot advance past a permission interrupt;
				// the caller resolves it through the permission handler.
				done := newEvent(EventStreamComplete)
				done.Status = string(types.StatusPermissionRequired)
				o.emit(ctx, ch, recent, done)
				return
			}

			final = res.State.Response
			prevAgent = name
			cur = nextTurnState(res.State)
		}

		completed := newEvent(EventChainCompleted)
		completed.FinalResponse = final
		completed.Summary = recent.snapshot()
		if !o.emit(ctx, ch, recent, completed) {
			return
		}
		o.emit(ctx, ch, recent, newEvent(EventStreamComplete))

		o.logger.Info("chain completed",
			zap.String("thread_id", threadID),
			zap.Int("agents", len(agentNames)))
	}()
	return ch
}

// ExecuteTemplate runs a named template, honoring step prerequisites. Steps
// run in dependency order over repeated passes; a pass that makes no
// progress while steps remain aborts the workflow.
func (o *Orchestrator) ExecuteTemplate(ctx context.Context, templateName string, initial *types.ConversationState) (<-chan Event, error) {
	tmpl, err := o.templates.get(templateName)
	if err != nil {
		return nil, err
	}

	ch := make(chan Event)
	go func() {
		defer close(ch)
		recent := &recentBuffer{}

		started := newEvent(EventWorkflowStarted)
		started.Step = tmpl.Name
		if !o.emit(ctx, ch, recent, started) {
			return
		}

		completed := make(map[string]bool, len(tmpl.Steps))
		cur := initial
		prevAgent := ""
		final := ""
		finalStatus := types.StatusComplete

		remaining := len(tmpl.Steps)
		for remaining > 0 {
			progressed := false
			for _, step := range tmpl.Steps {
				if completed[step.ID] || !ready(step, completed) {
					continue
				}

				agent, err := o.registry.Get(step.AgentType)
				if err != nil {
					o.emit(ctx, ch, recent, errorEvent(err))
					return
				}
				if prevAgent != "" {
					if cur.SharedMemory == nil {
						cur.SharedMemory = make(map[string]any)
					}
					cur.SharedMemory[types.MemAgentHandoffs] = prevAgent + "->" + step.AgentType
				}

				res, err := o.invokeTracked(ctx, agent, cur)
				if err != nil {
					o.emit(ctx, ch, recent, errorEvent(err))
					return
				}

				ev := newEvent(EventWorkflowStep)
				ev.Agent = step.AgentType
				ev.Step = step.ID
				ev.Result = res.State.Response
				ev.Status = string(res.State.TaskStatus)
				if !o.emit(ctx, ch, recent, ev) {
					return
				}

				if res.Interrupted {
					done := newEvent(EventStreamComplete)
					done.Status = string(types.StatusPermissionRequired)
					o.emit(ctx, ch, recent, done)
					return
				}
				if res.State.TaskStatus == types.StatusError {
					finalStatus = types.StatusError
				}

				completed[step.ID] = true
				remaining--
				progressed = true
				prevAgent = step.AgentType
				final = res.State.Response
				cur = nextTurnState(res.State)
			}
			if !progressed {
				o.emit(ctx, ch, recent, errorEvent(types.NewError(types.ErrInvalidRequest,
					"workflow stalled: remaining steps have unsatisfied prerequisites")))
				return
			}
		}

		ev := newEvent(EventWorkflowCompleted)
		ev.FinalResponse = final
		ev.FinalStatus = string(finalStatus)
		ev.Summary = recent.snapshot()
		if !o.emit(ctx, ch, recent, ev) {
			return
		}
		o.emit(ctx, ch, recent, newEvent(EventStreamComplete))
	}()
	return ch, nil
}

// invokeTracked runs one agent invocation with shared-memory run tracking.
func (o *Orchestrator) invokeTracked(ctx context.Context, agent *agents.Agent, state *types.ConversationState) (*graph.Result, error) {
	threadID := state.ThreadID()
	runID := uuid.NewString()

	conv := o.memory.ForThread(threadID)
	// Accumulated conversation values become part of the agent's view.
	// Append-only keys are skipped: those already live in the thread's
	// checkpoint and re-seeding them would duplicate their entries.
	if state.SharedMemory == nil {
		state.SharedMemory = make(map[string]any)
	}
	for k, v := range conv.Values {
		if types.IsAppendOnlyMemKey(k) {
			continue
		}
		if _, exists := state.SharedMemory[k]; !exists {
			state.SharedMemory[k] = v
		}
	}

	o.memory.StartRun(threadID, runID, agent.Name)
	start := time.Now()
	res, err := agent.Invoke(ctx, state)
	o.memory.RecordStep(threadID, runID, time.Since(start))

	if err != nil {
		o.memory.FinishRun(threadID, runID, memory.RunFailed)
		return nil, err
	}

	status := memory.RunCompleted
	if res.State.TaskStatus == types.StatusError {
		status = memory.RunFailed
	}
	o.memory.FinishRun(threadID, runID, status)
	o.memory.AbsorbState(threadID, res.State)
	return res, nil
}

// emit sends one event unless the caller has gone away. Returns false when
// the context is done.
func (o *Orchestrator) emit(ctx context.Context, ch chan<- Event, recent *recentBuffer, e Event) bool {
	recent.add(e)
	select {
	case ch <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

func errorEvent(err error) Event {
	e := newEvent(EventStreamError)
	e.Error = err.Error()
	if code := types.GetErrorCode(err); code != "" {
		e.Status = string(code)
	}
	return e
}

func ready(step TemplateStep, completed map[string]bool) bool {
	for _, p := range step.Prerequisites {
		if !completed[p] {
			return false
		}
	}
	return true
}

// nextTurnState builds the next agent's input from the previous agent's
// final state. History and append-only memory travel through the thread's
// checkpoint; only plain shared-memory values are carried directly.
func nextTurnState(prev *types.ConversationState) *types.ConversationState {
	next := types.NewConversationState(prev.UserID, prev.ConversationID, prev.Query)
	next.SessionID = prev.SessionID
	for k, v := range prev.SharedMemory {
		if types.IsAppendOnlyMemKey(k) {
			continue
		}
		next.SharedMemory[k] = v
	}
	return next
}
