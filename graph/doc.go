// Package graph implements the agent workflow state machine: a directed
// graph of named nodes over conversation state, compiled once per agent and
// executed by a runner that checkpoints after every node transition.
//
// Nodes are pure functions from state to a partial update; updates merge via
// the append-only semantics in types.StateUpdate. A node that sets
// task_status=permission_required suspends the run at that point; execution
// continues only through an explicit Resume with the user's decision.
package graph
