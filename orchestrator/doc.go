// Package orchestrator executes multi-agent chains and named workflow
// templates, streaming progress events in execution order. Agents in a chain
// run strictly sequentially; each agent's output joins the next agent's
// context through the conversation's checkpoint and shared memory.
package orchestrator
