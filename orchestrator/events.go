package orchestrator

import "time"

// EventType names one streamed progress event.
type EventType string

const (
	EventAgentStep         EventType = "agent_step"
	EventChainCompleted    EventType = "chain_completed"
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowStep      EventType = "workflow_step"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventStreamError       EventType = "stream_error"
	EventStreamComplete    EventType = "stream_complete"
)

// Event is one server-push progress update. Events arrive strictly in
// execution order.
type Event struct {
	Type          EventType `json:"type"`
	Agent         string    `json:"agent,omitempty"`
	Step          string    `json:"step,omitempty"`
	Result        string    `json:"result,omitempty"`
	Status        string    `json:"status,omitempty"`
	FinalResponse string    `json:"final_response,omitempty"`
	FinalStatus   string    `json:"final_status,omitempty"`
	Error         string    `json:"error,omitempty"`
	// Summary carries the last few preceding events on terminal events.
	Summary   []Event `json:"summary,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// summaryDepth bounds the Summary buffer on terminal events.
const summaryDepth = 5

func newEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// recentBuffer retains the last summaryDepth events.
type recentBuffer struct {
	events []Event
}

func (b *recentBuffer) add(e Event) {
	b.events = append(b.events, e)
	if len(b.events) > summaryDepth {
		b.events = b.events[len(b.events)-summaryDepth:]
	}
}

func (b *recentBuffer) snapshot() []Event {
	return append([]Event(nil), b.events...)
}
