package entity

// AgentEventType tags events emitted by the agent loop while a turn is
// in flight.
type AgentEventType string

const (
	EventText       AgentEventType = "text"
	EventToolCall   AgentEventType = "tool_call"
	EventToolResult AgentEventType = "tool_result"
)

// AgentEvent is one progress event from the agent loop. Consumers (the
// turn handler, and through it the transport) receive these in emission
// order: all text deltas of an iteration first, then for each tool call
// in index order its tool_call followed by its tool_result.
type AgentEvent struct {
	Type AgentEventType

	// Text delta, set for EventText.
	Text string

	// Tool call fields, set for EventToolCall and EventToolResult.
	ToolCallID string
	ToolName   string
	Arguments  map[string]interface{} // parsed arguments (EventToolCall)
	Output     string                 // tool output (EventToolResult)
	IsError    bool                   // tool result error flag (EventToolResult)
}
