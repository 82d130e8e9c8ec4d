package entity

import "time"

// Message roles. These match the wire roles of the chat-completions
// protocol and are stored verbatim.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one immutable row of a session's history. SortOrder is a
// strictly increasing per-session sequence assigned by the store on
// append; (SessionID, SortOrder) is unique.
type Message struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
	SortOrder int          `json:"sort_order"`
	Meta      *MessageMeta `json:"meta,omitempty"`
}

// MessageMeta is the structured metadata attached to a message.
// Assistant messages carry the tool calls they requested; tool messages
// carry the id of the call they answer.
type MessageMeta struct {
	ToolCalls  []ToolCallRecord `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

// ToolCallRecord is one function invocation requested by the model.
// Arguments is the raw argument string exactly as the provider streamed
// it; it is not re-serialized because fragments arrive piecewise and
// the provider's own formatting must survive a resume.
type ToolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
