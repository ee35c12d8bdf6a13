// Package llm holds the provider-agnostic types shared by the agent clients
// and the chat store: history messages, usage, cost and tool calls.
package llm

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the history sent to an agent.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// Name identifies the speaking agent or tool, when known.
	Name string `json:"name,omitempty"`

	// ToolCalls made by an assistant while producing Content.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

func NewTextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// GetText returns the message text.
func (m *Message) GetText() string {
	return m.Content
}

// ValidRole reports whether role is one of the known message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}
