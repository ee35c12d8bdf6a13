// Package chat holds the conversation model: messages, the conversation set
// that stores them, and the pure projections used for display and export.
package chat

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/parlor/pkg/llm"
)

// Message is one record in a conversation.
//
// Content of an in-flight assistant message is overwritten on every streamed
// chunk. The remaining optional fields are populated only once the assistant
// reply is finalized and stay zero on the placeholder.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`

	Model        string         `json:"model,omitempty"`
	Timestamp    *time.Time     `json:"timestamp,omitempty"`
	ResponseTime *float64       `json:"response_time,omitempty"`
	CostInfo     *llm.Cost      `json:"cost_info,omitempty"`
	ToolCalls    []llm.ToolCall `json:"tool_calls,omitempty"`
	Name         string         `json:"name,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message with a fresh ID.
func NewMessage(role, content string) Message {
	return Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
	}
}

// NewPlaceholder creates the empty assistant message that receives streamed
// chunks until the reply is finalized.
func NewPlaceholder() Message {
	return NewMessage(llm.RoleAssistant, "")
}

// Finalized reports whether the message carries finalized reply metadata.
func (m Message) Finalized() bool {
	return m.Timestamp != nil
}

// LLM converts the message to the provider-agnostic form sent to agents.
func (m Message) LLM() llm.Message {
	return llm.Message{Role: m.Role, Content: m.Content, Name: m.Name, ToolCalls: m.ToolCalls}
}

// Clone returns a deep copy of m, so snapshots handed to readers never share
// mutable state with the store.
func (m Message) Clone() Message {
	out := m
	if m.Timestamp != nil {
		ts := *m.Timestamp
		out.Timestamp = &ts
	}
	if m.ResponseTime != nil {
		rt := *m.ResponseTime
		out.ResponseTime = &rt
	}
	if m.CostInfo != nil {
		cost := *m.CostInfo
		out.CostInfo = &cost
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]llm.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			tc.Args = maps.Clone(tc.Args)
			out.ToolCalls[i] = tc
		}
	}
	out.Metadata = maps.Clone(m.Metadata)
	return out
}

func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// ToLLM converts a sequence of messages for an agent request.
func ToLLM(msgs []Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.LLM())
	}
	return out
}
