package testutils

import (
	"time"

	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/llm"
	"github.com/papercomputeco/parlor/pkg/storage"
)

// NewTestSession creates a session snapshot with one answered question in
// the default conversation and an empty "Work" conversation.
func NewTestSession(id string) *storage.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	reply := chat.NewMessage(llm.RoleAssistant, "The answer is 4.")
	reply.Model = "test-model"
	reply.Timestamp = &now

	return &storage.Session{
		ID:      id,
		Current: "Work",
		Draft:   chat.RawText("next question"),
		Conversations: []chat.Conversation{
			{
				Name: chat.DefaultConversation,
				Messages: []chat.Message{
					chat.NewMessage(llm.RoleUser, "What is 2+2?"),
					reply,
				},
			},
			{Name: "Work", Messages: []chat.Message{}},
		},
		CreatedAt: now.Add(-time.Minute),
		UpdatedAt: now,
	}
}

// Roles returns the role of every message, in order.
func Roles(msgs []chat.Message) []string {
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	return roles
}
