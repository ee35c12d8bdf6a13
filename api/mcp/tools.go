package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/parlor/pkg/chat"
)

var (
	listConversationsToolName    = "list_conversations"
	listConversationsDescription = "List the conversations of a parlor session in creation order, with the current one and whether a turn is running."

	getHistoryToolName    = "get_history"
	getHistoryDescription = "Return a conversation of a parlor session as (question, answer) pairs. Defaults to the current conversation."
)

// ListConversationsInput represents the input arguments for list_conversations.
type ListConversationsInput struct {
	SessionID string `json:"session_id" jsonschema:"the parlor session id"`
}

// ListConversationsOutput represents the output of list_conversations.
type ListConversationsOutput struct {
	SessionID     string   `json:"session_id"`
	Conversations []string `json:"conversations"`
	Current       string   `json:"current"`
	Busy          bool     `json:"busy"`
}

// GetHistoryInput represents the input arguments for get_history.
type GetHistoryInput struct {
	SessionID    string `json:"session_id" jsonschema:"the parlor session id"`
	Conversation string `json:"conversation,omitempty" jsonschema:"conversation name (default: the current conversation)"`
}

// Pair is one question and its answer. Answer is empty while unanswered.
type Pair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// GetHistoryOutput represents the output of get_history.
type GetHistoryOutput struct {
	SessionID    string `json:"session_id"`
	Conversation string `json:"conversation"`
	Pairs        []Pair `json:"pairs"`
	Count        int    `json:"count"`
}

func (s *Server) handleListConversations(ctx context.Context, _ *mcp.CallToolRequest, input ListConversationsInput) (*mcp.CallToolResult, ListConversationsOutput, error) {
	s.config.Logger.Debug("MCP list_conversations request", "session_id", input.SessionID)

	sess, err := s.config.Sessions.Get(ctx, input.SessionID)
	if err != nil {
		return toolError("Failed to load session: %v", err), ListConversationsOutput{}, nil
	}

	state := sess.State()
	return nil, ListConversationsOutput{
		SessionID:     state.ID,
		Conversations: state.Conversations,
		Current:       state.Current,
		Busy:          state.Busy,
	}, nil
}

func (s *Server) handleGetHistory(ctx context.Context, _ *mcp.CallToolRequest, input GetHistoryInput) (*mcp.CallToolResult, GetHistoryOutput, error) {
	s.config.Logger.Debug("MCP get_history request",
		"session_id", input.SessionID,
		"conversation", input.Conversation,
	)

	sess, err := s.config.Sessions.Get(ctx, input.SessionID)
	if err != nil {
		return toolError("Failed to load session: %v", err), GetHistoryOutput{}, nil
	}

	name := input.Conversation
	if name == "" {
		name = sess.Current()
	}

	msgs, err := sess.Messages(name)
	if err != nil {
		return toolError("Failed to read conversation: %v", err), GetHistoryOutput{}, nil
	}

	pairs := toPairs(chat.FormatHistory(msgs))
	return nil, GetHistoryOutput{
		SessionID:    sess.ID(),
		Conversation: name,
		Pairs:        pairs,
		Count:        len(pairs),
	}, nil
}

func toPairs(history [][2]string) []Pair {
	pairs := make([]Pair, len(history))
	for i, p := range history {
		pairs[i] = Pair{Question: p[0], Answer: p[1]}
	}
	return pairs
}

func toolError(format string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, err)},
		},
	}
}
