package llm

// Usage contains token counts and timing information reported by a provider
// at the end of a generation.
type Usage struct {
	// Token counts
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	// Cache token counts (Anthropic prompt caching)
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`

	// Timing (provider-specific, but normalized to nanoseconds where possible)
	TotalDurationNs  int64 `json:"total_duration_ns,omitempty"`
	PromptDurationNs int64 `json:"prompt_duration_ns,omitempty"`
}

// Total returns TotalTokens, falling back to prompt + completion when the
// provider did not report a total.
func (u *Usage) Total() int {
	if u == nil {
		return 0
	}
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}

// Cost is the token accounting attached to a finalized assistant message.
type Cost struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`

	// USD amounts. Zero when no pricing is known for the model.
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
}

// ToolCall records a tool invocation the agent made while producing a reply.
type ToolCall struct {
	ID       string         `json:"id,omitempty"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args,omitempty"`
	Result   string         `json:"result,omitempty"`
}
