// Package pricing turns provider token usage into USD cost for the cost
// info attached to finalized assistant messages.
package pricing

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/papercomputeco/parlor/pkg/llm"
)

// Pricing is the USD price per million tokens for a model.
type Pricing struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cache_read,omitempty"`
	CacheWrite float64 `json:"cache_write,omitempty"`
}

// Table maps normalized model names to their pricing.
type Table map[string]Pricing

func DefaultTable() Table {
	return Table{
		"claude-opus-4.5":   {Input: 5.00, Output: 25.00, CacheRead: 0.50, CacheWrite: 6.25},
		"claude-opus-4.1":   {Input: 15.00, Output: 75.00, CacheRead: 1.50, CacheWrite: 18.75},
		"claude-opus-4":     {Input: 15.00, Output: 75.00, CacheRead: 1.50, CacheWrite: 18.75},
		"claude-sonnet-4.5": {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
		"claude-sonnet-4":   {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
		"claude-haiku-4.5":  {Input: 1.00, Output: 5.00, CacheRead: 0.10, CacheWrite: 1.25},
		"claude-3.5-sonnet": {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
		"claude-3.5-haiku":  {Input: 0.80, Output: 4.00, CacheRead: 0.08, CacheWrite: 1.00},
		"gpt-4o":            {Input: 2.50, Output: 10.00, CacheRead: 1.25, CacheWrite: 2.50},
		"gpt-4o-mini":       {Input: 0.15, Output: 0.60, CacheRead: 0.075, CacheWrite: 0.15},
		"gpt-4.1":           {Input: 2.00, Output: 8.00, CacheRead: 0.50, CacheWrite: 2.00},
		"gpt-4.1-mini":      {Input: 0.40, Output: 1.60, CacheRead: 0.10, CacheWrite: 0.40},
		"gpt-4.1-nano":      {Input: 0.10, Output: 0.40, CacheRead: 0.025, CacheWrite: 0.10},
		"o3":                {Input: 2.00, Output: 8.00, CacheRead: 0.50, CacheWrite: 2.00},
		"o3-mini":           {Input: 1.10, Output: 4.40, CacheRead: 0.55, CacheWrite: 1.10},
		"o4-mini":           {Input: 1.10, Output: 4.40, CacheRead: 0.275, CacheWrite: 1.10},
		"deepseek-r1":       {Input: 0.55, Output: 2.19},
	}
}

// Load returns the default table with overrides from a JSON file merged on
// top. An empty path returns the defaults.
func Load(path string) (Table, error) {
	table := DefaultTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}

	var overrides map[string]Pricing
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse pricing file: %w", err)
	}

	maps.Copy(table, overrides)

	return table, nil
}

// ForModel looks up pricing by normalized model name, then by the raw name.
func (t Table) ForModel(model string) (Pricing, bool) {
	price, ok := t[normalizeModel(model)]
	if ok {
		return price, true
	}
	price, ok = t[model]
	return price, ok
}

// Models returns the priced model names in lexical order.
func (t Table) Models() []string {
	return slices.Sorted(maps.Keys(t))
}

// Cost converts usage into an llm.Cost. Token counts are always carried;
// the USD fields stay zero when the model has no known pricing.
// Returns nil for nil usage.
func (t Table) Cost(model string, usage *llm.Usage) *llm.Cost {
	if usage == nil {
		return nil
	}

	cost := &llm.Cost{
		PromptTokens:             usage.PromptTokens,
		CompletionTokens:         usage.CompletionTokens,
		TotalTokens:              usage.Total(),
		CacheCreationInputTokens: usage.CacheCreationInputTokens,
		CacheReadInputTokens:     usage.CacheReadInputTokens,
	}

	price, ok := t.ForModel(model)
	if !ok {
		return cost
	}

	cost.InputCost, cost.OutputCost, cost.TotalCost = CostForTokensWithCache(
		price,
		int64(usage.PromptTokens),
		int64(usage.CompletionTokens),
		int64(usage.CacheCreationInputTokens),
		int64(usage.CacheReadInputTokens),
	)
	return cost
}

// CostForTokens calculates cost using base input/output pricing.
// For cache-aware cost calculation, use CostForTokensWithCache.
func CostForTokens(pricing Pricing, inputTokens, outputTokens int64) (float64, float64, float64) {
	inputCost := float64(inputTokens) / 1_000_000.0 * pricing.Input
	outputCost := float64(outputTokens) / 1_000_000.0 * pricing.Output
	return inputCost, outputCost, inputCost + outputCost
}

// CostForTokensWithCache calculates cost accounting for prompt caching.
// Base input tokens are totalInput - cacheCreation - cacheRead, each type
// priced at its own rate.
func CostForTokensWithCache(pricing Pricing, inputTokens, outputTokens, cacheCreation, cacheRead int64) (float64, float64, float64) {
	if cacheCreation == 0 && cacheRead == 0 {
		return CostForTokens(pricing, inputTokens, outputTokens)
	}

	baseInput := max(inputTokens-cacheCreation-cacheRead, 0)

	inputCost := float64(baseInput) / 1_000_000.0 * pricing.Input
	inputCost += float64(cacheCreation) / 1_000_000.0 * pricing.CacheWrite
	inputCost += float64(cacheRead) / 1_000_000.0 * pricing.CacheRead
	outputCost := float64(outputTokens) / 1_000_000.0 * pricing.Output
	return inputCost, outputCost, inputCost + outputCost
}

var providerPrefixes = []string{"openai:", "openai/", "anthropic:", "anthropic/", "ollama:", "ollama/"}

func normalizeModel(model string) string {
	normalized := strings.ToLower(strings.TrimSpace(model))
	if normalized == "" {
		return normalized
	}

	// Provider prefixes such as "openai:gpt-4o" or "anthropic/claude-3.5-haiku".
	for _, prefix := range providerPrefixes {
		if rest, ok := strings.CutPrefix(normalized, prefix); ok {
			normalized = rest
			break
		}
	}

	// Anthropic-style date suffix: -YYYYMMDD
	if idx := strings.LastIndex(normalized, "-"); idx != -1 {
		suffix := normalized[idx+1:]
		if len(suffix) == 8 && isDigits(suffix) {
			normalized = normalized[:idx]
		}
	}

	normalized = stripOpenAIDateSuffix(normalized)

	normalized = strings.ReplaceAll(normalized, "-4-5", "-4.5")
	normalized = strings.ReplaceAll(normalized, "-4-1", "-4.1")
	normalized = strings.ReplaceAll(normalized, "-3-5", "-3.5")
	return normalized
}

// stripOpenAIDateSuffix removes a trailing -YYYY-MM-DD date suffix from a model name.
func stripOpenAIDateSuffix(model string) string {
	if len(model) < 12 {
		return model
	}

	suffix := model[len(model)-11:]
	if suffix[0] != '-' {
		return model
	}
	date := suffix[1:]
	if isDigits(date[0:4]) && date[4] == '-' && isDigits(date[5:7]) && date[7] == '-' && isDigits(date[8:10]) {
		return model[:len(model)-11]
	}
	return model
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
