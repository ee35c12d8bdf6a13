// Package factory constructs agent clients by provider name.
package factory

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/parlor/pkg/agent"
	"github.com/papercomputeco/parlor/pkg/agent/anthropic"
	"github.com/papercomputeco/parlor/pkg/agent/echo"
	"github.com/papercomputeco/parlor/pkg/agent/ollama"
	"github.com/papercomputeco/parlor/pkg/agent/openai"
	"github.com/papercomputeco/parlor/pkg/pricing"
)

// Supported provider type constants
const (
	Anthropic = "anthropic"
	OpenAI    = "openai"
	Ollama    = "ollama"
	Echo      = "echo"
)

// SupportedProviders returns the list of all supported provider type names.
func SupportedProviders() []string {
	return []string{Anthropic, OpenAI, Ollama, Echo}
}

// DefaultModel returns the model used for a provider when none is configured.
func DefaultModel(providerType string) string {
	switch providerType {
	case Anthropic:
		return "claude-sonnet-4-5"
	case OpenAI:
		return "gpt-4o-mini"
	case Ollama:
		return "gemma3:latest"
	case Echo:
		return echo.DefaultModel
	default:
		return ""
	}
}

// Models lists the models a provider can be asked for: its default model
// first, then the priced models of the provider's family in lexical order.
func Models(providerType string, table pricing.Table) []string {
	def := DefaultModel(providerType)
	if def == "" {
		return nil
	}

	models := []string{def}
	for _, name := range table.Models() {
		if name != def && family(name) == providerType {
			models = append(models, name)
		}
	}
	return models
}

// family guesses the provider serving a priced model name. Open-weight
// models are attributed to ollama.
func family(model string) string {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return Anthropic
	case strings.HasPrefix(model, "gpt-"),
		len(model) > 1 && model[0] == 'o' && model[1] >= '0' && model[1] <= '9':
		return OpenAI
	default:
		return Ollama
	}
}

// New creates a new agent Client for the given provider type. An empty
// opts.Model selects the provider's DefaultModel.
// Returns an error if the provider type is not recognized.
func New(providerType string, opts agent.Options) (agent.Client, error) {
	if opts.Model == "" {
		opts.Model = DefaultModel(providerType)
	}

	switch providerType {
	case Anthropic:
		return anthropic.New(opts), nil
	case OpenAI:
		return openai.New(opts), nil
	case Ollama:
		return ollama.New(opts), nil
	case Echo:
		return echo.New(opts), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %q (supported: %v)", providerType, SupportedProviders())
	}
}
