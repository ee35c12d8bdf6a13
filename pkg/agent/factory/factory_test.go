package factory_test

import (
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parlor/pkg/agent"
	"github.com/papercomputeco/parlor/pkg/agent/factory"
	"github.com/papercomputeco/parlor/pkg/pricing"
)

var _ = Describe("New", func() {
	DescribeTable("creates a client for every supported provider",
		func(name string) {
			client, err := factory.New(name, agent.Options{Model: "m"})
			Expect(err).NotTo(HaveOccurred())
			Expect(client.Name()).To(Equal(name))
		},
		Entry("anthropic", factory.Anthropic),
		Entry("openai", factory.OpenAI),
		Entry("ollama", factory.Ollama),
		Entry("echo", factory.Echo),
	)

	It("rejects unknown providers", func() {
		_, err := factory.New("bedrock", agent.Options{})
		Expect(err).To(MatchError(ContainSubstring(`unknown provider type: "bedrock"`)))
	})

	It("has a default model for every supported provider", func() {
		for _, name := range factory.SupportedProviders() {
			Expect(factory.DefaultModel(name)).NotTo(BeEmpty(), name)
		}
		Expect(factory.DefaultModel("bedrock")).To(BeEmpty())
	})

	Describe("Models", func() {
		table := pricing.DefaultTable()

		It("puts the default model first, then the provider's priced models", func() {
			models := factory.Models(factory.OpenAI, table)
			Expect(models[0]).To(Equal("gpt-4o-mini"))
			Expect(models[1:]).To(ContainElements("gpt-4o", "gpt-4.1", "o3", "o4-mini"))
			Expect(models).NotTo(ContainElement(HavePrefix("claude-")))
			Expect(slices.Index(models[1:], "gpt-4o-mini")).To(Equal(-1))
		})

		It("keeps model families apart", func() {
			Expect(factory.Models(factory.Anthropic, table)[1:]).To(HaveEach(HavePrefix("claude-")))
			Expect(factory.Models(factory.Ollama, table)).To(Equal([]string{"gemma3:latest", "deepseek-r1"}))
			Expect(factory.Models(factory.Echo, table)).To(HaveLen(1))
		})

		It("returns nothing for unknown providers", func() {
			Expect(factory.Models("bedrock", table)).To(BeNil())
		})
	})

	It("lists the supported providers", func() {
		Expect(factory.SupportedProviders()).To(ConsistOf("anthropic", "openai", "ollama", "echo"))
	})
})
