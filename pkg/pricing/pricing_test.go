package pricing_test

import (
	"maps"
	"os"
	"path/filepath"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parlor/pkg/llm"
	"github.com/papercomputeco/parlor/pkg/pricing"
)

var _ = Describe("CostForTokens", func() {
	price := pricing.Pricing{Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75}

	It("calculates base input and output costs", func() {
		inputCost, outputCost, totalCost := pricing.CostForTokens(price, 1_000_000, 500_000)
		Expect(inputCost).To(BeNumerically("~", 3.00, 0.001))
		Expect(outputCost).To(BeNumerically("~", 7.50, 0.001))
		Expect(totalCost).To(BeNumerically("~", 10.50, 0.001))
	})

	It("prices cache read tokens at CacheRead rate", func() {
		inputCost, _, _ := pricing.CostForTokensWithCache(price, 1_000_000, 0, 0, 800_000)
		Expect(inputCost).To(BeNumerically("~", 0.60+0.24, 0.001))
	})
})

var _ = Describe("Table", func() {
	table := pricing.DefaultTable()

	It("resolves dated and prefixed model names", func() {
		_, ok := table.ForModel("claude-sonnet-4-5-20250929")
		Expect(ok).To(BeTrue())

		_, ok = table.ForModel("gpt-4o-2024-08-06")
		Expect(ok).To(BeTrue())

		_, ok = table.ForModel("openai:gpt-4o-mini")
		Expect(ok).To(BeTrue())
	})

	It("lists the priced models in order", func() {
		models := table.Models()
		Expect(models).To(HaveLen(len(table)))
		Expect(models).To(Equal(slices.Sorted(maps.Keys(table))))
		Expect(models).To(ContainElements("gpt-4o", "claude-haiku-4.5", "deepseek-r1"))
	})

	It("returns nil cost for nil usage", func() {
		Expect(table.Cost("gpt-4o", nil)).To(BeNil())
	})

	It("keeps token counts for unknown models", func() {
		cost := table.Cost("llama3.2", &llm.Usage{PromptTokens: 10, CompletionTokens: 5})
		Expect(cost).NotTo(BeNil())
		Expect(cost.TotalTokens).To(Equal(15))
		Expect(cost.TotalCost).To(Equal(0.0))
	})

	It("prices known models", func() {
		cost := table.Cost("gpt-4o", &llm.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
		Expect(cost.InputCost).To(BeNumerically("~", 2.50, 0.001))
		Expect(cost.OutputCost).To(BeNumerically("~", 10.00, 0.001))
		Expect(cost.TotalCost).To(BeNumerically("~", 12.50, 0.001))
	})

	It("merges overrides from a JSON file", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "pricing.json")
		Expect(os.WriteFile(path, []byte(`{"llama3.2": {"input": 1, "output": 2}}`), 0o600)).To(Succeed())

		loaded, err := pricing.Load(path)
		Expect(err).NotTo(HaveOccurred())

		price, ok := loaded.ForModel("llama3.2")
		Expect(ok).To(BeTrue())
		Expect(price.Output).To(Equal(2.0))

		_, ok = loaded.ForModel("gpt-4o")
		Expect(ok).To(BeTrue())
	})
})
