package utils

import (
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Truncate", func() {
	DescribeTable("keeps strings within the limit",
		func(s string, n int) {
			Expect(Truncate(s, n)).To(Equal(s))
		},
		Entry("shorter", "short", 10),
		Entry("exactly at the limit", "12345", 5),
		Entry("counted in runes", "héllo", 5),
	)

	It("cuts after n runes and appends an ellipsis", func() {
		Expect(Truncate("What is in file XY?", 7)).To(Equal("What is…"))
	})

	It("never splits a multi-byte character", func() {
		out := Truncate("naïve café au lait", 3)
		Expect(out).To(Equal("naï…"))
		Expect(utf8.ValidString(out)).To(BeTrue())
	})

	It("returns nothing for a non-positive limit", func() {
		Expect(Truncate("anything", 0)).To(BeEmpty())
	})
})
