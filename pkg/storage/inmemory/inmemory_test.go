package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parlor/pkg/storage"
	"github.com/papercomputeco/parlor/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/parlor/pkg/utils/test"
)

var _ = Describe("Driver", func() {
	testutils.DescribeDriver(func() storage.Driver {
		return inmemory.NewDriver()
	})

	It("does not alias saved sessions", func() {
		d := inmemory.NewDriver()
		in := testutils.NewTestSession("s1")
		Expect(d.Save(context.Background(), in)).To(Succeed())

		in.Conversations[0].Messages[0].Content = "mutated"

		out, err := d.Load(context.Background(), "s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Conversations[0].Messages[0].Content).To(Equal("What is 2+2?"))
		Expect(d.Count()).To(Equal(1))
	})
})
