package testutils

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/storage"
)

// DescribeDriver registers the behaviors every storage.Driver must satisfy.
// newDriver is called before each test; the driver is closed after it.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("Save and Load", func() {
		It("round-trips a session", func() {
			in := NewTestSession("s1")
			Expect(driver.Save(ctx, in)).To(Succeed())

			out, err := driver.Load(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(out.ID).To(Equal("s1"))
			Expect(out.Current).To(Equal("Work"))
			Expect(out.Draft).To(Equal(chat.RawText("next question")))
			Expect(out.Conversations).To(HaveLen(2))
			Expect(out.Conversations[0].Name).To(Equal(chat.DefaultConversation))
			Expect(out.Conversations[0].Messages).To(HaveLen(2))
			Expect(out.Conversations[0].Messages[1].Model).To(Equal("test-model"))
			Expect(out.UpdatedAt).To(BeTemporally("~", in.UpdatedAt, time.Millisecond))
		})

		It("replaces an existing session", func() {
			in := NewTestSession("s1")
			Expect(driver.Save(ctx, in)).To(Succeed())

			in.Current = chat.DefaultConversation
			in.Conversations = in.Conversations[:1]
			Expect(driver.Save(ctx, in)).To(Succeed())

			out, err := driver.Load(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Current).To(Equal(chat.DefaultConversation))
			Expect(out.Conversations).To(HaveLen(1))
		})

		It("keeps the selected model", func() {
			in := NewTestSession("s1")
			in.Model = "gpt-4o"
			Expect(driver.Save(ctx, in)).To(Succeed())

			out, err := driver.Load(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Model).To(Equal("gpt-4o"))

			in.Model = ""
			Expect(driver.Save(ctx, in)).To(Succeed())
			out, err = driver.Load(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Model).To(BeEmpty())
		})

		It("rejects nil and anonymous sessions", func() {
			Expect(driver.Save(ctx, nil)).To(MatchError(storage.ErrNilSession))
			Expect(driver.Save(ctx, &storage.Session{})).To(HaveOccurred())
		})

		It("returns NotFoundError for unknown sessions", func() {
			_, err := driver.Load(ctx, "missing")
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("List", func() {
		It("returns summaries, most recently updated first", func() {
			older := NewTestSession("older")
			older.UpdatedAt = time.Now().Add(-time.Hour)
			newer := NewTestSession("newer")

			Expect(driver.Save(ctx, older)).To(Succeed())
			Expect(driver.Save(ctx, newer)).To(Succeed())

			list, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			Expect(list[0].ID).To(Equal("newer"))
			Expect(list[0].Conversations).To(Equal(2))
			Expect(list[1].ID).To(Equal("older"))
		})

		It("returns an empty list for an empty store", func() {
			list, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(BeEmpty())
		})
	})

	Describe("Delete", func() {
		It("removes a session", func() {
			Expect(driver.Save(ctx, NewTestSession("s1"))).To(Succeed())
			Expect(driver.Delete(ctx, "s1")).To(Succeed())

			_, err := driver.Load(ctx, "s1")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("returns NotFoundError for unknown sessions", func() {
			Expect(driver.Delete(ctx, "missing")).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})
	})
}
