package upload_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parlor/pkg/upload"
)

var _ = Describe("Dir", func() {
	var (
		base string
		dir  *upload.Dir
	)

	BeforeEach(func() {
		base = filepath.Join(GinkgoT().TempDir(), "uploads")

		var err error
		dir, err = upload.New(base)
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates the upload directory", func() {
		info, err := os.Stat(base)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("rejects an empty directory", func() {
		_, err := upload.New("  ")
		Expect(err).To(HaveOccurred())
	})

	Describe("Save", func() {
		It("writes the file beneath the upload directory", func() {
			path, err := dir.Save("notes.txt", []byte("hello"))
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(filepath.Join(dir.Path(), "notes.txt")))

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("hello"))
		})

		It("creates nested directories", func() {
			_, err := dir.Save("exports/2026/intros.md", []byte("# Intros"))
			Expect(err).NotTo(HaveOccurred())

			data, err := dir.Read("exports/2026/intros.md")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("# Intros"))
		})

		It("overwrites an existing file", func() {
			_, err := dir.Save("a.txt", []byte("first"))
			Expect(err).NotTo(HaveOccurred())
			_, err = dir.Save("a.txt", []byte("second"))
			Expect(err).NotTo(HaveOccurred())

			data, err := dir.Read("a.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("second"))
		})

		DescribeTable("rejects invalid paths",
			func(rel string) {
				_, err := dir.Save(rel, []byte("x"))
				Expect(err).To(MatchError(upload.ErrInvalidPath))
			},
			Entry("empty", ""),
			Entry("absolute", "/etc/passwd"),
			Entry("parent escape", "../outside.txt"),
			Entry("nested escape", "a/../../outside.txt"),
		)
	})

	DescribeTable("SanitizeName",
		func(in, want string) {
			Expect(upload.SanitizeName(in)).To(Equal(want))
		},
		Entry("plain", "Intros", "Intros"),
		Entry("spaces and separators", "Work: Q3/Q4 plan", "Work-_Q3-Q4_plan"),
		Entry("dots only", "..", "conversation"),
		Entry("empty", "", "conversation"),
	)
})
