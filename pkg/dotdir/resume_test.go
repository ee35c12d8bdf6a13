package dotdir_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parlor/pkg/dotdir"
)

var _ = Describe("dotdir.Manager resume state", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		m = dotdir.NewManager()
	})

	Describe("LoadResumeState", func() {
		It("returns nil when no resume file exists", func() {
			state, err := m.LoadResumeState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeNil())
		})

		It("loads a valid resume state", func() {
			data := `{"server":"http://localhost:8080","session_id":"abc123","conversation":"Work"}`
			err := os.WriteFile(filepath.Join(tmpDir, "resume.json"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			state, err := m.LoadResumeState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).NotTo(BeNil())
			Expect(state.Server).To(Equal("http://localhost:8080"))
			Expect(state.SessionID).To(Equal("abc123"))
			Expect(state.Conversation).To(Equal("Work"))
		})

		It("returns error for invalid JSON", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "resume.json"), []byte("not json"), 0o600)
			Expect(err).NotTo(HaveOccurred())

			state, err := m.LoadResumeState(tmpDir)
			Expect(err).To(HaveOccurred())
			Expect(state).To(BeNil())
		})
	})

	Describe("SaveResumeState", func() {
		It("returns error for nil state", func() {
			Expect(m.SaveResumeState(nil, tmpDir)).NotTo(Succeed())
		})

		It("requires a session id", func() {
			Expect(m.SaveResumeState(&dotdir.ResumeState{Server: "http://x"}, tmpDir)).NotTo(Succeed())
		})

		It("overwrites existing state", func() {
			Expect(m.SaveResumeState(&dotdir.ResumeState{SessionID: "first"}, tmpDir)).To(Succeed())
			Expect(m.SaveResumeState(&dotdir.ResumeState{SessionID: "second"}, tmpDir)).To(Succeed())

			loaded, err := m.LoadResumeState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.SessionID).To(Equal("second"))
		})

		It("round-trips", func() {
			state := &dotdir.ResumeState{
				Server:       "http://localhost:8080",
				SessionID:    "abc123def456",
				Conversation: "Intros",
				SavedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			}
			Expect(m.SaveResumeState(state, tmpDir)).To(Succeed())

			loaded, err := m.LoadResumeState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(state))
		})
	})

	Describe("ClearResumeState", func() {
		It("removes the resume file", func() {
			Expect(m.SaveResumeState(&dotdir.ResumeState{SessionID: "to-clear"}, tmpDir)).To(Succeed())
			Expect(m.ClearResumeState(tmpDir)).To(Succeed())

			loaded, err := m.LoadResumeState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeNil())
		})

		It("succeeds when no resume file exists", func() {
			Expect(m.ClearResumeState(tmpDir)).To(Succeed())
		})
	})
})
