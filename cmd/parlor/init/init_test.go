package initcmder_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/parlor/cmd/parlor/init"
	"github.com/papercomputeco/parlor/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		err := cmd.Args(cmd, []string{"extra"})
		Expect(err).To(HaveOccurred())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "parlor-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	execute := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs(args)
		cmd.SetOut(GinkgoWriter)
		return cmd.Execute()
	}

	It("creates a .parlor directory with a default config.toml", func() {
		Expect(execute()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".parlor"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Agent.Provider).To(Equal("ollama"))
		Expect(cfg.Server.Listen).To(Equal(":8080"))
	})

	It("keeps an existing config.toml without a preset", func() {
		Expect(execute("--preset", "echo")).To(Succeed())
		Expect(execute()).To(Succeed())

		Expect(loadConfig(tmpDir).Agent.Provider).To(Equal("echo"))
	})

	It("keeps other files in an existing .parlor directory", func() {
		parlorDir := filepath.Join(tmpDir, ".parlor")
		Expect(os.MkdirAll(parlorDir, 0o755)).To(Succeed())

		testFile := filepath.Join(parlorDir, "resume.json")
		Expect(os.WriteFile(testFile, []byte(`{"session_id":"abc"}`), 0o644)).To(Succeed())

		Expect(execute()).To(Succeed())

		data, err := os.ReadFile(testFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(`{"session_id":"abc"}`))
	})

	DescribeTable("writes provider presets",
		func(preset, provider, upstream, model string) {
			Expect(execute("--preset", preset)).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Agent.Provider).To(Equal(provider))
			Expect(cfg.Agent.Upstream).To(Equal(upstream))
			Expect(cfg.Agent.Model).To(Equal(model))
			Expect(cfg.Server.Listen).To(Equal(":8080"))
		},
		Entry("openai", "openai", "openai", "https://api.openai.com/v1", "gpt-4o-mini"),
		Entry("anthropic", "anthropic", "anthropic", "https://api.anthropic.com", "claude-sonnet-4-5"),
		Entry("ollama", "ollama", "ollama", "http://localhost:11434", "gemma3:latest"),
		Entry("echo", "echo", "echo", "", "echo-1"),
	)

	It("rejects unknown preset names", func() {
		err := execute("--preset", "invalid-provider")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
	})

	It("overwrites config.toml when re-run with another preset", func() {
		Expect(execute("--preset", "openai")).To(Succeed())
		Expect(execute("--preset", "anthropic")).To(Succeed())
		Expect(loadConfig(tmpDir).Agent.Provider).To(Equal("anthropic"))
	})

	Describe("--preset with remote URL", func() {
		It("fetches and writes remote config.toml", func() {
			remoteCfg := `version = 0

[server]
listen = ":9090"

[agent]
provider = "openai"
model = "gpt-4.1-mini"
`
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				fmt.Fprint(w, remoteCfg)
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Server.Listen).To(Equal(":9090"))
			Expect(cfg.Agent.Provider).To(Equal("openai"))
			Expect(cfg.Agent.Model).To(Equal("gpt-4.1-mini"))
		})

		It("returns error for non-200 HTTP response", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			err := execute("--preset", server.URL)
			Expect(err).To(MatchError(ContainSubstring("HTTP 404")))
		})

		It("returns error for invalid TOML from URL", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "this is not valid toml [[[")
			}))
			defer server.Close()

			err := execute("--preset", server.URL)
			Expect(err).To(MatchError(ContainSubstring("parsing")))
		})

		It("returns error for unreachable URL", func() {
			err := execute("--preset", "http://127.0.0.1:1")
			Expect(err).To(MatchError(ContainSubstring("fetching remote config")))
		})
	})
})

// loadConfig reads and parses the config.toml from the .parlor directory
// within the given base directory.
func loadConfig(baseDir string) *config.Config {
	data, err := os.ReadFile(filepath.Join(baseDir, ".parlor", "config.toml"))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	ExpectWithOffset(1, toml.Unmarshal(data, cfg)).To(Succeed())
	return cfg
}
