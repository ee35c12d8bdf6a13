package config_test

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parlor/pkg/config"
)

var _ = Describe("Configer", func() {
	var (
		dir    string
		cfger  *config.Configer
		target string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		target = filepath.Join(dir, "config.toml")

		var err error
		cfger, err = config.NewConfiger(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	write := func(data string) {
		Expect(os.WriteFile(target, []byte(data), 0o600)).To(Succeed())
	}

	It("targets config.toml inside the override directory", func() {
		Expect(cfger.GetTarget()).To(Equal(target))
	})

	Describe("LoadConfig", func() {
		It("returns the defaults without a file", func() {
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("fills keys the file leaves out with their defaults", func() {
			write(`
[agent]
provider = "anthropic"
model = "claude-haiku-4-5"

[worker]
queue_size = 16
`)
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Agent.Provider).To(Equal("anthropic"))
			Expect(cfg.Agent.Model).To(Equal("claude-haiku-4-5"))
			Expect(cfg.Worker.QueueSize).To(Equal(uint(16)))
			Expect(cfg.Worker.NumWorkers).To(Equal(uint(3)))
			Expect(cfg.Server.Listen).To(Equal(":8080"))
			Expect(cfg.Kafka.Topic).To(Equal("parlor.turns"))
		})

		It("leaves keys without a default empty", func() {
			write(`[agent]
provider = "openai"
`)
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Agent.APIKey).To(BeEmpty())
			Expect(cfg.Storage.SQLitePath).To(BeEmpty())
		})

		It("rejects malformed TOML", func() {
			write("[agent\nprovider = ")
			_, err := cfger.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("parsing config TOML")))
		})

		It("rejects another config version", func() {
			write("version = 7\n")
			_, err := cfger.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version 7")))
		})
	})

	Describe("SaveConfig", func() {
		It("writes an owner-only file that loads back unchanged", func() {
			cfg, err := config.PresetConfig("anthropic")
			Expect(err).NotTo(HaveOccurred())
			cfg.Agent.APIKey = "sk-ant-secret"
			cfg.Storage.SQLitePath = "parlor.db"
			cfg.Kafka.Brokers = "localhost:9092"

			Expect(cfger.SaveConfig(cfg)).To(Succeed())

			info, err := os.Stat(target)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))

			loaded, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("refuses nil", func() {
			Expect(cfger.SaveConfig(nil)).To(MatchError("cannot save nil config"))
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		DescribeTable("round trips each kind of key",
			func(key, value string) {
				Expect(cfger.SetConfigValue(key, value)).To(Succeed())
				got, err := cfger.GetConfigValue(key)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(value))
			},
			Entry("string", "agent.system_prompt", "Answer briefly."),
			Entry("uint", "agent.max_tokens", "512"),
			Entry("secret", "storage.postgres_dsn", "postgres://u:p@localhost/parlor"),
		)

		It("keeps earlier values when setting another key", func() {
			Expect(cfger.SetConfigValue("agent.provider", "openai")).To(Succeed())
			Expect(cfger.SetConfigValue("agent.model", "gpt-4o")).To(Succeed())

			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Agent.Provider).To(Equal("openai"))
			Expect(cfg.Agent.Model).To(Equal("gpt-4o"))
		})

		It("reports defaults before anything is saved", func() {
			got, err := cfger.GetConfigValue("client.server_target")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("http://localhost:8080"))

			got, err = cfger.GetConfigValue("agent.name")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})

		It("rejects unknown keys", func() {
			Expect(cfger.SetConfigValue("agent.temperature", "1")).To(MatchError(ContainSubstring("unknown config key")))
			_, err := cfger.GetConfigValue("proxy.provider")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("rejects non-numeric uint values without writing", func() {
			Expect(cfger.SetConfigValue("worker.num_workers", "many")).To(MatchError(ContainSubstring("invalid value for worker.num_workers")))
			_, err := os.Stat(target)
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})
})

var _ = Describe("config keys", func() {
	It("cover every field of the TOML layout in order", func() {
		cfg := config.NewDefaultConfig()
		cfg.Agent = config.AgentConfig{
			Provider: "p", Upstream: "u", Model: "m", APIKey: "k",
			Name: "n", SystemPrompt: "s", MaxTokens: 1,
		}
		cfg.Storage = config.StorageConfig{SQLitePath: "x", PostgresDSN: "y"}
		cfg.Templates.Path = "t"
		cfg.Pricing.Path = "p"
		cfg.Kafka.Brokers = "b"

		var sb strings.Builder
		Expect(toml.NewEncoder(&sb).Encode(cfg)).To(Succeed())

		var layout map[string]any
		_, err := toml.Decode(sb.String(), &layout)
		Expect(err).NotTo(HaveOccurred())

		var flattened []string
		for section, fields := range layout {
			table, ok := fields.(map[string]any)
			if !ok {
				continue
			}
			for field := range table {
				flattened = append(flattened, section+"."+field)
			}
		}
		Expect(config.ValidConfigKeys()).To(ConsistOf(flattened))
		Expect(config.ValidConfigKeys()[0]).To(Equal("server.listen"))
	})

	DescribeTable("IsValidConfigKey",
		func(key string, valid bool) {
			Expect(config.IsValidConfigKey(key)).To(Equal(valid))
		},
		Entry("agent key", "agent.provider", true),
		Entry("worker key", "worker.queue_size", true),
		Entry("bare section field", "provider", false),
		Entry("empty", "", false),
	)

	It("marks credentials as secret", func() {
		Expect(config.IsSecretKey("agent.api_key")).To(BeTrue())
		Expect(config.IsSecretKey("storage.postgres_dsn")).To(BeTrue())
		Expect(config.IsSecretKey("agent.model")).To(BeFalse())
		Expect(config.IsSecretKey("nonexistent")).To(BeFalse())
	})
})

var _ = Describe("PresetConfig", func() {
	DescribeTable("fills the agent section",
		func(name, provider, model string) {
			cfg, err := config.PresetConfig(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Agent.Provider).To(Equal(provider))
			Expect(cfg.Agent.Model).To(Equal(model))
			Expect(cfg.Server.Listen).To(Equal(":8080"))
		},
		Entry("openai", "openai", "openai", "gpt-4o-mini"),
		Entry("anthropic in any case", "Anthropic", "anthropic", "claude-sonnet-4-5"),
		Entry("ollama", "ollama", "ollama", "gemma3:latest"),
		Entry("echo", "echo", "echo", "echo-1"),
	)

	It("names the presets when one is unknown", func() {
		_, err := config.PresetConfig("bedrock")
		Expect(err).To(MatchError(ContainSubstring("openai, anthropic, ollama, echo")))
	})
})

var _ = Describe("ParseConfigTOML", func() {
	It("does not apply defaults", func() {
		cfg, err := config.ParseConfigTOML([]byte("[server]\nlisten = \":9000\"\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.Listen).To(Equal(":9000"))
		Expect(cfg.Agent.Provider).To(BeEmpty())
	})

	It("accepts an empty document", func() {
		cfg, err := config.ParseConfigTOML(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(&config.Config{}))
	})
})
