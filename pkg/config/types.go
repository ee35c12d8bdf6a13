package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent parlor configuration stored as config.toml
// in the .parlor/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Server    ServerConfig    `toml:"server"`
	Client    ClientConfig    `toml:"client"`
	Agent     AgentConfig     `toml:"agent"`
	Storage   StorageConfig   `toml:"storage"`
	Worker    WorkerConfig    `toml:"worker"`
	Upload    UploadConfig    `toml:"upload"`
	Templates TemplatesConfig `toml:"templates"`
	Pricing   PricingConfig   `toml:"pricing"`
	Kafka     KafkaConfig     `toml:"kafka"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// parlor server (e.g. parlor chat). Values are full URLs.
type ClientConfig struct {
	ServerTarget string `toml:"server_target,omitempty"`
}

// AgentConfig selects and configures the LLM agent that answers questions.
type AgentConfig struct {
	Provider     string `toml:"provider,omitempty"`
	Upstream     string `toml:"upstream,omitempty"`
	Model        string `toml:"model,omitempty"`
	APIKey       string `toml:"api_key,omitempty"`
	Name         string `toml:"name,omitempty"`
	SystemPrompt string `toml:"system_prompt,omitempty"`
	MaxTokens    uint   `toml:"max_tokens,omitempty"`
}

// StorageConfig holds session storage settings. PostgresDSN wins over
// SQLitePath; with neither set sessions live in memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// WorkerConfig sizes the background pool that records finished turns.
type WorkerConfig struct {
	NumWorkers uint `toml:"num_workers,omitempty"`
	QueueSize  uint `toml:"queue_size,omitempty"`
}

// UploadConfig holds the directory files and exports are saved under.
type UploadConfig struct {
	Dir string `toml:"dir,omitempty"`
}

// TemplatesConfig holds the optional templates catalogue file.
type TemplatesConfig struct {
	Path string `toml:"path,omitempty"`
}

// PricingConfig holds the optional JSON pricing overrides file.
type PricingConfig struct {
	Path string `toml:"path,omitempty"`
}

// KafkaConfig enables publishing turn events when Brokers is set.
// Brokers is a comma-separated list of host:port pairs.
type KafkaConfig struct {
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// key is one user-facing dotted config key bound to a field of Config.
type key struct {
	name   string
	secret bool
	get    func(c *Config) string
	set    func(c *Config, v string) error
}

func stringKey(name string, field func(c *Config) *string) key {
	return key{
		name: name,
		get:  func(c *Config) string { return *field(c) },
		set:  func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func secretKey(name string, field func(c *Config) *string) key {
	k := stringKey(name, field)
	k.secret = true
	return k
}

// uintKey renders zero as unset.
func uintKey(name string, field func(c *Config) *uint) key {
	return key{
		name: name,
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// keys lists every supported key in TOML section order.
var keys = []key{
	stringKey("server.listen", func(c *Config) *string { return &c.Server.Listen }),
	stringKey("client.server_target", func(c *Config) *string { return &c.Client.ServerTarget }),
	stringKey("agent.provider", func(c *Config) *string { return &c.Agent.Provider }),
	stringKey("agent.upstream", func(c *Config) *string { return &c.Agent.Upstream }),
	stringKey("agent.model", func(c *Config) *string { return &c.Agent.Model }),
	secretKey("agent.api_key", func(c *Config) *string { return &c.Agent.APIKey }),
	stringKey("agent.name", func(c *Config) *string { return &c.Agent.Name }),
	stringKey("agent.system_prompt", func(c *Config) *string { return &c.Agent.SystemPrompt }),
	uintKey("agent.max_tokens", func(c *Config) *uint { return &c.Agent.MaxTokens }),
	stringKey("storage.sqlite_path", func(c *Config) *string { return &c.Storage.SQLitePath }),
	secretKey("storage.postgres_dsn", func(c *Config) *string { return &c.Storage.PostgresDSN }),
	uintKey("worker.num_workers", func(c *Config) *uint { return &c.Worker.NumWorkers }),
	uintKey("worker.queue_size", func(c *Config) *uint { return &c.Worker.QueueSize }),
	stringKey("upload.dir", func(c *Config) *string { return &c.Upload.Dir }),
	stringKey("templates.path", func(c *Config) *string { return &c.Templates.Path }),
	stringKey("pricing.path", func(c *Config) *string { return &c.Pricing.Path }),
	stringKey("kafka.brokers", func(c *Config) *string { return &c.Kafka.Brokers }),
	stringKey("kafka.topic", func(c *Config) *string { return &c.Kafka.Topic }),
}

var keysByName = func() map[string]key {
	m := make(map[string]key, len(keys))
	for _, k := range keys {
		m[k.name] = k
	}
	return m
}()

func lookup(name string) (key, error) {
	k, ok := keysByName[name]
	if !ok {
		return key{}, fmt.Errorf("unknown config key: %q", name)
	}
	return k, nil
}
