package config

import (
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag describes a CLI flag once so every command that registers it agrees
// on its name, shorthand, config key and help text.
type Flag struct {
	// Name is the long flag name (e.g. "provider").
	Name string

	// Shorthand is the one-letter short flag (e.g. "p"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "agent.provider").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen       = "listen"
	FlagServerTarget = "server-target"
	FlagProvider     = "provider"
	FlagUpstream     = "upstream"
	FlagModel        = "model"
	FlagAPIKey       = "api-key"
	FlagAgentName    = "agent-name"
	FlagSystemPrompt = "system-prompt"
	FlagMaxTokens    = "max-tokens"
	FlagSQLite       = "sqlite"
	FlagPostgres     = "postgres"
	FlagNumWorkers   = "num-workers"
	FlagQueueSize    = "queue-size"
	FlagUploadDir    = "upload-dir"
	FlagTemplates    = "templates"
	FlagPricing      = "pricing"
	FlagKafkaBrokers = "kafka-brokers"
	FlagKafkaTopic   = "kafka-topic"
)

// Flags is the registry of every flag a parlor command may register.
var Flags = FlagSet{
	FlagListen:       {Name: "listen", Shorthand: "l", ViperKey: "server.listen", Description: "Address for the server to listen on"},
	FlagServerTarget: {Name: "server-target", Shorthand: "s", ViperKey: "client.server_target", Description: "Parlor server URL"},
	FlagProvider:     {Name: "provider", Shorthand: "p", ViperKey: "agent.provider", Description: "Agent provider (anthropic, openai, ollama, echo)"},
	FlagUpstream:     {Name: "upstream", Shorthand: "u", ViperKey: "agent.upstream", Description: "Upstream LLM provider URL (default: the provider's public endpoint)"},
	FlagModel:        {Name: "model", Shorthand: "m", ViperKey: "agent.model", Description: "Model name (default: the provider's default model)"},
	FlagAPIKey:       {Name: "api-key", ViperKey: "agent.api_key", Description: "API key for the upstream provider"},
	FlagAgentName:    {Name: "agent-name", ViperKey: "agent.name", Description: "Name attached to assistant messages"},
	FlagSystemPrompt: {Name: "system-prompt", ViperKey: "agent.system_prompt", Description: "System prompt sent with every turn"},
	FlagMaxTokens:    {Name: "max-tokens", ViperKey: "agent.max_tokens", Description: "Maximum completion tokens per reply (0: provider default)"},
	FlagSQLite:       {Name: "sqlite", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database (default: in-memory)"},
	FlagPostgres:     {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagNumWorkers:   {Name: "num-workers", ViperKey: "worker.num_workers", Description: "Number of background turn recorders"},
	FlagQueueSize:    {Name: "queue-size", ViperKey: "worker.queue_size", Description: "Queue size of each turn recorder"},
	FlagUploadDir:    {Name: "upload-dir", ViperKey: "upload.dir", Description: "Directory files and exports are saved under"},
	FlagTemplates:    {Name: "templates", ViperKey: "templates.path", Description: "Path to a templates.toml catalogue (hot-reloaded)"},
	FlagPricing:      {Name: "pricing", ViperKey: "pricing.path", Description: "Path to a JSON file of model pricing overrides"},
	FlagKafkaBrokers: {Name: "kafka-brokers", ViperKey: "kafka.brokers", Description: "Comma-separated Kafka brokers for turn events"},
	FlagKafkaTopic:   {Name: "kafka-topic", ViperKey: "kafka.topic", Description: "Kafka topic for turn events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// Unmarshal reads every config key from v into a Config, so values resolved
// through the flag > env > file > default chain land in one struct.
func Unmarshal(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	for _, k := range keys {
		value := v.GetString(k.name)
		if err := k.set(cfg, value); err != nil {
			// Empty uint values fall back to their default.
			if value == "" {
				continue
			}
			return nil, err
		}
	}
	return cfg, nil
}

// defaultString returns the default of a config key as shown in --help.
func defaultString(name string) string {
	k, ok := keysByName[name]
	if !ok {
		return ""
	}
	return k.get(NewDefaultConfig())
}

func defaultUint(name string) uint {
	n, err := strconv.ParseUint(defaultString(name), 10, 64)
	if err != nil {
		return 0
	}
	return uint(n)
}
