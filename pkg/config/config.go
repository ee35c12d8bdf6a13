// Package config reads and writes .parlor/config.toml and resolves the
// settings every parlor command runs with.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/parlor/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// Configer loads and saves config.toml inside a resolved .parlor/ directory.
type Configer struct {
	targetPath string
}

// NewConfiger resolves the config file location. An empty override uses the
// local ./.parlor/ directory when present, then ~/.parlor/.
func NewConfiger(override string) (*Configer, error) {
	path, err := dotdir.NewManager().Path(override, configFile)
	if err != nil {
		return nil, err
	}
	return &Configer{targetPath: path}, nil
}

// ValidConfigKeys returns every supported key in TOML section order.
func ValidConfigKeys() []string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.name
	}
	return names
}

// IsValidConfigKey reports whether key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := keysByName[key]
	return ok
}

// IsSecretKey reports whether key holds a credential that should be masked
// when printed.
func IsSecretKey(key string) bool {
	return keysByName[key].secret
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig reads config.toml. A missing file yields NewDefaultConfig, and
// keys the file leaves empty take their default.
func (c *Configer) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(c.targetPath)
	if errors.Is(err, os.ErrNotExist) {
		return NewDefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults copies the default of every key that is unset in cfg.
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()
	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}
	for _, k := range keys {
		if k.get(cfg) != "" {
			continue
		}
		if def := k.get(defaults); def != "" {
			// Defaults are produced by NewDefaultConfig and always parse.
			_ = k.set(cfg, def)
		}
	}
}

// SaveConfig writes cfg to config.toml with owner-only permissions, since it
// may hold API keys.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue parses value into key and saves the file.
func (c *Configer) SetConfigValue(name, value string) error {
	k, err := lookup(name)
	if err != nil {
		return err
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := k.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue returns key rendered as a string. Unset keys are "".
func (c *Configer) GetConfigValue(name string) (string, error) {
	k, err := lookup(name)
	if err != nil {
		return "", err
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return k.get(cfg), nil
}

// PresetConfig returns the defaults with the agent section filled in for the
// named provider. Presets: openai, anthropic, ollama, echo.
func PresetConfig(name string) (*Config, error) {
	var agent AgentConfig

	switch strings.ToLower(name) {
	case "openai":
		agent = AgentConfig{
			Provider: "openai",
			Upstream: "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
		}

	case "anthropic":
		agent = AgentConfig{
			Provider:  "anthropic",
			Upstream:  "https://api.anthropic.com",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
		}

	case "ollama":
		agent = AgentConfig{
			Provider: "ollama",
			Upstream: "http://localhost:11434",
			Model:    "gemma3:latest",
		}

	case "echo":
		agent = AgentConfig{
			Provider: "echo",
			Model:    "echo-1",
		}

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}

	cfg := NewDefaultConfig()
	cfg.Agent = agent
	return cfg, nil
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"openai", "anthropic", "ollama", "echo"}
}

// ParseConfigTOML decodes config.toml contents. A version other than
// CurrentV is rejected.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
