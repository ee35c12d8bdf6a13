package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/parlor/pkg/dotdir"
)

// EnvPrefix prefixes the environment variable of every key, with dots turned
// into underscores: PARLOR_AGENT_API_KEY, PARLOR_WORKER_NUM_WORKERS.
const EnvPrefix = "PARLOR"

// InitViper returns a viper instance layered as flags (once bound with
// BindRegisteredFlags) over PARLOR_* environment variables over config.toml
// over NewDefaultConfig. A missing config.toml is not an error.
func InitViper(configDir string) (*viper.Viper, error) {
	path, err := dotdir.NewManager().Path(configDir, configFile)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	v := viper.New()
	setViperDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers every key, including those with an empty
// default, since AutomaticEnv only resolves keys viper already knows.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()
	v.SetDefault("version", d.Version)
	for _, k := range keys {
		v.SetDefault(k.name, k.get(d))
	}
}
