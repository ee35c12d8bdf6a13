package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parlor/pkg/config"
)

const getLongDesc string = `Get a configuration value.

Reads the value for the given key from the config.toml file
stored in the .parlor/ directory. Keys use dotted notation matching
the TOML section structure. Secrets are masked unless --show-secrets
is given.

Examples:
  parlor config get agent.provider
  parlor config get agent.api_key --show-secrets`

const getShortDesc string = "Get a configuration value"

func newGetCmd() *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: getShortDesc,
		Long:  getLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runGet(cmd.OutOrStdout(), args[0], configDir, showSecrets)
		},
		ValidArgsFunction: completeKeys,
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secret values unmasked")

	return cmd
}

func runGet(out io.Writer, key, configDir string, showSecrets bool) error {
	if err := validateKey(key); err != nil {
		return err
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	printTarget(out, cfger)

	value, err := cfger.GetConfigValue(key)
	if err != nil {
		return err
	}

	printRow(out, len(key), key, value, showSecrets)
	fmt.Fprintln(out)

	return nil
}
