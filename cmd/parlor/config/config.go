// Package configcmder provides the config command for managing persistent
// parlor configuration stored in the .parlor/ directory.
package configcmder

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parlor/pkg/cliui"
	"github.com/papercomputeco/parlor/pkg/config"
	"github.com/papercomputeco/parlor/pkg/credentials"
)

const configLongDesc string = `Manage persistent parlor configuration.

Configuration is stored as config.toml in the .parlor/ directory and provides
default values for command flags. CLI flags and PARLOR_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  server.listen, client.server_target,
  agent.provider, agent.upstream, agent.model, agent.api_key,
  agent.name, agent.system_prompt, agent.max_tokens,
  storage.sqlite_path, storage.postgres_dsn,
  worker.num_workers, worker.queue_size,
  upload.dir, templates.path, pricing.path,
  kafka.brokers, kafka.topic

Use subcommands to get, set, or list configuration values:
  parlor config set <key> <value>    Set a configuration value
  parlor config get <key>            Get a configuration value
  parlor config list                 List all configuration values

Examples:
  parlor config set agent.provider anthropic
  parlor config set storage.sqlite_path ~/.parlor/parlor.db
  parlor config get agent.provider
  parlor config list`

const configShortDesc string = "Manage persistent parlor configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// printRow writes one key padded to width and its value, masked for secrets.
func printRow(out io.Writer, width int, key, value string, showSecrets bool) {
	shown := cliui.DimStyle.Render("<not set>")
	if value != "" {
		shown = cliui.ValueStyle.Render(display(key, value, showSecrets))
	}
	fmt.Fprintf(out, "  %s  %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-*s", width, key)), shown)
}

func display(key, value string, showSecrets bool) string {
	if showSecrets || !config.IsSecretKey(key) {
		return value
	}
	return credentials.Mask(value)
}

func validateKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func printTarget(out io.Writer, cfger *config.Configer) {
	target := cfger.GetTarget()
	note := ""
	if _, err := os.Stat(target); err != nil {
		note = " (not created yet, using defaults)"
	}
	fmt.Fprintf(out, "\n  %s %s\n\n",
		cliui.KeyStyle.Render("Config file:"),
		cliui.DimStyle.Render(target+note),
	)
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
