// Package initcmder provides the init command for initializing a local
// .parlor directory in the current working directory.
package initcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parlor/pkg/cliui"
	"github.com/papercomputeco/parlor/pkg/config"
	"github.com/papercomputeco/parlor/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .parlor/ directory in the current working directory.

Creates a local .parlor/ directory that takes precedence over the default
~/.parlor/ directory for configuration and the chat resume state, and writes
a config.toml into it.

Use --preset to start from a provider preset (openai, anthropic, ollama,
echo) or from a config.toml fetched over HTTP. A preset overwrites an
existing config.toml; without one an existing file is kept.

Examples:
  parlor init
  parlor init --preset openai
  parlor init --preset https://example.com/parlor/config.toml`

const initShortDesc string = "Initialize a local .parlor/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Provider preset name or URL of a config.toml")

	return cmd
}

func runInit(ctx context.Context, out io.Writer, preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dotdir.DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s directory: %w", dotdir.DirName, err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, "config.toml")
	_, statErr := os.Stat(path)
	exists := statErr == nil

	var cfg *config.Config
	switch {
	case preset == "" && exists:
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
		return nil
	case preset == "":
		cfg = config.NewDefaultConfig()
	case strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://"):
		err = cliui.Step(out, "Fetching "+preset, func() error {
			var fetchErr error
			cfg, fetchErr = fetchRemoteConfig(ctx, preset)
			return fetchErr
		})
	default:
		cfg, err = config.PresetConfig(preset)
	}
	if err != nil {
		return err
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "Initialized %s directory: %s\n", dotdir.DirName, dir)
	return nil
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}
