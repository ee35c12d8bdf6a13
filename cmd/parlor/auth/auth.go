// Package authcmder provides the auth command, which stores provider API keys
// for parlor serve.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/parlor/pkg/cliui"
	"github.com/papercomputeco/parlor/pkg/credentials"
)

const authLongDesc string = `Store API keys for the agent providers that need one.

Keys are written to credentials.toml in the .parlor/ directory, readable by
the owner only. parlor serve falls back to a stored key when neither
agent.api_key nor the provider's environment variable is set.

Examples:
  parlor auth openai              Prompt for the OpenAI key
  echo $KEY | parlor auth openai  Read the key from stdin
  parlor auth --list              Show stored keys (masked)
  parlor auth --remove anthropic  Forget the Anthropic key`

type authCommander struct {
	in        io.Reader
	out       io.Writer
	configDir string
}

func NewAuthCmd() *cobra.Command {
	var (
		list   bool
		remove string
	)

	cmd := &cobra.Command{
		Use:   "auth [provider]",
		Short: "Store API keys for agent providers",
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := &authCommander{in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
			c.configDir, _ = cmd.Flags().GetString("config-dir")

			switch {
			case list:
				return c.list()
			case remove != "":
				return c.remove(remove)
			case len(args) == 0:
				return fmt.Errorf("provider argument required (one of %s)", strings.Join(credentials.Names(), ", "))
			default:
				return c.store(args[0])
			}
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return credentials.Names(), cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List stored keys")
	cmd.Flags().StringVar(&remove, "remove", "", "Remove the stored key of a provider")

	return cmd
}

func (c *authCommander) open() (*credentials.Store, error) {
	store, err := credentials.Open(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("opening credentials: %w", err)
	}
	return store, nil
}

func (c *authCommander) store(name string) error {
	provider, ok := credentials.Lookup(name)
	if !ok {
		return fmt.Errorf("unsupported provider %q (one of %s)", name, strings.Join(credentials.Names(), ", "))
	}

	key, err := c.readKey(provider)
	if err != nil {
		return err
	}
	if key = strings.TrimSpace(key); key == "" {
		return errors.New("API key cannot be empty")
	}

	store, err := c.open()
	if err != nil {
		return err
	}
	if err := store.Put(provider.Name, key); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s Stored %s key %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(provider.Name),
		cliui.DimStyle.Render("in "+store.Path()),
	)
	return nil
}

func (c *authCommander) list() error {
	store, err := c.open()
	if err != nil {
		return err
	}
	f, err := store.Read()
	if err != nil {
		return err
	}

	if len(f.Keys) == 0 {
		fmt.Fprintf(c.out, "\n  %s No stored credentials. Run 'parlor auth <%s>' to add one.\n\n",
			cliui.DimStyle.Render("●"), strings.Join(credentials.Names(), "|"))
		return nil
	}

	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.ValueStyle.Render("Stored credentials"))
	names, err := store.Stored()
	if err != nil {
		return err
	}
	for _, name := range names {
		k := f.Keys[name]
		line := fmt.Sprintf("  %s %s  %s", cliui.SuccessMark, cliui.NameStyle.Render(name), credentials.Mask(k.APIKey))
		if !k.SavedAt.IsZero() {
			line += "  " + cliui.DimStyle.Render("saved "+k.SavedAt.Format("2006-01-02"))
		}
		if p, ok := credentials.Lookup(name); ok {
			line += "  " + cliui.DimStyle.Render("("+p.EnvVar+" takes precedence when set)")
		}
		fmt.Fprintln(c.out, line)
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *authCommander) remove(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))

	store, err := c.open()
	if err != nil {
		return err
	}
	if err := store.Remove(name); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s Removed %s key.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(name))
	return nil
}

// readKey prompts without echo on a terminal and otherwise takes the first
// line of input.
func (c *authCommander) readKey(p credentials.Provider) (string, error) {
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(c.out, "%s API key (%s): ", p.Name, p.EnvVar)
		key, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.out)
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return string(key), nil
	}

	scanner := bufio.NewScanner(c.in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
