// Package parlorcmder
package parlorcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/parlor/cmd/parlor/auth"
	chatcmder "github.com/papercomputeco/parlor/cmd/parlor/chat"
	configcmder "github.com/papercomputeco/parlor/cmd/parlor/config"
	initcmder "github.com/papercomputeco/parlor/cmd/parlor/init"
	servecmder "github.com/papercomputeco/parlor/cmd/parlor/serve"
	versioncmder "github.com/papercomputeco/parlor/cmd/version"
)

const parlorLongDesc string = `Parlor is a streaming chat server for LLM agents.

Sessions hold named conversations. Each question is answered by a
streamed turn whose partial reply is visible while it is generated.

Get started using:
  parlor init          Create a .parlor/ directory in the current folder
  parlor serve         Run the chat server
  parlor chat          Chat with a running server
  parlor config        Read and write configuration
  parlor auth          Store provider API keys`

const parlorShortDesc string = "Parlor - Streaming Agent Chat"

func NewParlorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "parlor",
		Short:         parlorShortDesc,
		Long:          parlorLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .parlor/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
