// Package lokalcmder
package lokalcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/lokal/cmd/lokal/auth"
	chatcmder "github.com/papercomputeco/lokal/cmd/lokal/chat"
	configcmder "github.com/papercomputeco/lokal/cmd/lokal/config"
	factscmder "github.com/papercomputeco/lokal/cmd/lokal/facts"
	forgetcmder "github.com/papercomputeco/lokal/cmd/lokal/forget"
	initcmder "github.com/papercomputeco/lokal/cmd/lokal/init"
	remembercmder "github.com/papercomputeco/lokal/cmd/lokal/remember"
	servecmder "github.com/papercomputeco/lokal/cmd/lokal/serve"
	versioncmder "github.com/papercomputeco/lokal/cmd/lokal/version"
)

const lokalLongDesc string = `Lokal is a local assistant with long-term memory.

Every finished chat turn is handed to a background worker that asks the model
which enduring facts about you it adds, corrects or retracts. Those facts are
kept in a local store and the relevant ones are injected into later prompts.

Get started:
  lokal init              Create a .lokal/ directory and config
  lokal chat              Chat with memory
  lokal facts list        Show what lokal remembers
  lokal serve             Run the memory API and MCP server`

const lokalShortDesc string = "Lokal - local assistant with long-term memory"

func NewLokalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lokal",
		Short:         lokalShortDesc,
		Long:          lokalLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the lokal directory (default: ./.lokal or ~/.lokal)")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(remembercmder.NewRememberCmd())
	cmd.AddCommand(factscmder.NewFactsCmd())
	cmd.AddCommand(forgetcmder.NewForgetCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
