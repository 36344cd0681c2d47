// Package engramcmder
package engramcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/engramchat/engram/cmd/engram/chat"
	configcmder "github.com/engramchat/engram/cmd/engram/config"
	personacmder "github.com/engramchat/engram/cmd/engram/persona"
	servecmder "github.com/engramchat/engram/cmd/engram/serve"
	versioncmder "github.com/engramchat/engram/cmd/version"
)

const engramLongDesc string = `Engram is a conversational assistant with persistent memory.

Every chat is remembered: the things you tell it are stored as episodes,
distilled into facts, and retrieved to ground future replies.

Common commands:
  engram chat              Start an interactive chat session
  engram persona create    Create a persona the assistant can answer as
  engram serve             Run the HTTP API server`

const engramShortDesc string = "Engram - a chatbot that remembers you"

func NewEngramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engram",
		Short: engramShortDesc,
		Long:  engramLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .engram config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(personacmder.NewPersonaCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
