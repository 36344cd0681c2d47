// Package personacmder provides the persona command for managing the
// personas the assistant can answer as.
package personacmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/config"
	"github.com/engramchat/engram/pkg/logger"
	"github.com/engramchat/engram/pkg/memstore/graph"
	"github.com/engramchat/engram/pkg/persona"
)

const personaLongDesc string = `Manage personas.

A persona gives the assistant a character to answer as: a name, an age, a
profession, and optional hobbies and background. Personas are immutable
once created.

Use subcommands to create and inspect personas:
  engram persona create    Create a new persona
  engram persona list      List all personas
  engram persona show      Show one persona by handle

Examples:
  engram persona create --given-name Maya --surname Chen --age 34 --profession "marine biologist"
  engram persona list`

const personaShortDesc string = "Manage personas"

func NewPersonaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: personaShortDesc,
		Long:  personaLongDesc,
	}

	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())

	return cmd
}

// openPersonaStore opens the persona store over the configured SQLite
// database. Persona management needs no vector search, so the store opens
// without an embedder.
func openPersonaStore(ctx context.Context, configDir string, debug bool) (*persona.Store, *graph.Store, *zap.Logger, error) {
	log := logger.NewLogger(debug)

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	store, err := graph.NewStore(graph.Config{
		DBPath: cfg.Store.SQLitePath,
	}, nil, nil, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}

	personas, err := persona.NewStore(ctx, store, log)
	if err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("opening persona store: %w", err)
	}

	return personas, store, log, nil
}

func commonFlags(cmd *cobra.Command) (configDir string, debug bool) {
	configDir, _ = cmd.Flags().GetString("config-dir")
	debug, _ = cmd.Flags().GetBool("debug")
	return configDir, debug
}
