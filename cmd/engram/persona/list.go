package personacmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramchat/engram/pkg/cliui"
	"github.com/engramchat/engram/pkg/utils"
)

const listLongDesc string = `List all personas, newest first.

Examples:
  engram persona list`

const listShortDesc string = "List all personas"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, debug := commonFlags(cmd)
			return runList(cmd, configDir, debug)
		},
	}

	return cmd
}

func runList(cmd *cobra.Command, configDir string, debug bool) error {
	ctx := cmd.Context()

	personas, store, log, err := openPersonaStore(ctx, configDir, debug)
	if err != nil {
		return err
	}
	defer store.Close()
	defer func() { _ = log.Sync() }()

	all, err := personas.List(ctx)
	if err != nil {
		return err
	}

	if len(all) == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No personas yet. Create one with: engram persona create"))
		return nil
	}

	fmt.Println()
	for _, p := range all {
		fmt.Printf("  %s %s\n    %s\n",
			cliui.NameStyle.Render(p.FullName),
			cliui.DimStyle.Render(fmt.Sprintf("(%d, %s)", p.Age, p.Profession)),
			cliui.DimStyle.Render(utils.Truncate(p.Handle, 12)),
		)
	}
	fmt.Println()

	return nil
}
