package personacmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramchat/engram/pkg/cliui"
)

const showLongDesc string = `Show one persona.

The argument may be a persona handle or a name (full or given name,
case-insensitive).

Examples:
  engram persona show "Maya Chen"
  engram persona show 6a1f9c2e-...`

const showShortDesc string = "Show one persona"

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <handle-or-name>",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, debug := commonFlags(cmd)
			return runShow(cmd, args[0], configDir, debug)
		},
	}

	return cmd
}

func runShow(cmd *cobra.Command, key, configDir string, debug bool) error {
	ctx := cmd.Context()

	personas, store, log, err := openPersonaStore(ctx, configDir, debug)
	if err != nil {
		return err
	}
	defer store.Close()
	defer func() { _ = log.Sync() }()

	// Try handle first, then name lookup.
	p, err := personas.Get(ctx, key)
	if err != nil {
		p, err = personas.Find(ctx, key)
		if err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Printf("  %s\n", cliui.NameStyle.Render(p.FullName))
	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Handle:"), cliui.DimStyle.Render(p.Handle))
	fmt.Printf("  %s %d\n", cliui.KeyStyle.Render("Age:"), p.Age)
	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Profession:"), cliui.ValueStyle.Render(p.Profession))
	if p.Hobbies != "" {
		fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Hobbies:"), cliui.ValueStyle.Render(p.Hobbies))
	}
	if p.AdditionalInfo != "" {
		fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Info:"), cliui.ValueStyle.Render(p.AdditionalInfo))
	}
	fmt.Printf("  %s %s\n\n", cliui.KeyStyle.Render("Created:"), cliui.DimStyle.Render(p.CreatedAt.Format("2006-01-02 15:04")))

	return nil
}
