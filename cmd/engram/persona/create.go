package personacmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramchat/engram/pkg/cliui"
	"github.com/engramchat/engram/pkg/persona"
)

const createLongDesc string = `Create a new persona.

Given name, surname, age, and profession are required. The full name is
derived from the given name and surname, and a handle is minted on
creation.

Examples:
  engram persona create --given-name Maya --surname Chen --age 34 --profession "marine biologist"
  engram persona create --given-name Theo --surname Okafor --age 41 --profession carpenter --hobbies "woodworking, chess"`

const createShortDesc string = "Create a new persona"

func newCreateCmd() *cobra.Command {
	var input persona.Input

	cmd := &cobra.Command{
		Use:   "create",
		Short: createShortDesc,
		Long:  createLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, debug := commonFlags(cmd)
			return runCreate(cmd, input, configDir, debug)
		},
	}

	cmd.Flags().StringVar(&input.GivenName, "given-name", "", "Persona's given name (required)")
	cmd.Flags().StringVar(&input.Surname, "surname", "", "Persona's surname (required)")
	cmd.Flags().IntVar(&input.Age, "age", 0, "Persona's age (required)")
	cmd.Flags().StringVar(&input.Profession, "profession", "", "Persona's profession (required)")
	cmd.Flags().StringVar(&input.Hobbies, "hobbies", "", "Comma-separated hobbies")
	cmd.Flags().StringVar(&input.AdditionalInfo, "info", "", "Additional background, free form")

	return cmd
}

func runCreate(cmd *cobra.Command, input persona.Input, configDir string, debug bool) error {
	ctx := cmd.Context()

	personas, store, log, err := openPersonaStore(ctx, configDir, debug)
	if err != nil {
		return err
	}
	defer store.Close()
	defer func() { _ = log.Sync() }()

	p, err := personas.Create(ctx, input)
	if err != nil {
		var invalid *persona.InvalidInputError
		if errors.As(err, &invalid) {
			fmt.Printf("\n  %s Invalid persona:\n", cliui.FailMark)
			for _, reason := range invalid.Reasons {
				fmt.Printf("    - %s\n", reason)
			}
			fmt.Println()
			return fmt.Errorf("persona not created")
		}
		return err
	}

	fmt.Printf("\n  %s Created %s\n", cliui.SuccessMark, cliui.NameStyle.Render(p.FullName))
	fmt.Printf("  %s %s\n\n", cliui.KeyStyle.Render("Handle:"), cliui.DimStyle.Render(p.Handle))

	return nil
}
