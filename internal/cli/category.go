package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/partymerge/internal/cli/appctx"
	"github.com/lherron/partymerge/internal/id"
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage party categories",
}

var categoryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runCategoryAdd),
}

var categoryAssignCmd = &cobra.Command{
	Use:   "assign <category-id> <party>...",
	Short: "Attach a category to parties",
	Long: `Attach a category to one or more active parties. Attaching a category a
party already has is a no-op.`,
	Args: cobra.MinimumNArgs(2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runCategoryAssign),
}

func init() {
	rootCmd.AddCommand(categoryCmd)
	categoryCmd.AddCommand(categoryAddCmd, categoryAssignCmd)
}

func runCategoryAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	category, err := app.Store.Categories.Create(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created category #%d: %s\n", category.ID, category.Name)
	return nil
}

func runCategoryAssign(app *appctx.App, cmd *cobra.Command, args []string) error {
	categoryID, err := parsePositiveID("category", args[0])
	if err != nil {
		return err
	}
	partyIDs, err := resolveParties(cmd.Context(), app, args[1:])
	if err != nil {
		return err
	}

	for _, partyID := range partyIDs {
		if err := app.Store.Categories.Assign(cmd.Context(), app.Actor, partyID, categoryID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Assigned category #%d to %s\n", categoryID, id.FormatParty(partyID))
	}
	return nil
}
