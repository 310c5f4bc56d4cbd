package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/partymerge/internal/cli/appctx"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/merge"
	"github.com/lherron/partymerge/internal/store"
	"github.com/lherron/partymerge/internal/tui"
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactively pick duplicates and merge them",
	Long: `Wizard walks through a merge on the terminal:

  1. select the duplicates among the active parties (space toggles)
  2. select the party to keep among the remaining ones
  3. confirm, and the merge runs

Esc at any step leaves without changing anything.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runWizard),
}

func init() {
	rootCmd.AddCommand(wizardCmd)
	wizardCmd.Flags().String("policy", "", "Finalization policy: soft or hard (default from config)")
}

func runWizard(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	policy, err := app.Policy(cmd)
	if err != nil {
		return err
	}
	parties, err := app.Store.Parties.List(ctx, store.PartyListOptions{})
	if err != nil {
		return err
	}

	mergeFn := func(ctx context.Context, req domain.MergeRequest) (*merge.Report, error) {
		report, err := app.Store.Parties.Merge(ctx, app.Actor, req)
		if err == nil {
			app.Notifier.Dispatch(ctx, report, app.Actor)
		}
		return report, err
	}

	report, err := tui.Run(ctx, parties, policy, mergeFn)
	if errors.Is(err, tui.ErrCancelled) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled, nothing was merged.")
		return nil
	}
	if err != nil {
		return err
	}
	return renderMergeReport(app.Renderer(cmd), cmd, report)
}
