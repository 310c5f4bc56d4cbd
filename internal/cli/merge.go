package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/partymerge/internal/cli/appctx"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/id"
	"github.com/lherron/partymerge/internal/merge"
	"github.com/lherron/partymerge/internal/render"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <duplicate>... --into <target>",
	Short: "Merge duplicate parties into a target party",
	Long: `Merge moves every stored reference from each duplicate to the target,
folds the duplicates' history into the target's, then finalizes each
duplicate:

  soft  the duplicate is deactivated and kept (default)
  hard  the duplicate is deleted

All duplicates merge in one transaction: either all of them are merged or
none is. Use --dry-run to see what would be rewritten without keeping it.

Examples:
  partymerge merge PTY-00002 PTY-00003 --into PTY-00001
  partymerge merge "ACME Corp" --into Acme --policy hard --dry-run
  partymerge merge 2 --into 1 --report merge.json
`,
	Args: cobra.MinimumNArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runMerge),
}

var (
	mergeInto   string
	mergeDryRun bool
	mergeReport string
)

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVar(&mergeInto, "into", "", "Target party that survives the merge")
	mergeCmd.Flags().String("policy", "", "Finalization policy: soft or hard (default from config)")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "Report what would change and roll back")
	mergeCmd.Flags().StringVar(&mergeReport, "report", "", "Also write the JSON report to this file")
	_ = mergeCmd.MarkFlagRequired("into")
}

func runMerge(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	policy, err := app.Policy(cmd)
	if err != nil {
		return err
	}
	target, err := app.Store.Parties.Resolve(ctx, mergeInto)
	if err != nil {
		return fmt.Errorf("failed to resolve target: %w", err)
	}
	duplicates, err := resolveParties(ctx, app, args)
	if err != nil {
		return fmt.Errorf("failed to resolve duplicate: %w", err)
	}

	report, err := app.Store.Parties.Merge(ctx, app.Actor, domain.MergeRequest{
		Duplicates: duplicates,
		Target:     target,
		Policy:     policy,
		DryRun:     mergeDryRun,
	})
	if err != nil {
		return err
	}
	app.Notifier.Dispatch(ctx, report, app.Actor)

	if mergeReport != "" {
		if err := writeReportFile(mergeReport, report); err != nil {
			return err
		}
	}
	return renderMergeReport(app.Renderer(cmd), cmd, report)
}

func writeReportFile(path string, report *merge.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := render.NewRenderer(f, render.FormatJSON).RenderJSON(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func renderMergeReport(r *render.Renderer, cmd *cobra.Command, report *merge.Report) error {
	var rows [][]string
	for _, d := range report.Duplicates {
		if d.Rewrite == nil {
			continue
		}
		for _, t := range d.Rewrite.Tables {
			rows = append(rows, []string{
				id.FormatParty(d.Duplicate),
				t.Table,
				t.Column,
				strconv.FormatInt(t.Rows, 10),
				d.Finalized,
			})
		}
	}

	if err := r.Render(report, []string{"DUPLICATE", "TABLE", "COLUMN", "ROWS", "FINALIZED"}, rows); err != nil {
		return err
	}
	if r.Format() != render.FormatTable {
		return nil
	}

	ids := make([]string, 0, len(report.Duplicates))
	for _, d := range report.Duplicates {
		ids = append(ids, id.FormatParty(d.Duplicate))
	}
	verb := "Merged"
	if report.DryRun {
		verb = "Would merge"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s %s into %s (%s, %d row(s) rewritten, run %s)\n",
		verb, strings.Join(ids, ", "), id.FormatParty(report.Target), report.Policy, report.Rows(), report.RunID)
	return nil
}
