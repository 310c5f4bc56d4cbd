package cli

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/spf13/cobra"

	"github.com/lherron/partymerge/internal/bulk"
	"github.com/lherron/partymerge/internal/cli/appctx"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/id"
	"github.com/lherron/partymerge/internal/merge"
	"github.com/lherron/partymerge/internal/render"
)

var mergePlanCmd = &cobra.Command{
	Use:   "merge-plan <plan.yaml>",
	Short: "Run every merge group listed in a plan file",
	Long: `Merge-plan runs a batch of merges described in YAML. Each group merges
in its own transaction, so a failed group leaves the others untouched.

  policy: soft
  groups:
    - into: PTY-00001
      duplicates: [PTY-00002, "ACME Corp"]
    - into: Globex
      duplicates: ["n:Globex Inc"]
      policy: hard

Groups run in order and stop at the first failure unless
--continue-on-error is given.
`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runMergePlan),
}

var (
	mergePlanDryRun          bool
	mergePlanContinueOnError bool
	mergePlanJobs            int
)

func init() {
	rootCmd.AddCommand(mergePlanCmd)

	mergePlanCmd.Flags().String("policy", "", "Default policy for groups that name none")
	mergePlanCmd.Flags().BoolVar(&mergePlanDryRun, "dry-run", false, "Report what each group would change and roll back")
	mergePlanCmd.Flags().BoolVar(&mergePlanContinueOnError, "continue-on-error", false, "Keep going after a group fails")
	mergePlanCmd.Flags().IntVar(&mergePlanJobs, "jobs", 1, "Groups merged concurrently")
}

func runMergePlan(app *appctx.App, cmd *cobra.Command, args []string) error {
	plan, err := bulk.LoadPlan(args[0])
	if err != nil {
		return err
	}
	fallback, err := app.Policy(cmd)
	if err != nil {
		return err
	}

	groups := make(map[string]bulk.Group, len(plan.Groups))
	labels := make([]string, 0, len(plan.Groups))
	for i, g := range plan.Groups {
		label := g.Label(i)
		groups[label] = g
		labels = append(labels, label)
	}

	var (
		mu      sync.Mutex
		reports = make(map[string]*merge.Report, len(labels))
	)
	r := app.Renderer(cmd)
	op := &bulk.Operation{
		Jobs:            mergePlanJobs,
		ContinueOnError: mergePlanContinueOnError,
		Logger:          app.Logger.Named("merge-plan"),
	}
	if r.Format() == render.FormatTable {
		op.Progress = cmd.ErrOrStderr()
	}
	result := op.Execute(cmd.Context(), labels, func(ctx context.Context, label string) error {
		g := groups[label]
		policy, err := domain.ParseMergePolicy(plan.PolicyOr(g, string(fallback)))
		if err != nil {
			return err
		}
		target, err := app.Store.Parties.Resolve(ctx, g.Into)
		if err != nil {
			return fmt.Errorf("failed to resolve target: %w", err)
		}
		duplicates, err := resolveParties(ctx, app, g.Duplicates)
		if err != nil {
			return fmt.Errorf("failed to resolve duplicate: %w", err)
		}

		report, err := app.Store.Parties.Merge(ctx, app.Actor, domain.MergeRequest{
			Duplicates: duplicates,
			Target:     target,
			Policy:     policy,
			DryRun:     mergePlanDryRun,
		})
		if err != nil {
			return err
		}
		app.Notifier.Dispatch(ctx, report, app.Actor)

		mu.Lock()
		reports[label] = report
		mu.Unlock()
		return nil
	})

	ordered := make([]*merge.Report, 0, len(reports))
	var rows [][]string
	for _, label := range labels {
		report, ok := reports[label]
		if !ok {
			continue
		}
		ordered = append(ordered, report)
		for _, d := range report.Duplicates {
			rows = append(rows, []string{
				id.FormatParty(report.Target),
				id.FormatParty(d.Duplicate),
				string(report.Policy),
				d.Finalized,
				strconv.FormatInt(d.Rewrite.Rows(), 10),
				report.RunID,
			})
		}
	}

	if err := r.Render(ordered, []string{"TARGET", "DUPLICATE", "POLICY", "FINALIZED", "ROWS", "RUN"}, rows); err != nil {
		return err
	}
	if r.Format() == render.FormatTable {
		result.PrintSummary(cmd.OutOrStdout())
	}
	return result.Err()
}
