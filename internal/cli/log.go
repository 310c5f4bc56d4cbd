package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lherron/partymerge/internal/cli/appctx"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/id"
	"github.com/lherron/partymerge/internal/render"
)

var logCmd = &cobra.Command{
	Use:   "log [party]",
	Short: "Show the event log or the merge audit trail",
	Long: `Log shows recent events, newest first. With a party argument only that
party's events are shown.

With --merges the party_merges audit trail is shown instead. It survives
later merges and hard deletes, so it answers where a party went.

Examples:
  partymerge log
  partymerge log PTY-00002
  partymerge log --merges 2
`,
	Args: cobra.MaximumNArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runLog),
}

var (
	logMerges bool
	logLimit  int
)

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().BoolVar(&logMerges, "merges", false, "Show the merge audit trail")
	logCmd.Flags().IntVar(&logLimit, "limit", 50, "Maximum number of events (0 = no limit)")
}

func runLog(app *appctx.App, cmd *cobra.Command, args []string) error {
	var partyID int64
	if len(args) == 1 {
		// Merged parties are often gone, so accept the bare identity.
		var err error
		if partyID, err = id.ParseParty(args[0]); err != nil {
			if partyID, err = app.Store.Parties.Resolve(cmd.Context(), args[0]); err != nil {
				return err
			}
		}
	}

	if logMerges {
		return runLogMerges(app, cmd, partyID)
	}

	resourceType, resourceID := "", ""
	if partyID != 0 {
		resourceType = domain.PartyEntity
		resourceID = strconv.FormatInt(partyID, 10)
	}
	events, err := app.Store.Events(cmd.Context(), resourceType, resourceID, logLimit)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp,
			render.Optional(e.Actor),
			e.EventType,
			e.ResourceType,
			render.Optional(e.ResourceID),
			render.Optional(e.Payload),
		})
	}
	return app.Renderer(cmd).Render(events, []string{"ID", "TIME", "ACTOR", "EVENT", "RESOURCE", "RESOURCE_ID", "PAYLOAD"}, rows)
}

func runLogMerges(app *appctx.App, cmd *cobra.Command, partyID int64) error {
	records, err := app.Store.Parties.Merges(cmd.Context(), partyID)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(records))
	for _, m := range records {
		rows = append(rows, []string{
			m.CreatedAt,
			id.FormatParty(m.DuplicateID),
			id.FormatParty(m.TargetID),
			string(m.Policy),
			strconv.FormatInt(m.RowsRewritten, 10),
			render.Optional(m.MergedBy),
			m.RunID,
		})
	}
	return app.Renderer(cmd).Render(records, []string{"TIME", "DUPLICATE", "TARGET", "POLICY", "ROWS", "BY", "RUN"}, rows)
}
