package cli

import (
	"fmt"
	"strconv"

	"github.com/huandu/go-sqlbuilder"
	"github.com/spf13/cobra"

	"github.com/lherron/partymerge/internal/cli/appctx"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/schema"
)

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "List the fields a merge rewrites",
	Long: `Refs lists every many-to-one field that references the entity type,
as reflected from the database schema and the optional overlay. Computed
fields and fields on views are listed but never rewritten.

With --party the number of rows currently pointing at that party is shown
per field.

Examples:
  partymerge refs
  partymerge refs --party PTY-00002
`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runRefs),
}

var (
	refsEntity string
	refsParty  string
)

func init() {
	rootCmd.AddCommand(refsCmd)
	refsCmd.Flags().StringVar(&refsEntity, "entity", domain.PartyEntity, "Referenced entity type")
	refsCmd.Flags().StringVar(&refsParty, "party", "", "Count rows referencing this party")
}

type refRow struct {
	schema.ReferenceField `yaml:",inline"`
	Rewritten             bool   `json:"rewritten" yaml:"rewritten"`
	Rows                  *int64 `json:"rows,omitempty" yaml:"rows,omitempty"`
}

func runRefs(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := app.Store.Registry(ctx)
	if err != nil {
		return err
	}
	if _, ok := reg.EntityType(refsEntity); !ok {
		return fmt.Errorf("unknown entity type %q", refsEntity)
	}

	var partyID int64
	if refsParty != "" {
		if refsEntity != domain.PartyEntity {
			return fmt.Errorf("--party only applies to --entity %s", domain.PartyEntity)
		}
		if partyID, err = resolveAnyParty(app, cmd, refsParty); err != nil {
			return err
		}
	}

	refs := reg.ReferenceFields(refsEntity)
	out := make([]refRow, 0, len(refs))
	rows := make([][]string, 0, len(refs))
	for _, ref := range refs {
		row := refRow{ReferenceField: ref, Rewritten: ref.Stored && ref.Persisted}

		count := "-"
		if partyID != 0 && row.Rewritten {
			sb := sqlbuilder.SQLite.NewSelectBuilder()
			sb.Select("COUNT(*)").From(ref.Entity).Where(sb.Equal(ref.Field, partyID))
			query, qargs := sb.Build()
			var n int64
			if err := app.DB.QueryRowxContext(ctx, query, qargs...).Scan(&n); err != nil {
				return fmt.Errorf("failed to count %s.%s: %w", ref.Entity, ref.Field, err)
			}
			row.Rows = &n
			count = strconv.FormatInt(n, 10)
		}

		history := ref.History
		if history == "" {
			history = "-"
		}
		out = append(out, row)
		rows = append(rows, []string{ref.Entity, ref.Field, history, strconv.FormatBool(row.Rewritten), count})
	}

	return app.Renderer(cmd).Render(out, []string{"ENTITY", "FIELD", "HISTORY", "REWRITTEN", "ROWS"}, rows)
}
