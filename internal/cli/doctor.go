package cli

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lherron/partymerge/internal/cli/appctx"
	"github.com/lherron/partymerge/internal/db"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/schema"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check database health",
	Long: `Doctor checks pragmas, integrity, identity sequences, and looks for
references still pointing at inactive parties.

Use --fix to raise identity sequences that fell behind the highest used or
retired identity, so a hard-merged party id is never handed out again.`,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runDoctor),
}

var doctorFix bool

type checkResult struct {
	Name    string   `json:"name" yaml:"name"`
	Status  string   `json:"status" yaml:"status"` // "ok", "warning", "error"
	Message string   `json:"message,omitempty" yaml:"message,omitempty"`
	Details []string `json:"details,omitempty" yaml:"details,omitempty"`
}

type doctorReport struct {
	DBPath   string        `json:"db_path" yaml:"db_path"`
	Checks   []checkResult `json:"checks" yaml:"checks"`
	Warnings int           `json:"warnings" yaml:"warnings"`
	Errors   int           `json:"errors" yaml:"errors"`
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Repair sequence drift")
}

func runDoctor(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	database := app.DB

	report := &doctorReport{DBPath: database.Path()}
	report.Checks = append(report.Checks, checkPragmas(database)...)
	report.Checks = append(report.Checks, checkSequences(database, doctorFix))

	reg, err := app.Store.Registry(ctx)
	if err != nil {
		report.Checks = append(report.Checks, checkResult{
			Name:    "schema_registry",
			Status:  "error",
			Message: fmt.Sprintf("Failed to load schema: %v", err),
		})
	} else {
		report.Checks = append(report.Checks, checkInactiveReferences(ctx, app.Logger, database, reg))
	}

	for _, check := range report.Checks {
		switch check.Status {
		case "warning":
			report.Warnings++
		case "error":
			report.Errors++
		}
	}

	r := app.Renderer(cmd)
	rows := make([][]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		rows = append(rows, []string{c.Name, c.Status, c.Message})
	}
	if err := r.Render(report, []string{"CHECK", "STATUS", "MESSAGE"}, rows); err != nil {
		return err
	}

	if report.Errors > 0 {
		return fmt.Errorf("doctor found %d error(s)", report.Errors)
	}
	return nil
}

func checkPragmas(database *db.DB) []checkResult {
	var results []checkResult

	var journalMode string
	database.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if journalMode == "wal" {
		results = append(results, checkResult{Name: "wal_mode", Status: "ok", Message: "WAL mode enabled"})
	} else {
		results = append(results, checkResult{
			Name:    "wal_mode",
			Status:  "warning",
			Message: fmt.Sprintf("WAL mode not enabled (current: %s)", journalMode),
		})
	}

	var foreignKeys int
	database.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys)
	if foreignKeys == 1 {
		results = append(results, checkResult{Name: "foreign_keys", Status: "ok", Message: "Foreign keys enabled"})
	} else {
		results = append(results, checkResult{
			Name:    "foreign_keys",
			Status:  "error",
			Message: "Foreign keys not enabled",
		})
	}

	var integrity string
	if err := database.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil || integrity != "ok" {
		results = append(results, checkResult{
			Name:    "integrity",
			Status:  "error",
			Message: fmt.Sprintf("Integrity check failed: %s %v", integrity, err),
		})
	} else {
		results = append(results, checkResult{Name: "integrity", Status: "ok", Message: "Integrity check passed"})
	}

	return results
}

func checkSequences(database *db.DB, fix bool) checkResult {
	specs := db.DefaultSequenceSpecs()

	drifts, err := db.SequenceDrifts(database, specs)
	if err != nil {
		return checkResult{Name: "sequences", Status: "error", Message: err.Error()}
	}
	if len(drifts) == 0 {
		return checkResult{Name: "sequences", Status: "ok", Message: "Identity sequences are ahead of used identities"}
	}

	details := make([]string, 0, len(drifts))
	for _, d := range drifts {
		details = append(details, fmt.Sprintf("%s: sequence %d, max used %d", d.Table, d.SeqValue, d.MaxID))
	}

	if fix {
		if _, err := db.FixSequenceDrifts(database, specs); err != nil {
			return checkResult{Name: "sequences", Status: "error", Message: err.Error(), Details: details}
		}
		return checkResult{
			Name:    "sequences",
			Status:  "ok",
			Message: fmt.Sprintf("Repaired %d sequence(s)", len(drifts)),
			Details: details,
		}
	}

	return checkResult{
		Name:    "sequences",
		Status:  "warning",
		Message: fmt.Sprintf("%d sequence(s) behind used identities (run with --fix)", len(drifts)),
		Details: details,
	}
}

// checkInactiveReferences counts rows whose party reference points at an
// inactive party. A soft merge leaves none behind.
func checkInactiveReferences(ctx context.Context, logger *zap.Logger, database *db.DB, reg *schema.Registry) checkResult {
	var details []string
	for _, ref := range reg.ReferenceFields(domain.PartyEntity) {
		if !ref.Stored || !ref.Persisted {
			continue
		}

		sb := sqlbuilder.SQLite.NewSelectBuilder()
		sb.Select("COUNT(*)")
		sb.From(ref.Entity + " AS r")
		sb.Join(domain.PartyEntity+" AS p", "p.id = r."+ref.Field)
		sb.Where("p.active = 0")
		query, args := sb.Build()

		var n int64
		if err := database.QueryRowxContext(ctx, query, args...).Scan(&n); err != nil {
			logger.Debug("inactive reference check failed", zap.String("entity", ref.Entity), zap.Error(err))
			return checkResult{Name: "inactive_references", Status: "error", Message: err.Error()}
		}
		if n > 0 {
			details = append(details, fmt.Sprintf("%s.%s: %d row(s)", ref.Entity, ref.Field, n))
		}
	}

	if len(details) > 0 {
		return checkResult{
			Name:    "inactive_references",
			Status:  "warning",
			Message: "Rows still reference inactive parties",
			Details: details,
		}
	}
	return checkResult{Name: "inactive_references", Status: "ok", Message: "No references to inactive parties"}
}
