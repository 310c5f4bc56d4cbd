package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/merge"
	"github.com/lherron/partymerge/internal/testutil"
	"github.com/lherron/partymerge/internal/webhooks"
)

// resetFlags restores every flag to its default so package-level flag
// variables do not leak between runs of rootCmd.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func setupCLI(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PARTYMERGE_ACTOR", "tester")
	t.Setenv("PARTYMERGE_LOG_LEVEL", "error")
	t.Setenv("PARTYMERGE_OUTPUT", "")
	t.Setenv("PARTYMERGE_MERGE_POLICY", "")
	t.Setenv("PARTYMERGE_SCHEMA_OVERLAY", "")
	t.Setenv("PARTYMERGE_WEBHOOK_URLS", "")

	dbPath := filepath.Join(t.TempDir(), "partymerge.db")
	t.Setenv("PARTYMERGE_DB_PATH", dbPath)
	return dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestInitAndMigrate(t *testing.T) {
	dbPath := setupCLI(t)

	out := mustRun(t, "init")
	assert.Contains(t, out, "Initialized new database")
	_, err := os.Stat(dbPath)
	require.NoError(t, err)

	out = mustRun(t, "init")
	assert.Contains(t, out, "already initialized")

	out = mustRun(t, "migrate")
	assert.Contains(t, out, "up to date")

	out = mustRun(t, "migrate", "--status")
	assert.Contains(t, out, "Applied migrations:")
	assert.NotContains(t, out, "Pending")

	fresh := filepath.Join(t.TempDir(), "fresh.db")
	_, err = run(t, "--db", fresh, "party", "ls")
	assert.ErrorContains(t, err, "requires migration")

	out = mustRun(t, "--db", fresh, "migrate", "--dry-run")
	assert.Contains(t, out, "would be applied")
}

func TestPartyCommands(t *testing.T) {
	setupCLI(t)
	mustRun(t, "init")

	out := mustRun(t, "party", "create", "Acme", "--email", "a@acme.test")
	assert.Contains(t, out, "Created party PTY-00001: Acme")
	mustRun(t, "party", "create", "Globex")

	var parties []domain.Party
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "party", "ls", "-o", "json", "-q", "acme")), &parties))
	require.Len(t, parties, 1)
	assert.Equal(t, "Acme", parties[0].Name)

	mustRun(t, "party", "update", "PTY-00001", "--phone", "555-0100")
	out = mustRun(t, "party", "show", "Acme")
	assert.Contains(t, out, "555-0100")
	assert.Contains(t, out, "a@acme.test")

	var history []domain.PartyHistory
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "party", "history", "1", "-o", "json")), &history))
	assert.Len(t, history, 2)

	_, err := run(t, "party", "update", "1")
	assert.ErrorContains(t, err, "nothing to update")

	_, err = run(t, "party", "show", "Initech")
	assert.ErrorContains(t, err, "party not found")
}

func TestMergeCommand(t *testing.T) {
	setupCLI(t)
	mustRun(t, "init")
	mustRun(t, "party", "create", "Acme")
	mustRun(t, "party", "create", "ACME Corp")
	mustRun(t, "address", "add", "2", "--city", "Lyon")
	mustRun(t, "invoice", "add", "2", "--amount", "12.50")
	mustRun(t, "category", "add", "vip")
	mustRun(t, "category", "assign", "1", "2")

	out := mustRun(t, "refs", "--party", "2")
	assert.Contains(t, out, "address")
	assert.Contains(t, out, "invoice")

	out = mustRun(t, "diff", "1", "2")
	assert.Contains(t, out, "--- PTY-00001")
	assert.Contains(t, out, "+name: ACME Corp")

	out = mustRun(t, "merge", "2", "--into", "1", "--dry-run")
	assert.Contains(t, out, "Would merge PTY-00002 into PTY-00001")
	out = mustRun(t, "invoice", "ls", "2")
	assert.Contains(t, out, "INV-00001", "dry run keeps the invoice on the duplicate")

	reportPath := filepath.Join(t.TempDir(), "reports", "merge.json")
	out = mustRun(t, "merge", "ACME Corp", "--into", "Acme", "--report", reportPath)
	assert.Contains(t, out, "Merged PTY-00002 into PTY-00001 (soft")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report merge.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, int64(1), report.Target)
	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, "deactivated", report.Duplicates[0].Finalized)
	assert.GreaterOrEqual(t, report.Rows(), int64(2))

	var invoices []domain.Invoice
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "invoice", "ls", "1", "-o", "json")), &invoices))
	require.Len(t, invoices, 1)
	assert.Equal(t, int64(1250), invoices[0].AmountCents)

	var parties []domain.Party
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "party", "ls", "--all", "-o", "json")), &parties))
	require.Len(t, parties, 2)
	assert.False(t, parties[1].Active)

	var records []domain.MergeRecord
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "log", "--merges", "2", "-o", "json")), &records))
	require.Len(t, records, 1)
	require.NotNil(t, records[0].MergedBy)
	assert.Equal(t, "tester", *records[0].MergedBy)

	var doctor doctorReport
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "doctor", "-o", "json")), &doctor))
	assert.Zero(t, doctor.Errors)
	assert.Zero(t, doctor.Warnings)
}

func TestMergeCommand_Rejected(t *testing.T) {
	setupCLI(t)
	mustRun(t, "init")
	mustRun(t, "party", "create", "Acme")
	mustRun(t, "party", "create", "ACME Corp")

	_, err := run(t, "merge", "1", "2", "--into", "1")
	assert.ErrorContains(t, err, "also listed as a duplicate")

	_, err = run(t, "merge", "2", "--into", "1", "--policy", "shred")
	assert.ErrorContains(t, err, "invalid merge policy")

	_, err = run(t, "merge", "2")
	assert.ErrorContains(t, err, "into")

	mustRun(t, "merge", "2", "--into", "1", "--policy", "hard")
	_, err = run(t, "merge", "2", "--into", "1")
	assert.ErrorContains(t, err, "party not found")

	var events []domain.Event
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "log", "2", "-o", "json")), &events))
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Contains(t, types, "party.deleted")
	assert.Contains(t, types, "party.merged")
}

func TestMergePlan(t *testing.T) {
	setupCLI(t)

	var (
		mu       sync.Mutex
		payloads []webhooks.Payload
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhooks.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
	}))
	defer hook.Close()
	t.Setenv("PARTYMERGE_WEBHOOK_URLS", hook.URL+"/merged/{target_id}")

	mustRun(t, "init")
	for _, name := range []string{"Acme", "ACME Corp", "Globex", "Globex Inc", "Initech"} {
		mustRun(t, "party", "create", name)
	}

	plan := testutil.WriteFile(t, t.TempDir(), "plan.yaml", `
groups:
  - into: Acme
    duplicates: ["ACME Corp"]
  - into: Globex
    duplicates: ["n:Globex Inc"]
    policy: hard
  - into: Initech
    duplicates: [PTY-00042]
`)

	out, err := run(t, "merge-plan", plan)
	assert.ErrorContains(t, err, "party not found")
	assert.Contains(t, out, "[3/3] ✗")
	assert.Contains(t, out, "Partial success: 2 succeeded, 1 failed, 0 skipped")

	var parties []domain.Party
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "party", "ls", "--all", "-o", "json")), &parties))
	assert.Len(t, parties, 4, "the hard group deleted Globex Inc")

	mu.Lock()
	require.Len(t, payloads, 2)
	assert.Equal(t, "tester", payloads[0].Actor)
	assert.Equal(t, webhooks.MergedEvent, payloads[1].Event)
	mu.Unlock()

	dry := testutil.WriteFile(t, t.TempDir(), "dry.yaml", "groups:\n  - into: 1\n    duplicates: [5]\n")
	var reports []merge.Report
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "merge-plan", dry, "--dry-run", "-o", "json")), &reports))
	require.Len(t, reports, 1)
	assert.True(t, reports[0].DryRun)

	mu.Lock()
	assert.Len(t, payloads, 2, "dry runs are not announced")
	mu.Unlock()
}

func TestParseAmount(t *testing.T) {
	cases := map[string]int64{"0": 0, "12.5": 1250, "0.1": 10, "-3": -300}
	for in, want := range cases {
		got, err := parseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseAmount("twelve")
	assert.Error(t, err)
}
