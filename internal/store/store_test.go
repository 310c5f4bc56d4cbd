package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/merge"
	"github.com/lherron/partymerge/internal/testutil"
)

func strPtr(s string) *string { return &s }

func tableRows(r *merge.Report, table string) int64 {
	var n int64
	for _, d := range r.Duplicates {
		for _, tr := range d.Rewrite.Tables {
			if tr.Table == table {
				n += tr.Rows
			}
		}
	}
	return n
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	database, _ := testutil.TempDB(t)
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return New(database, append([]Option{WithLogger(logger)}, opts...)...)
}

func TestPartyStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.Parties.Create(ctx, "alice", "Acme Corp", strPtr("ops@acme.test"), nil)
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.Equal(t, "Acme Corp <ops@acme.test>", p.DisplayName)

	got, err := s.Parties.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)

	events, err := s.Events(ctx, "party", "", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "party.created", events[0].EventType)
	require.NotNil(t, events[0].Actor)
	assert.Equal(t, "alice", *events[0].Actor)
}

func TestPartyStore_CreateRejectsBlankName(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Parties.Create(context.Background(), "", "  ", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestPartyStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Parties.Get(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestPartyStore_UpdateRecordsHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.Parties.Create(ctx, "", "Acme", nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Parties.Update(ctx, "", p.ID, map[string]interface{}{"name": "Acme Ltd"}))

	history, err := s.Parties.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Acme", *history[0].Name)
	assert.Equal(t, "Acme Ltd", *history[1].Name)

	err = s.Parties.Update(ctx, "", p.ID, map[string]interface{}{"active": false})
	assert.Error(t, err, "active is only changed by merges")
}

func TestPartyStore_ListHidesInactive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	database := s.DB()

	a := testutil.SeedParty(t, database, "Acme")
	b := testutil.SeedParty(t, database, "ACME Inc")
	_, err := database.Exec(`UPDATE party SET active = 0 WHERE id = ?`, b)
	require.NoError(t, err)

	parties, err := s.Parties.List(ctx, PartyListOptions{})
	require.NoError(t, err)
	require.Len(t, parties, 1)
	assert.Equal(t, a, parties[0].ID)

	parties, err = s.Parties.List(ctx, PartyListOptions{IncludeInactive: true, Query: "ACME"})
	require.NoError(t, err)
	assert.Len(t, parties, 2)

	_, err = s.Parties.Resolve(ctx, "ACME Inc")
	assert.True(t, errors.Is(err, errors.NotFound), "inactive parties do not resolve")
}

func TestPartyStore_ListPages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, name := range []string{"Carol", "Alice", "Bob"} {
		testutil.SeedParty(t, s.DB(), name)
	}

	opts := PartyListOptions{Sort: "name", Limit: 2}
	first, err := s.Parties.List(ctx, opts)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "Alice", first[0].Name)
	assert.Equal(t, "Bob", first[1].Name)

	next, err := opts.NextCursor(first)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first[1].ID, next.LastID)

	opts.After = next
	second, err := s.Parties.List(ctx, opts)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "Carol", second[0].Name)

	last, err := opts.NextCursor(second)
	require.NoError(t, err)
	assert.Nil(t, last)

	_, err = s.Parties.List(ctx, PartyListOptions{Sort: "phone"})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestPartyStore_MergeSoft(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	database := s.DB()

	target := testutil.SeedParty(t, database, "Acme")
	dup := testutil.SeedParty(t, database, "ACME")
	addr := testutil.SeedAddress(t, database, dup, "Lyon")
	inv := testutil.SeedInvoice(t, database, dup, 1250)
	testutil.SeedCategory(t, database, "customer", dup)

	report, err := s.Parties.Merge(ctx, "alice", domain.MergeRequest{Duplicates: []int64{dup}, Target: target})
	require.NoError(t, err)
	assert.Equal(t, domain.MergePolicySoft, report.Policy)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, "deactivated", report.Duplicates[0].Finalized)

	a, err := s.Addresses.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, target, a.PartyID)

	i, err := s.Invoices.Get(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, target, i.PartyID)

	d, err := s.Parties.Get(ctx, dup)
	require.NoError(t, err)
	assert.False(t, d.Active)

	// Many-to-many links stay on the duplicate.
	cats, err := s.Categories.ListForParty(ctx, dup)
	require.NoError(t, err)
	assert.Len(t, cats, 1)

	merges, err := s.Parties.Merges(ctx, target)
	require.NoError(t, err)
	require.Len(t, merges, 1)
	assert.Equal(t, dup, merges[0].DuplicateID)
	assert.Equal(t, report.RunID, merges[0].RunID)
	require.NotNil(t, merges[0].MergedBy)
	assert.Equal(t, "alice", *merges[0].MergedBy)

	events, err := s.Events(ctx, "party", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "party.merged", events[0].EventType)
}

func TestPartyStore_HistoryAfterSoftMerge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	database := s.DB()

	target := testutil.SeedParty(t, database, "Acme")
	dup := testutil.SeedParty(t, database, "ACME")

	_, err := s.Parties.Merge(ctx, "alice", domain.MergeRequest{Duplicates: []int64{dup}, Target: target})
	require.NoError(t, err)

	history, err := s.Parties.History(ctx, target)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "Acme", *history[0].Name)

	// The duplicate's deactivation is the newest row.
	last := history[len(history)-1]
	assert.Equal(t, "ACME", *last.Name)
	require.NotNil(t, last.Active)
	assert.False(t, *last.Active)

	p, err := s.Parties.Get(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, "Acme", p.Name)
	assert.True(t, p.Active)
}

func TestPartyStore_MergeHardUsesStoreDefault(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithMergePolicy(domain.MergePolicyHard))
	database := s.DB()

	target := testutil.SeedParty(t, database, "Acme")
	dup := testutil.SeedParty(t, database, "ACME")
	testutil.SeedAddress(t, database, dup, "Lyon")

	report, err := s.Parties.Merge(ctx, "", domain.MergeRequest{Duplicates: []int64{dup}, Target: target})
	require.NoError(t, err)
	assert.Equal(t, domain.MergePolicyHard, report.Policy)

	_, err = s.Parties.Get(ctx, dup)
	assert.True(t, errors.Is(err, errors.NotFound))

	addrs, err := s.Addresses.ListForParty(ctx, target)
	require.NoError(t, err)
	assert.Len(t, addrs, 1)
}

func TestPartyStore_MergeDryRunRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	database := s.DB()

	target := testutil.SeedParty(t, database, "Acme")
	dup := testutil.SeedParty(t, database, "ACME")
	testutil.SeedInvoice(t, database, dup, 500)

	report, err := s.Parties.Merge(ctx, "", domain.MergeRequest{Duplicates: []int64{dup}, Target: target, DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, int64(1), tableRows(report, "invoice"))
	assert.Equal(t, int64(2), tableRows(report, "party_history"))

	assert.Equal(t, 1, testutil.CountRows(t, database, "invoice", "party_id", dup))
	d, err := s.Parties.Get(ctx, dup)
	require.NoError(t, err)
	assert.True(t, d.Active)

	merges, err := s.Parties.Merges(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, merges)
}

func TestPartyStore_MergeRejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	database := s.DB()

	target := testutil.SeedParty(t, database, "Acme")
	dup := testutil.SeedParty(t, database, "ACME")

	_, err := s.Parties.Merge(ctx, "", domain.MergeRequest{Duplicates: []int64{target}, Target: target})
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = s.Parties.Merge(ctx, "", domain.MergeRequest{Target: target})
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = s.Parties.Merge(ctx, "", domain.MergeRequest{Duplicates: []int64{dup, 999}, Target: target})
	assert.True(t, errors.Is(err, errors.NotFound))

	// A missing duplicate aborts the whole request.
	d, err := s.Parties.Get(ctx, dup)
	require.NoError(t, err)
	assert.True(t, d.Active)
}

func TestPartyStore_MergeFailureRollsBackEveryDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	database := s.DB()

	target := testutil.SeedParty(t, database, "Acme")
	d1 := testutil.SeedParty(t, database, "ACME")
	d2 := testutil.SeedParty(t, database, "Acme Corp")
	testutil.SeedAddress(t, database, d1, "Lyon")
	testutil.SeedAddress(t, database, d2, "Paris")

	// Fail the second duplicate's address rewrite.
	_, err := database.Exec(fmt.Sprintf(`
		CREATE TRIGGER fail_second BEFORE UPDATE OF party_id ON address
		WHEN OLD.party_id = %d BEGIN SELECT RAISE(ABORT, 'disk full'); END`, d2))
	require.NoError(t, err)

	_, err = s.Parties.Merge(ctx, "", domain.MergeRequest{Duplicates: []int64{d1, d2}, Target: target})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, 1, testutil.CountRows(t, database, "address", "party_id", d1))
	p, err := s.Parties.Get(ctx, d1)
	require.NoError(t, err)
	assert.True(t, p.Active)
}

func TestAddressStore_HistoryFollowsMerge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	target, err := s.Parties.Create(ctx, "", "Acme", nil, nil)
	require.NoError(t, err)
	dup, err := s.Parties.Create(ctx, "", "ACME", nil, nil)
	require.NoError(t, err)
	_, err = s.Addresses.Create(ctx, "", AddressCreateParams{PartyID: dup.ID, City: strPtr("Lyon")})
	require.NoError(t, err)

	_, err = s.Parties.Merge(ctx, "", domain.MergeRequest{Duplicates: []int64{dup.ID}, Target: target.ID})
	require.NoError(t, err)

	history, err := s.Addresses.HistoryForParty(ctx, dup.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	history, err = s.Addresses.HistoryForParty(ctx, target.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "original insert and the rewrite itself")

	partyHistory, err := s.Parties.History(ctx, target.ID)
	require.NoError(t, err)
	// target insert, duplicate insert, duplicate deactivation
	assert.Len(t, partyHistory, 3)
}

func TestInvoiceStore_CreateAndPost(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.Parties.Create(ctx, "", "Acme", nil, nil)
	require.NoError(t, err)

	inv, err := s.Invoices.Create(ctx, "", InvoiceCreateParams{PartyID: p.ID, AmountCents: 12345})
	require.NoError(t, err)
	assert.Equal(t, "INV-00001", inv.Number)
	assert.Equal(t, domain.InvoiceStateDraft, inv.State)
	assert.Equal(t, "123.45", inv.FormatAmount())

	posted, err := s.Invoices.Post(ctx, "", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatePosted, posted.State)
	assert.NotNil(t, posted.PostedAt)

	_, err = s.Invoices.Post(ctx, "", inv.ID)
	assert.Error(t, err, "posting twice")
}

func TestCategoryStore_AssignIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.Parties.Create(ctx, "", "Acme", nil, nil)
	require.NoError(t, err)
	c, err := s.Categories.Create(ctx, "supplier")
	require.NoError(t, err)

	require.NoError(t, s.Categories.Assign(ctx, "", p.ID, c.ID))
	require.NoError(t, s.Categories.Assign(ctx, "", p.ID, c.ID))

	cats, err := s.Categories.ListForParty(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "supplier", cats[0].Name)
}

func TestStore_RegistryIsCached(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r1, err := s.Registry(ctx)
	require.NoError(t, err)
	r2, err := s.Registry(ctx)
	require.NoError(t, err)
	assert.Same(t, r1, r2)

	s.ReloadRegistry()
	r3, err := s.Registry(ctx)
	require.NoError(t, err)
	assert.NotSame(t, r1, r3)
}
