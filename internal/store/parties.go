package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/juju/errors"

	"github.com/lherron/partymerge/internal/cursor"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/events"
	"github.com/lherron/partymerge/internal/merge"
	"github.com/lherron/partymerge/internal/selectors"
)

var partyColumns = []string{"id", "name", "email", "phone", "active", "display_name", "create_date", "write_date"}

// errDryRun unwinds a merge transaction that must not commit.
var errDryRun = errors.New("dry run")

// PartyStore handles party-related database operations
type PartyStore struct {
	store *Store
}

// PartyListOptions filters List.
type PartyListOptions struct {
	IncludeInactive bool
	Query           string
	Limit           int
	// Sort is "id" (default) or "name".
	Sort string
	// After resumes a previous page.
	After *cursor.Cursor
}

func (o PartyListOptions) ordering() (cursor.ApplyOptions, error) {
	opts := cursor.ApplyOptions{Limit: o.Limit}
	switch o.Sort {
	case "", "id":
	case "name":
		opts.SortFields = []string{"name"}
		opts.Descending = []bool{false}
	default:
		return opts, errors.NotValidf("sort %q", o.Sort)
	}
	return opts, nil
}

// NextCursor returns the cursor for the page after parties, or nil when
// parties is the last page.
func (o PartyListOptions) NextCursor(parties []domain.Party) (*cursor.Cursor, error) {
	if o.Limit <= 0 || len(parties) < o.Limit {
		return nil, nil
	}
	last := parties[len(parties)-1]
	if o.Sort == "name" {
		return cursor.NewCursor([]string{"name"}, []interface{}{last.Name}, last.ID)
	}
	return cursor.NewCursor(nil, nil, last.ID)
}

// Create inserts a new party
func (ps *PartyStore) Create(ctx context.Context, actor, name string, email, phone *string) (*domain.Party, error) {
	if err := domain.ValidatePartyName(name); err != nil {
		return nil, err
	}

	var party *domain.Party
	err := ps.store.withTx(ctx, func(tx *sqlx.Tx, ew *events.Writer) error {
		ib := newInsert("party")
		ib.Cols("name", "email", "phone")
		ib.Values(strings.TrimSpace(name), email, phone)

		query, args := ib.Build()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to insert party: %w", err)
		}
		partyID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get party id: %w", err)
		}

		party, err = getParty(ctx, tx, partyID)
		if err != nil {
			return err
		}
		return ew.LogPartyCreated(ctx, actor, party)
	})
	if err != nil {
		return nil, err
	}
	return party, nil
}

// Get returns a party by identity, active or not.
func (ps *PartyStore) Get(ctx context.Context, partyID int64) (*domain.Party, error) {
	return getParty(ctx, ps.store.db, partyID)
}

func getParty(ctx context.Context, q sqlx.QueryerContext, partyID int64) (*domain.Party, error) {
	sb := newSelect()
	sb.Select(partyColumns...).From("party").Where(sb.Equal("id", partyID))

	query, args := sb.Build()
	var p domain.Party
	if err := sqlx.GetContext(ctx, q, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.PartyNotFoundError{Selector: fmt.Sprint(partyID)}
		}
		return nil, fmt.Errorf("failed to get party: %w", err)
	}
	return &p, nil
}

// List returns parties ordered by identity. Inactive parties are hidden
// unless requested.
func (ps *PartyStore) List(ctx context.Context, opts PartyListOptions) ([]domain.Party, error) {
	sb := newSelect()
	sb.Select(partyColumns...).From("party")
	if !opts.IncludeInactive {
		sb.Where(sb.Equal("active", true))
	}
	if opts.Query != "" {
		like := "%" + opts.Query + "%"
		sb.Where(sb.Or(sb.Like("name", like), sb.Like("email", like)))
	}
	ordering, err := opts.ordering()
	if err != nil {
		return nil, err
	}
	if err := cursor.Apply(sb, opts.After, ordering); err != nil {
		return nil, err
	}

	query, args := sb.Build()
	parties := []domain.Party{}
	if err := ps.store.db.SelectContext(ctx, &parties, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list parties: %w", err)
	}
	return parties, nil
}

// Resolve turns a selector into an active party's identity.
func (ps *PartyStore) Resolve(ctx context.Context, selector string) (int64, error) {
	return selectors.ResolveParty(ctx, ps.store.db, selector)
}

// Update sets name, email and phone. Unknown fields are rejected.
func (ps *PartyStore) Update(ctx context.Context, actor string, partyID int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	return ps.store.withTx(ctx, func(tx *sqlx.Tx, ew *events.Writer) error {
		ub := newUpdate("party")
		assignments := []string{ub.Assign("write_date", time.Now().UTC().Format(time.RFC3339))}
		for _, key := range []string{"name", "email", "phone"} {
			value, ok := fields[key]
			if !ok {
				continue
			}
			if key == "name" {
				name, _ := value.(string)
				if err := domain.ValidatePartyName(name); err != nil {
					return err
				}
			}
			assignments = append(assignments, ub.Assign(key, value))
		}
		if len(assignments) != len(fields)+1 {
			return fmt.Errorf("unsupported party field: only name, email and phone can be updated")
		}
		ub.Set(assignments...)
		ub.Where(ub.Equal("id", partyID), ub.Equal("active", true))

		query, args := ub.Build()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update party: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &domain.PartyNotFoundError{Selector: fmt.Sprint(partyID)}
		}
		return ew.LogPartyUpdated(ctx, actor, partyID, fields)
	})
}

// History returns the recorded versions of a party, oldest first. After a
// merge it includes the versions of every party merged into it.
//
// A soft merge records the duplicate's deactivation before its history is
// re-keyed, so the last row of the target's history is then the inactive
// duplicate, not the target's current state. Use Get for that.
func (ps *PartyStore) History(ctx context.Context, partyID int64) ([]domain.PartyHistory, error) {
	sb := newSelect()
	sb.Select("history_id", "id", "name", "email", "phone", "active", "recorded_at").
		From("party_history").
		Where(sb.Equal("id", partyID)).
		OrderBy("history_id")

	query, args := sb.Build()
	rows := []domain.PartyHistory{}
	if err := ps.store.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get party history: %w", err)
	}
	return rows, nil
}

// Merges lists the audit trail, newest first. A non-zero partyID keeps
// rows where the party was either side of the merge.
func (ps *PartyStore) Merges(ctx context.Context, partyID int64) ([]domain.MergeRecord, error) {
	sb := newSelect()
	sb.Select("id", "run_id", "duplicate_id", "target_id", "policy", "rows_rewritten", "merged_by", "created_at").
		From("party_merges")
	if partyID != 0 {
		sb.Where(sb.Or(sb.Equal("duplicate_id", partyID), sb.Equal("target_id", partyID)))
	}
	sb.OrderBy("id").Desc()

	query, args := sb.Build()
	records := []domain.MergeRecord{}
	if err := ps.store.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list merges: %w", err)
	}
	return records, nil
}

// Merge folds the requested duplicates into the target in one transaction.
// Nothing is kept unless every duplicate merges; a dry run reports what
// would change and rolls back.
func (ps *PartyStore) Merge(ctx context.Context, actor string, req domain.MergeRequest) (*merge.Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	reg, err := ps.store.Registry(ctx)
	if err != nil {
		return nil, err
	}
	policy := req.Policy
	if policy == "" {
		policy = ps.store.policy
	}

	orch := merge.NewOrchestrator(
		merge.NewRewriter(reg, domain.PartyEntity, ps.store.logger),
		merge.WithPolicy(policy),
		merge.WithActor(actor),
		merge.WithLogger(ps.store.logger),
	)

	var report *merge.Report
	err = ps.store.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, partyID := range append([]int64{req.Target}, req.Duplicates...) {
			if err := requireActive(ctx, tx, partyID); err != nil {
				return err
			}
		}

		var err error
		report, err = orch.MergeDuplicates(ctx, tx, req.Duplicates, req.Target)
		if err != nil {
			return err
		}
		if req.DryRun {
			report.DryRun = true
			return errDryRun
		}
		return nil
	})
	if errors.Is(err, errDryRun) {
		return report, nil
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

func requireActive(ctx context.Context, q sqlx.QueryerContext, partyID int64) error {
	var active bool
	err := sqlx.GetContext(ctx, q, &active, "SELECT active FROM party WHERE id = ?", partyID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
		return &domain.PartyNotFoundError{Selector: fmt.Sprint(partyID)}
	}
	if err != nil {
		return fmt.Errorf("failed to check party %d: %w", partyID, err)
	}
	return nil
}
