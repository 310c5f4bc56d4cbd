package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/events"
)

const (
	activeColumn    = "active"
	writeDateColumn = "write_date"
	auditTable      = "party_merges"
)

// DuplicateReport describes how one duplicate was merged.
type DuplicateReport struct {
	Duplicate int64          `json:"duplicate"`
	Finalized string         `json:"finalized"`
	Rewrite   *RewriteResult `json:"rewrite"`
}

// Report describes one MergeDuplicates call.
type Report struct {
	RunID      string             `json:"run_id"`
	Target     int64              `json:"target"`
	Policy     domain.MergePolicy `json:"policy"`
	DryRun     bool               `json:"dry_run,omitempty"`
	Duplicates []DuplicateReport  `json:"duplicates"`
}

// Rows is the total number of references rewritten across duplicates.
func (r *Report) Rows() int64 {
	var n int64
	for _, d := range r.Duplicates {
		if d.Rewrite != nil {
			n += d.Rewrite.Rows()
		}
	}
	return n
}

// Orchestrator merges a list of duplicates into one target.
type Orchestrator struct {
	rewriter *Rewriter
	policy   domain.MergePolicy
	actor    string
	logger   *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPolicy selects how duplicates are finalized. Defaults to soft.
func WithPolicy(policy domain.MergePolicy) Option {
	return func(o *Orchestrator) {
		if policy != "" {
			o.policy = policy
		}
	}
}

// WithActor records who performed the merge in the audit trail.
func WithActor(actor string) Option {
	return func(o *Orchestrator) { o.actor = actor }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator returns an orchestrator driving rw.
func NewOrchestrator(rw *Rewriter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		rewriter: rw,
		policy:   domain.MergePolicySoft,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the finalization policy in effect.
func (o *Orchestrator) Policy() domain.MergePolicy {
	return o.policy
}

// MergeDuplicates merges each duplicate, in the order given, into target.
//
// Every statement runs on q, the caller's transaction; committing it makes
// the whole duplicate set merged and rolling it back leaves everything as
// it was. When a duplicate fails the call returns at once and duplicates
// already handled stay merged in q.
//
// With the soft policy the duplicate is deactivated before its references
// move, so the history row written by the deactivation is folded into the
// target's history along with the rest. With the hard policy the duplicate
// is deleted after its references move; rows linking to it through
// many-to-many tables go with it.
//
// target must not be among duplicates. That is not checked: doing so
// rewrites the target onto itself and then removes it.
func (o *Orchestrator) MergeDuplicates(ctx context.Context, q sqlx.ExtContext, duplicates []int64, target int64) (*Report, error) {
	report := &Report{
		RunID:      uuid.NewString(),
		Target:     target,
		Policy:     o.policy,
		Duplicates: make([]DuplicateReport, 0, len(duplicates)),
	}
	ew := events.NewWriter(q)

	for _, d := range duplicates {
		log := o.logger.With(zap.String("run_id", report.RunID), zap.Int64("duplicate", d), zap.Int64("target", target))
		dr := DuplicateReport{Duplicate: d}

		if o.policy == domain.MergePolicySoft {
			if err := o.deactivate(ctx, q, d); err != nil {
				return report, err
			}
			dr.Finalized = "deactivated"
		}

		rewrite, err := o.rewriter.RewriteReferences(ctx, q, d, target)
		dr.Rewrite = rewrite
		if err != nil {
			log.Error("merge failed", zap.Error(err))
			return report, fmt.Errorf("failed to merge party %d into %d: %w", d, target, err)
		}

		if o.policy == domain.MergePolicyHard {
			if err := o.delete(ctx, q, d); err != nil {
				return report, err
			}
			if err := ew.LogPartyDeleted(ctx, o.actor, d); err != nil {
				return report, err
			}
			dr.Finalized = "deleted"
		}

		if err := o.audit(ctx, q, report.RunID, d, target, rewrite.Rows()); err != nil {
			return report, err
		}
		if err := ew.LogPartyMerged(ctx, o.actor, d, target, report.RunID, o.policy, rewrite.Rows()); err != nil {
			return report, err
		}

		report.Duplicates = append(report.Duplicates, dr)
		log.Info("merged party",
			zap.String("policy", string(o.policy)),
			zap.Int64("rows_rewritten", rewrite.Rows()),
		)
	}

	return report, nil
}

func (o *Orchestrator) deactivate(ctx context.Context, q sqlx.ExecerContext, id int64) error {
	et, ok := o.rewriter.registry.EntityType(o.rewriter.entity)
	if !ok {
		return fmt.Errorf("entity type %q is not registered", o.rewriter.entity)
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update(sqlbuilder.SQLite.Quote(et.Name))
	assignments := []string{ub.Assign(activeColumn, false)}
	if _, ok := et.Field(writeDateColumn); ok {
		assignments = append(assignments, ub.Assign(writeDateColumn, time.Now().UTC().Format(time.RFC3339)))
	}
	ub.Set(assignments...)
	ub.Where(ub.Equal(sqlbuilder.SQLite.Quote(et.Identity), id))

	query, args := ub.Build()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to deactivate party %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		o.logger.Warn("duplicate not found while deactivating", zap.Int64("duplicate", id))
	}
	return nil
}

func (o *Orchestrator) delete(ctx context.Context, q sqlx.ExecerContext, id int64) error {
	et, ok := o.rewriter.registry.EntityType(o.rewriter.entity)
	if !ok {
		return fmt.Errorf("entity type %q is not registered", o.rewriter.entity)
	}

	db := sqlbuilder.SQLite.NewDeleteBuilder()
	db.DeleteFrom(sqlbuilder.SQLite.Quote(et.Name))
	db.Where(db.Equal(sqlbuilder.SQLite.Quote(et.Identity), id))

	query, args := db.Build()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete party %d: %w", id, err)
	}
	return nil
}

func (o *Orchestrator) audit(ctx context.Context, q sqlx.ExecerContext, runID string, duplicate, target, rows int64) error {
	var mergedBy *string
	if o.actor != "" {
		mergedBy = &o.actor
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto(auditTable)
	ib.Cols("run_id", "duplicate_id", "target_id", "policy", "rows_rewritten", "merged_by")
	ib.Values(runID, duplicate, target, string(o.policy), rows, mergedBy)

	query, args := ib.Build()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record merge of party %d: %w", duplicate, err)
	}
	return nil
}
