// Package merge folds duplicate parties into a surviving target: it moves
// every stored many-to-one reference from a duplicate to the target,
// merges the duplicate's history into the target's, and finalizes the
// duplicate.
//
// Nothing here opens, commits or rolls back a transaction. Callers pass
// the transaction every statement runs on and decide its outcome.
package merge

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lherron/partymerge/internal/schema"
)

// TableRewrite records one bulk update.
type TableRewrite struct {
	Table   string `json:"table"`
	Column  string `json:"column"`
	History bool   `json:"history"`
	Rows    int64  `json:"rows"`
}

// SkippedField is a reference field the rewriter left alone.
type SkippedField struct {
	Entity string `json:"entity"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// RewriteResult describes what one RewriteReferences call touched.
type RewriteResult struct {
	Source  int64          `json:"source"`
	Target  int64          `json:"target"`
	Tables  []TableRewrite `json:"tables"`
	Skipped []SkippedField `json:"skipped,omitempty"`
}

// Rows is the total number of rows updated.
func (r *RewriteResult) Rows() int64 {
	var n int64
	for _, t := range r.Tables {
		n += t.Rows
	}
	return n
}

// Rewriter redirects references to one entity type.
type Rewriter struct {
	registry *schema.Registry
	entity   string
	logger   *zap.Logger
}

// NewRewriter returns a rewriter for references to entity as described by
// registry. A nil logger disables logging.
func NewRewriter(registry *schema.Registry, entity string, logger *zap.Logger) *Rewriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rewriter{
		registry: registry,
		entity:   entity,
		logger:   logger.With(zap.String("entity", entity)),
	}
}

// Entity returns the entity type whose references are rewritten.
func (rw *Rewriter) Entity() string {
	return rw.entity
}

// RewriteReferences points every reference to source at target.
//
// The entity's own history rows for source are re-keyed to target first,
// so the duplicate's version history becomes part of the target's. Then
// every stored many-to-one field pointing at the entity is updated in its
// live table and, when historized, in its history table.
//
// source != target and both existing are preconditions that are not
// checked. The first failing statement aborts the call; statements already
// run are only undone by rolling back q.
func (rw *Rewriter) RewriteReferences(ctx context.Context, q sqlx.ExecerContext, source, target int64) (*RewriteResult, error) {
	et, ok := rw.registry.EntityType(rw.entity)
	if !ok {
		return nil, fmt.Errorf("entity type %q is not registered", rw.entity)
	}

	result := &RewriteResult{Source: source, Target: target, Tables: []TableRewrite{}}

	if et.Historized() {
		n, err := rw.update(ctx, q, et.History, et.Identity, source, target)
		if err != nil {
			return result, err
		}
		result.Tables = append(result.Tables, TableRewrite{Table: et.History, Column: et.Identity, History: true, Rows: n})
	}

	for _, ref := range rw.registry.ReferenceFields(rw.entity) {
		if !ref.Stored {
			result.Skipped = append(result.Skipped, SkippedField{Entity: ref.Entity, Field: ref.Field, Reason: "computed"})
			continue
		}
		if !ref.Persisted {
			result.Skipped = append(result.Skipped, SkippedField{Entity: ref.Entity, Field: ref.Field, Reason: "not persisted"})
			continue
		}

		n, err := rw.update(ctx, q, ref.Entity, ref.Field, source, target)
		if err != nil {
			return result, err
		}
		result.Tables = append(result.Tables, TableRewrite{Table: ref.Entity, Column: ref.Field, Rows: n})

		if ref.History != "" {
			n, err := rw.update(ctx, q, ref.History, ref.Field, source, target)
			if err != nil {
				return result, err
			}
			result.Tables = append(result.Tables, TableRewrite{Table: ref.History, Column: ref.Field, History: true, Rows: n})
		}
	}

	return result, nil
}

func (rw *Rewriter) update(ctx context.Context, q sqlx.ExecerContext, table, column string, source, target int64) (int64, error) {
	col := sqlbuilder.SQLite.Quote(column)

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update(sqlbuilder.SQLite.Quote(table))
	ub.Set(ub.Assign(col, target))
	ub.Where(ub.Equal(col, source))

	query, args := ub.Build()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite %s.%s: %w", table, column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count rewritten rows in %s.%s: %w", table, column, err)
	}

	rw.logger.Debug("rewrote references",
		zap.String("table", table),
		zap.String("column", column),
		zap.Int64("source", source),
		zap.Int64("target", target),
		zap.Int64("rows", n),
	)
	return n, nil
}
