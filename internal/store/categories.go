package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/events"
)

// CategoryStore handles category-related database operations
type CategoryStore struct {
	store *Store
}

// Create inserts a category
func (cs *CategoryStore) Create(ctx context.Context, name string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("category name must not be empty")
	}

	ib := newInsert("category")
	ib.Cols("name").Values(name)

	query, args := ib.Build()
	res, err := cs.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert category: %w", err)
	}
	categoryID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category id: %w", err)
	}
	return &domain.Category{ID: categoryID, Name: name}, nil
}

// Assign links a category to an active party. Assigning twice is a no-op.
func (cs *CategoryStore) Assign(ctx context.Context, actor string, partyID, categoryID int64) error {
	return cs.store.withTx(ctx, func(tx *sqlx.Tx, ew *events.Writer) error {
		if err := requireActive(ctx, tx, partyID); err != nil {
			return err
		}

		ib := newInsert("party_category")
		ib.Cols("party_id", "category_id").Values(partyID, categoryID)
		query, args := ib.Build()
		query = strings.Replace(query, "INSERT INTO", "INSERT OR IGNORE INTO", 1)

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to assign category: %w", err)
		}
		return ew.LogCategoryAssigned(ctx, actor, partyID, categoryID)
	})
}

// ListForParty returns the categories linked to a party
func (cs *CategoryStore) ListForParty(ctx context.Context, partyID int64) ([]domain.Category, error) {
	sb := newSelect()
	sb.Select("c.id", "c.name").
		From("category c").
		Join("party_category pc", "pc.category_id = c.id").
		Where(sb.Equal("pc.party_id", partyID)).
		OrderBy("c.name")

	query, args := sb.Build()
	categories := []domain.Category{}
	if err := cs.store.db.SelectContext(ctx, &categories, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}
