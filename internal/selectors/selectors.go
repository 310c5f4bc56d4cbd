package selectors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/id"
)

// ResolveParty resolves a party selector to its identity. Selectors are an
// identity (42), a code (PTY-00042), or an exact name prefixed with "n:".
// Only active parties resolve, matching what default searches show.
func ResolveParty(ctx context.Context, q sqlx.QueryerContext, selector string) (int64, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return 0, fmt.Errorf("empty party selector")
	}

	if name, ok := strings.CutPrefix(selector, "n:"); ok {
		return resolveByName(ctx, q, selector, name)
	}

	partyID, err := id.ParseParty(selector)
	if err != nil {
		// Fall back to name lookup for anything that is not an identity.
		return resolveByName(ctx, q, selector, selector)
	}

	var found int64
	err = sqlx.GetContext(ctx, q, &found, "SELECT id FROM party WHERE id = ? AND active = 1", partyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &domain.PartyNotFoundError{Selector: selector}
		}
		return 0, fmt.Errorf("database error: %w", err)
	}
	return found, nil
}

// ResolveParties resolves every selector, failing on the first miss.
func ResolveParties(ctx context.Context, q sqlx.QueryerContext, selectors []string) ([]int64, error) {
	ids := make([]int64, 0, len(selectors))
	for _, s := range selectors {
		partyID, err := ResolveParty(ctx, q, s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, partyID)
	}
	return ids, nil
}

func resolveByName(ctx context.Context, q sqlx.QueryerContext, selector, name string) (int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, q, &ids, "SELECT id FROM party WHERE name = ? AND active = 1 ORDER BY id", name)
	if err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	switch len(ids) {
	case 0:
		return 0, &domain.PartyNotFoundError{Selector: selector}
	case 1:
		return ids[0], nil
	default:
		return 0, fmt.Errorf("party name %q is ambiguous: matches %d parties, use an identity", name, len(ids))
	}
}
