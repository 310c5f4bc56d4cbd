package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lherron/partymerge/internal/cli/appctx"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/id"
	"github.com/lherron/partymerge/internal/render"
	"github.com/lherron/partymerge/internal/selectors"
)

var partyHeaders = []string{"ID", "NAME", "EMAIL", "PHONE", "ACTIVE"}

func partyRows(parties []domain.Party) [][]string {
	rows := make([][]string, 0, len(parties))
	for _, p := range parties {
		rows = append(rows, []string{
			id.FormatParty(p.ID),
			p.DisplayName,
			render.Optional(p.Email),
			render.Optional(p.Phone),
			strconv.FormatBool(p.Active),
		})
	}
	return rows
}

// resolveParties turns selectors into identities, preserving order.
func resolveParties(ctx context.Context, app *appctx.App, sels []string) ([]int64, error) {
	return selectors.ResolveParties(ctx, app.DB, sels)
}

func parsePositiveID(kind, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, s)
	}
	return n, nil
}

func optionalFlag(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
