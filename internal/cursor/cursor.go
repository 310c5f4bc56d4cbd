// Package cursor implements opaque keyset pagination cursors.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/huandu/go-sqlbuilder"
	"github.com/juju/errors"
)

// Cursor represents a pagination cursor with sort fields and last seen values
type Cursor struct {
	SortFields []string      `json:"sort_fields"`
	LastValues []interface{} `json:"last_values"`
	LastID     int64         `json:"last_id"`
}

// Encode serializes the cursor to an opaque base64 string
func (c *Cursor) Encode() (string, error) {
	if len(c.SortFields) != len(c.LastValues) {
		return "", fmt.Errorf("sort fields and last values length mismatch")
	}

	jsonData, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(jsonData), nil
}

// Decode deserializes a cursor from an opaque base64 string. Malformed
// input is NotValid.
func Decode(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, errors.NotValidf("empty cursor")
	}

	jsonData, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.NewNotValid(err, "invalid cursor encoding")
	}

	var c Cursor
	if err := json.Unmarshal(jsonData, &c); err != nil {
		return nil, errors.NewNotValid(err, "invalid cursor format")
	}

	if len(c.SortFields) != len(c.LastValues) {
		return nil, errors.NotValidf("cursor sort fields and values length mismatch")
	}
	if c.LastID <= 0 {
		return nil, errors.NotValidf("cursor missing last id")
	}
	return &c, nil
}

// Matches reports whether the cursor was issued for this ordering.
func (c *Cursor) Matches(sortFields []string) bool {
	return slices.Equal(c.SortFields, sortFields)
}

// Condition returns the predicate selecting rows after the cursor. It is
// built with cond so the arguments land in the caller's builder.
//
// For ORDER BY a DESC, b DESC, id DESC it yields:
//
//	(a < ?) OR (a = ? AND b < ?) OR (a = ? AND b = ? AND id < ?)
//
// The identity tie-breaker follows the direction of the last sort field,
// ascending when there are none.
func (c *Cursor) Condition(cond *sqlbuilder.Cond, idColumn string, descending []bool) (string, error) {
	if len(c.SortFields) != len(descending) {
		return "", fmt.Errorf("sort fields and descending flags length mismatch")
	}

	compare := func(field string, desc bool, value interface{}) string {
		if desc {
			return cond.LessThan(field, value)
		}
		return cond.GreaterThan(field, value)
	}
	equalPrefix := func(n int) []string {
		parts := make([]string, 0, n+1)
		for j := 0; j < n; j++ {
			parts = append(parts, cond.Equal(c.SortFields[j], c.LastValues[j]))
		}
		return parts
	}

	var levels []string
	for i := range c.SortFields {
		parts := append(equalPrefix(i), compare(c.SortFields[i], descending[i], c.LastValues[i]))
		levels = append(levels, cond.And(parts...))
	}

	idDesc := len(descending) > 0 && descending[len(descending)-1]
	parts := append(equalPrefix(len(c.SortFields)), compare(idColumn, idDesc, c.LastID))
	levels = append(levels, cond.And(parts...))

	if len(levels) == 1 {
		return levels[0], nil
	}
	return cond.Or(levels...), nil
}

// NewCursor creates a new cursor from the last row values
func NewCursor(sortFields []string, lastValues []interface{}, lastID int64) (*Cursor, error) {
	if len(sortFields) != len(lastValues) {
		return nil, fmt.Errorf("sort fields and last values length mismatch")
	}
	if lastID <= 0 {
		return nil, fmt.Errorf("last id required")
	}
	return &Cursor{
		SortFields: sortFields,
		LastValues: lastValues,
		LastID:     lastID,
	}, nil
}

// ApplyOptions describes the ordering of a paginated query.
type ApplyOptions struct {
	SortFields []string
	Descending []bool
	// IDField is the unique tie-breaker column. Defaults to "id".
	IDField string
	Limit   int
}

// Apply adds ORDER BY, LIMIT and, when after is not nil, the keyset
// predicate to sb. A cursor issued for another ordering is NotValid.
func Apply(sb *sqlbuilder.SelectBuilder, after *Cursor, opts ApplyOptions) error {
	if len(opts.SortFields) != len(opts.Descending) {
		return fmt.Errorf("sort fields and descending flags length mismatch")
	}
	idField := opts.IDField
	if idField == "" {
		idField = "id"
	}

	if after != nil {
		if !after.Matches(opts.SortFields) {
			return errors.NotValidf("cursor was issued for a different ordering")
		}
		where, err := after.Condition(&sb.Cond, idField, opts.Descending)
		if err != nil {
			return err
		}
		sb.Where(where)
	}

	order := make([]string, 0, len(opts.SortFields)+1)
	for i, f := range opts.SortFields {
		order = append(order, f+direction(opts.Descending[i]))
	}
	idDesc := len(opts.Descending) > 0 && opts.Descending[len(opts.Descending)-1]
	order = append(order, idField+direction(idDesc))
	sb.OrderBy(order...)

	if opts.Limit > 0 {
		sb.Limit(opts.Limit)
	}
	return nil
}

func direction(desc bool) string {
	if desc {
		return " DESC"
	}
	return " ASC"
}
