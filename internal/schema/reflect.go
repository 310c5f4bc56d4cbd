package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// HistorySuffix names the history table of an entity type by convention.
const HistorySuffix = "_history"

// bookkeeping tables are never entity types
var bookkeeping = map[string]bool{
	"schema_migrations": true,
}

type masterRow struct {
	Name string `db:"name"`
	Type string `db:"type"`
}

type columnInfo struct {
	CID     int            `db:"cid"`
	Name    string         `db:"name"`
	Type    string         `db:"type"`
	NotNull bool           `db:"notnull"`
	Default sql.NullString `db:"dflt_value"`
	PK      int            `db:"pk"`
	// Hidden is 2 for virtual and 3 for stored generated columns.
	Hidden int `db:"hidden"`
}

type foreignKey struct {
	ID       int            `db:"id"`
	Seq      int            `db:"seq"`
	Table    string         `db:"table"`
	From     string         `db:"from"`
	To       sql.NullString `db:"to"`
	OnUpdate string         `db:"on_update"`
	OnDelete string         `db:"on_delete"`
	Match    string         `db:"match"`
}

type reflected struct {
	et      *EntityType
	columns []columnInfo
	fks     []foreignKey
}

// Load reflects the SQLite schema reachable through q into a registry and
// applies the optional overlay on top.
func Load(ctx context.Context, q sqlx.QueryerContext, overlay *Overlay) (*Registry, error) {
	var objects []masterRow
	err := sqlx.SelectContext(ctx, q, &objects, `
		SELECT name, type FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schema objects: %w", err)
	}

	present := make(map[string]string, len(objects))
	canonical := make(map[string]string, len(objects))
	for _, obj := range objects {
		present[obj.Name] = obj.Type
		canonical[strings.ToLower(obj.Name)] = obj.Name
	}

	// Overlay history tables mirror an entity and are not entity types.
	overrides := make(map[string]string)
	mirrors := make(map[string]bool)
	for name, history := range overlay.historyTables() {
		table, ok := canonical[strings.ToLower(history)]
		if !ok || present[table] != "table" {
			return nil, fmt.Errorf("schema overlay: unknown history table %q for %s", history, name)
		}
		overrides[name] = table
		mirrors[table] = true
	}

	loaded := make(map[string]*reflected)
	for _, obj := range objects {
		if bookkeeping[obj.Name] || mirrors[obj.Name] || isHistoryOf(obj.Name, present) {
			continue
		}

		info := &reflected{et: &EntityType{Name: obj.Name, Persisted: obj.Type == "table"}}
		if err := sqlx.SelectContext(ctx, q, &info.columns, "SELECT * FROM pragma_table_xinfo(?)", obj.Name); err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", obj.Name, err)
		}
		if obj.Type == "table" {
			if err := sqlx.SelectContext(ctx, q, &info.fks, "SELECT * FROM pragma_foreign_key_list(?)", obj.Name); err != nil {
				return nil, fmt.Errorf("failed to read foreign keys of %s: %w", obj.Name, err)
			}
		}
		info.et.Identity = identityColumn(info.columns)

		history, ok := overrides[obj.Name]
		if !ok {
			history = obj.Name + HistorySuffix
		}
		if present[history] == "table" {
			var historyCols []columnInfo
			if err := sqlx.SelectContext(ctx, q, &historyCols, "SELECT * FROM pragma_table_xinfo(?)", history); err != nil {
				return nil, fmt.Errorf("failed to read columns of %s: %w", history, err)
			}
			info.et.History = history
			info.et.historyColumns = make(map[string]bool, len(historyCols))
			for _, c := range historyCols {
				info.et.historyColumns[c.Name] = true
			}
		}

		loaded[obj.Name] = info
	}

	byName := make(map[string]*reflected, len(loaded))
	for name, info := range loaded {
		byName[strings.ToLower(name)] = info
	}

	reg := New()
	for _, info := range loaded {
		info.et.Fields = buildFields(info, byName)
		if err := reg.Register(*info.et); err != nil {
			return nil, err
		}
	}

	if overlay != nil {
		if err := overlay.Apply(reg); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func isHistoryOf(name string, present map[string]string) bool {
	base, ok := strings.CutSuffix(name, HistorySuffix)
	if !ok || base == "" {
		return false
	}
	_, exists := present[base]
	return exists
}

func identityColumn(columns []columnInfo) string {
	var pk []string
	for _, c := range columns {
		if c.PK > 0 {
			pk = append(pk, c.Name)
		}
	}
	if len(pk) == 1 {
		return pk[0]
	}
	return "rowid"
}

// buildFields derives the fields of info. loaded is keyed by lower-cased
// name since SQLite identifiers are case-insensitive.
func buildFields(info *reflected, loaded map[string]*reflected) []Field {
	// Multi-column foreign keys cannot be rewritten one column at a time.
	parts := make(map[int]int)
	for _, fk := range info.fks {
		parts[fk.ID]++
	}

	relations := make(map[string]foreignKey)
	for _, fk := range info.fks {
		if parts[fk.ID] != 1 {
			continue
		}
		target, ok := loaded[strings.ToLower(fk.Table)]
		if !ok {
			continue
		}
		// Only references to the target's identity carry identity values.
		if fk.To.Valid && fk.To.String != "" && !strings.EqualFold(fk.To.String, target.et.Identity) {
			continue
		}
		fk.Table = target.et.Name
		relations[fk.From] = fk
	}

	// Only the key columns of a link table are many-to-many. Any other
	// relation on it is a plain reference.
	link := isLinkTable(info.columns, relations)

	fields := make([]Field, 0, len(info.columns))
	for _, c := range info.columns {
		f := Field{Name: c.Name, Stored: c.Hidden != 2 && c.Hidden != 3}
		if fk, ok := relations[c.Name]; ok {
			f.Relation = fk.Table
			f.Cardinality = Many2One
			if link && c.PK > 0 {
				f.Cardinality = Many2Many
			}
		}
		fields = append(fields, f)
	}
	return fields
}

// isLinkTable reports whether the primary key is made of two or more
// columns that are all relations.
func isLinkTable(columns []columnInfo, relations map[string]foreignKey) bool {
	pk := 0
	for _, c := range columns {
		if c.PK == 0 {
			continue
		}
		if _, ok := relations[c.Name]; !ok {
			return false
		}
		pk++
	}
	return pk >= 2
}
