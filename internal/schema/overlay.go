package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overlay is a static description layered over the reflected schema. It
// covers what SQLite metadata cannot express: columns maintained by the
// application that must not be rewritten, and tables that only exist to
// back a view or an import and should be treated as non-persisted.
//
//	entities:
//	  invoice:
//	    computed: [party_id]
//	  staging_party:
//	    exclude: true
//	  contact:
//	    history: contact_versions
type Overlay struct {
	Entities map[string]EntityOverlay `yaml:"entities"`
}

// EntityOverlay adjusts one entity type.
type EntityOverlay struct {
	Computed []string `yaml:"computed"`
	Exclude  bool     `yaml:"exclude"`
	History  string   `yaml:"history"`
}

// LoadOverlay reads an overlay file. An empty path returns nil.
func LoadOverlay(path string) (*Overlay, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema overlay: %w", err)
	}
	return ParseOverlay(data)
}

// ParseOverlay decodes overlay YAML.
func ParseOverlay(data []byte) (*Overlay, error) {
	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse schema overlay: %w", err)
	}
	return &o, nil
}

// historyTables maps entity names to their overridden history table.
func (o *Overlay) historyTables() map[string]string {
	if o == nil {
		return nil
	}
	tables := make(map[string]string)
	for name, adj := range o.Entities {
		if adj.History != "" {
			tables[name] = adj.History
		}
	}
	return tables
}

// Apply modifies entity types already present in reg. Unknown entity or
// field names are an error so typos do not silently widen a merge.
func (o *Overlay) Apply(reg *Registry) error {
	for name, adj := range o.Entities {
		et, ok := reg.EntityType(name)
		if !ok {
			return fmt.Errorf("schema overlay: unknown entity type %q", name)
		}
		updated := *et
		updated.Fields = append([]Field(nil), et.Fields...)

		for _, col := range adj.Computed {
			found := false
			for i := range updated.Fields {
				if updated.Fields[i].Name == col {
					updated.Fields[i].Stored = false
					found = true
				}
			}
			if !found {
				return fmt.Errorf("schema overlay: unknown field %s.%s", name, col)
			}
		}
		if adj.Exclude {
			updated.Persisted = false
		}
		// Load has already paired reflected entities with their override
		// table. Statically registered ones mirror every column.
		if adj.History != "" && !strings.EqualFold(updated.History, adj.History) {
			updated.History = adj.History
			updated.historyColumns = nil
		}

		if err := reg.Register(updated); err != nil {
			return err
		}
	}
	return nil
}
