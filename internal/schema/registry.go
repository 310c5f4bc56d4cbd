// Package schema is the entity type registry: which tables exist, which of
// their columns hold references to other entity types, and which tables
// keep a history copy. The merge core only ever asks it one question, "who
// points at this entity type", and the answer is computed once per schema
// load.
package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Cardinality describes how a relation field relates rows.
type Cardinality string

const (
	Many2One  Cardinality = "many2one"
	Many2Many Cardinality = "many2many"
)

// Field is one declared column of an entity type.
type Field struct {
	Name string `json:"name" yaml:"name"`
	// Relation is the referenced entity type, empty for plain columns.
	Relation    string      `json:"relation,omitempty" yaml:"relation,omitempty"`
	Cardinality Cardinality `json:"cardinality,omitempty" yaml:"cardinality,omitempty"`
	// Stored is false for computed columns that have no value to update.
	Stored bool `json:"stored" yaml:"stored"`
}

// EntityType is a table or view known to the registry.
type EntityType struct {
	Name string `json:"name" yaml:"name"`
	// Identity is the column holding the row identity, usually "id".
	Identity string `json:"identity" yaml:"identity"`
	// Persisted is false for views and abstract types.
	Persisted bool `json:"persisted" yaml:"persisted"`
	// History names the history table, empty when not historized.
	History string  `json:"history,omitempty" yaml:"history,omitempty"`
	Fields  []Field `json:"fields" yaml:"fields"`

	historyColumns map[string]bool
}

// Historized reports whether rows of this type are copied to a history table.
func (e *EntityType) Historized() bool {
	return e.History != ""
}

// Field returns the named field.
func (e *EntityType) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HistoryHas reports whether the history table carries the column. When
// history columns were never recorded (static registration) every field is
// assumed to be mirrored.
func (e *EntityType) HistoryHas(column string) bool {
	if !e.Historized() {
		return false
	}
	if e.historyColumns == nil {
		return true
	}
	return e.historyColumns[column]
}

// ReferenceField is a stored many-to-one column on Entity that points at
// the registry's relation target.
type ReferenceField struct {
	Entity    string `json:"entity"`
	Field     string `json:"field"`
	Stored    bool   `json:"stored"`
	Persisted bool   `json:"persisted"`
	// History is the history table of Entity when it mirrors Field.
	History string `json:"history,omitempty"`
}

// Registry holds entity type definitions for one schema load.
type Registry struct {
	mu       sync.Mutex
	entities map[string]*EntityType
	refs     map[string][]ReferenceField
}

// New returns an empty registry for static registration.
func New() *Registry {
	return &Registry{entities: make(map[string]*EntityType)}
}

// Register adds or replaces an entity type. Registering invalidates the
// cached reference index.
func (r *Registry) Register(et EntityType) error {
	if et.Name == "" {
		return fmt.Errorf("entity type name is required")
	}
	if et.Identity == "" {
		et.Identity = "id"
	}
	for _, f := range et.Fields {
		if f.Relation != "" && f.Cardinality == "" {
			return fmt.Errorf("field %s.%s has a relation but no cardinality", et.Name, f.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[et.Name] = &et
	r.refs = nil
	return nil
}

// EntityType returns the named entity type.
func (r *Registry) EntityType(name string) (*EntityType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	et, ok := r.entities[name]
	return et, ok
}

// EntityTypes returns all registered entity types sorted by name.
func (r *Registry) EntityTypes() []*EntityType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*EntityType, 0, len(r.entities))
	for _, et := range r.entities {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ReferenceFields returns every many-to-one field, across all entity types,
// whose relation is target. Non-stored fields and non-persisted entity
// types are included with their flags set so callers can report what they
// skip. The result is built on first use and cached until the next
// Register.
func (r *Registry) ReferenceFields(target string) []ReferenceField {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refs == nil {
		r.refs = make(map[string][]ReferenceField)
	}
	if refs, ok := r.refs[target]; ok {
		return refs
	}

	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)

	refs := []ReferenceField{}
	for _, name := range names {
		et := r.entities[name]
		for _, f := range et.Fields {
			if f.Relation != target || f.Cardinality != Many2One {
				continue
			}
			ref := ReferenceField{
				Entity:    et.Name,
				Field:     f.Name,
				Stored:    f.Stored,
				Persisted: et.Persisted,
			}
			if et.HistoryHas(f.Name) {
				ref.History = et.History
			}
			refs = append(refs, ref)
		}
	}

	r.refs[target] = refs
	return refs
}
