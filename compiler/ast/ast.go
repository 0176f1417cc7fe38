// Package ast holds the parsed SpecQL entity/action object graph consumed by
// the compiler. The YAML front-end produces these values; nothing in this
// package reads YAML text.
package ast

import "strings"

// Operation is a declared mutation kind on an entity.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Valid reports whether op is one of the three declared operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Entity is one parsed entity definition.
type Entity struct {
	Name    string
	Schema  string
	Fields  []Field
	Actions []Action
}

// Field is a single entity field. Type is a SpecQL scalar name (text,
// integer, boolean, timestamp, date, jsonb, uuid) or "ref" with Ref set to
// the target entity.
type Field struct {
	Name string
	Type string
	Ref  string
}

// FieldByName returns the field definition and whether it exists.
func (e *Entity) FieldByName(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// LowerName is the entity name in the form used for table, view and
// variable identifiers.
func (e *Entity) LowerName() string { return strings.ToLower(e.Name) }

// TableName is the backing table for the entity.
func (e *Entity) TableName() string { return "tb_" + e.LowerName() }

// ViewName is the denormalized read view for the entity. The view is
// generated by a sibling subsystem; the compiler only names it.
func (e *Entity) ViewName() string { return "tv_" + e.LowerName() }

// Action is one named business operation on an entity.
type Action struct {
	Name    string
	Steps   []Step
	Impact  *Impact
	Cascade *CascadeConfig
	CDC     *CDCConfig
}

// Impact declares what an action affects: exactly one primary entity, zero
// or more side effects, and cache invalidation hints.
type Impact struct {
	Primary            EntityImpact
	SideEffects        []EntityImpact
	CacheInvalidations []CacheInvalidation
}

// EntityImpact is one entity's declared involvement in an action.
type EntityImpact struct {
	Entity     string
	Operation  Operation
	Fields     []string
	Collection string
}

// CacheInvalidation names a client query to invalidate after the mutation.
type CacheInvalidation struct {
	Query    string
	Strategy string
	Reason   string
}

// CascadeConfig is the resolved cascade behavior for one action.
// IncludeEntities is a whitelist and dominates ExcludeEntities.
type CascadeConfig struct {
	Enabled         bool
	IncludeEntities []string
	ExcludeEntities []string
	IncludeFullData bool
	IncludeDeleted  bool
	MaxEntities     int
}

// Allows reports whether cascade data for entity should be emitted under
// this config. A whitelist, when present, is authoritative.
func (c *CascadeConfig) Allows(entity string) bool {
	if c == nil || !c.Enabled {
		return false
	}
	if len(c.IncludeEntities) > 0 {
		return contains(c.IncludeEntities, entity)
	}
	return !contains(c.ExcludeEntities, entity)
}

// CDCConfig is the resolved outbox-event behavior for one action.
type CDCConfig struct {
	Enabled        bool
	EventType      string
	IncludeCascade bool
	IncludePayload bool
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
