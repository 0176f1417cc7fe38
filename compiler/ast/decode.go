package ast

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Bundle is a serialized AST document: the shape the YAML front-end hands
// over. Decoding here is plain struct mapping, not SpecQL DSL parsing.
type Bundle struct {
	Entities []Entity `yaml:"entities"`
}

// LoadBundle reads a serialized AST bundle from disk.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return DecodeBundle(data)
}

// DecodeBundle decodes a serialized AST bundle.
func DecodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}

// Registry indexes bundle entities by name.
func (b *Bundle) Registry() map[string]*Entity {
	reg := make(map[string]*Entity, len(b.Entities))
	for i := range b.Entities {
		reg[b.Entities[i].Name] = &b.Entities[i]
	}
	return reg
}

type rawStep struct {
	Kind   string       `yaml:"kind"`
	Entity string       `yaml:"entity"`
	Fields []FieldValue `yaml:"fields"`
	Where  string       `yaml:"where"`
	Expr   string       `yaml:"expr"`
	Error  string       `yaml:"error"`
	Code   string       `yaml:"code"`

	Function   string   `yaml:"function"`
	Args       []string `yaml:"args"`
	Into       string   `yaml:"into"`
	IntoEntity string   `yaml:"into_entity"`
}

type rawAction struct {
	Name    string         `yaml:"name"`
	Steps   []rawStep      `yaml:"steps"`
	Impact  *Impact        `yaml:"impact"`
	Cascade *CascadeConfig `yaml:"cascade"`
	CDC     *CDCConfig     `yaml:"cdc"`
}

// UnmarshalYAML maps the kind discriminator onto the step sum type.
func (a *Action) UnmarshalYAML(value *yaml.Node) error {
	var raw rawAction
	if err := value.Decode(&raw); err != nil {
		return err
	}
	a.Name = raw.Name
	a.Impact = raw.Impact
	a.Cascade = raw.Cascade
	a.CDC = raw.CDC
	a.Steps = a.Steps[:0]
	for i, rs := range raw.Steps {
		st, err := rs.step()
		if err != nil {
			return fmt.Errorf("action %s step %d: %w", raw.Name, i, err)
		}
		a.Steps = append(a.Steps, st)
	}
	return nil
}

func (rs rawStep) step() (Step, error) {
	switch rs.Kind {
	case "insert":
		return InsertStep{Entity: rs.Entity, Fields: rs.Fields}, nil
	case "update":
		return UpdateStep{Entity: rs.Entity, Fields: rs.Fields, Where: rs.Where}, nil
	case "delete":
		return DeleteStep{Entity: rs.Entity, Where: rs.Where}, nil
	case "validate":
		return ValidateStep{Expr: rs.Expr, Error: rs.Error, Code: rs.Code}, nil
	case "call":
		return CallStep{Function: rs.Function, Args: rs.Args, Into: rs.Into, IntoEntity: rs.IntoEntity}, nil
	case "":
		return nil, fmt.Errorf("missing step kind")
	default:
		return nil, fmt.Errorf("unknown step kind %q", rs.Kind)
	}
}

// Field/impact structs decode with default mapping; only the yaml tags for
// multiword keys need spelling out.
func (f *FieldValue) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		Name  string `yaml:"name"`
		Value string `yaml:"value"`
	}
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	f.Name = p.Name
	f.Value = p.Value
	return nil
}

func (i *Impact) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		Primary            EntityImpact        `yaml:"primary"`
		SideEffects        []EntityImpact      `yaml:"side_effects"`
		CacheInvalidations []CacheInvalidation `yaml:"cache_invalidations"`
	}
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	i.Primary = p.Primary
	i.SideEffects = p.SideEffects
	i.CacheInvalidations = p.CacheInvalidations
	return nil
}

func (e *EntityImpact) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		Entity     string    `yaml:"entity"`
		Operation  Operation `yaml:"operation"`
		Fields     []string  `yaml:"fields"`
		Collection string    `yaml:"collection"`
	}
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*e = EntityImpact{Entity: p.Entity, Operation: p.Operation, Fields: p.Fields, Collection: p.Collection}
	return nil
}

func (c *CascadeConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		Enabled         bool     `yaml:"enabled"`
		IncludeEntities []string `yaml:"include_entities"`
		ExcludeEntities []string `yaml:"exclude_entities"`
		IncludeFullData *bool    `yaml:"include_full_data"`
		IncludeDeleted  *bool    `yaml:"include_deleted"`
		MaxEntities     int      `yaml:"max_entities"`
	}
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = CascadeConfig{
		Enabled:         p.Enabled,
		IncludeEntities: p.IncludeEntities,
		ExcludeEntities: p.ExcludeEntities,
		IncludeFullData: p.IncludeFullData == nil || *p.IncludeFullData,
		IncludeDeleted:  p.IncludeDeleted == nil || *p.IncludeDeleted,
		MaxEntities:     p.MaxEntities,
	}
	return nil
}

func (c *CDCConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		Enabled        bool   `yaml:"enabled"`
		EventType      string `yaml:"event_type"`
		IncludeCascade bool   `yaml:"include_cascade"`
		IncludePayload bool   `yaml:"include_payload"`
	}
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = CDCConfig(p)
	return nil
}
