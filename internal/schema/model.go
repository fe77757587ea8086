package schema

import "fmt"

// Table is a table as found in a live database.
type Table struct {
	Name         string
	Columns      []*Column
	ForeignKeys  []*ForeignKey
	Dependencies []string
}

type Column struct {
	Name       string
	DataType   string // declared type as written in CREATE TABLE
	Affinity   string // normalized by the dialect
	IsNullable bool
	IsPK       bool
	PKIndex    int // 1-based position inside the primary key, 0 if not part of it
	Default    *string
}

type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// PrimaryKey returns the primary key column names in key order.
func (t *Table) PrimaryKey() []string {
	var pk []string
	for i := 1; ; i++ {
		found := false
		for _, c := range t.Columns {
			if c.PKIndex == i {
				pk = append(pk, c.Name)
				found = true
				break
			}
		}
		if !found {
			return pk
		}
	}
}

// ColumnNames returns column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// TableSchema is the declared (expected) shape of one table.
type TableSchema struct {
	Name    string
	Columns []ColumnDef
}

type ColumnDef struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
}

// Column returns the named column definition.
func (s TableSchema) Column(name string) (ColumnDef, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

func (s TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// MappingKind tells how a target column gets its value.
type MappingKind int

const (
	MapCopy MappingKind = iota
	MapLiteral
	MapTransform
)

func (k MappingKind) String() string {
	switch k {
	case MapCopy:
		return "copy"
	case MapLiteral:
		return "literal"
	case MapTransform:
		return "transform"
	}
	return "unknown"
}

// MappingEntry resolves one target column.
type MappingEntry struct {
	Target    string
	Kind      MappingKind
	Source    string         // MapCopy
	Literal   any            // MapLiteral
	Transform string         // MapTransform
	Columns   []string       // MapTransform inputs
	Params    map[string]any // MapTransform literal config
	Implicit  bool           // produced by auto-match rather than written out
}

// SourceColumns lists the source columns the entry reads.
func (e MappingEntry) SourceColumns() []string {
	switch e.Kind {
	case MapCopy:
		return []string{e.Source}
	case MapTransform:
		return e.Columns
	}
	return nil
}

// ColumnMapping belongs to exactly one target table. Entries follow the
// target schema's column order.
type ColumnMapping struct {
	Table   string
	Entries []MappingEntry
}

// Entry returns the entry for a target column.
func (m ColumnMapping) Entry(target string) (MappingEntry, bool) {
	for _, e := range m.Entries {
		if e.Target == target {
			return e, true
		}
	}
	return MappingEntry{}, false
}

// Targets lists mapped target columns in order.
func (m ColumnMapping) Targets() []string {
	names := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		names[i] = e.Target
	}
	return names
}

// Row maps column names to stored (or decoded) values. Column order comes
// from the owning schema, never from the map.
type Row map[string]any

// TablePlan is everything the descriptor says about one migrated table.
type TablePlan struct {
	Name           string // target table
	SourceName     string
	Optional       bool
	Key            []string
	InstanceColumn string
	Attachments    []string
	Limit          int
	Source         TableSchema
	Target         TableSchema
	Mapping        ColumnMapping
}

// Descriptor is the validated migration document. Tables keep declaration order.
type Descriptor struct {
	Tables []*TablePlan
}

// Table returns the plan for a target table name.
func (d *Descriptor) Table(name string) *TablePlan {
	for _, t := range d.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Select returns the named plans in declaration order, or every plan when
// names is empty. Unknown names are a ConfigError.
func (d *Descriptor) Select(names []string) ([]*TablePlan, error) {
	if len(names) == 0 {
		return d.Tables, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if d.Table(name) == nil {
			return nil, &ConfigError{Table: name, Err: fmt.Errorf("%w: not declared in the descriptor", ErrTableMissing)}
		}
		wanted[name] = true
	}

	var plans []*TablePlan
	for _, p := range d.Tables {
		if wanted[p.Name] {
			plans = append(plans, p)
		}
	}
	return plans, nil
}

// Schemas returns the declared source and target schemas keyed by target table.
func (d *Descriptor) Schemas() (source, target map[string]TableSchema) {
	source = make(map[string]TableSchema, len(d.Tables))
	target = make(map[string]TableSchema, len(d.Tables))
	for _, t := range d.Tables {
		source[t.Name] = t.Source
		target[t.Name] = t.Target
	}
	return source, target
}

// Mappings returns the column mappings keyed by target table.
func (d *Descriptor) Mappings() map[string]ColumnMapping {
	out := make(map[string]ColumnMapping, len(d.Tables))
	for _, t := range d.Tables {
		out[t.Name] = t.Mapping
	}
	return out
}
