package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AttachmentSuffix marks attachment-bearing columns when a table does not
// list them explicitly.
const AttachmentSuffix = "_uriFragment"

// DefaultInstanceColumn holds the per-row instance id.
const DefaultInstanceColumn = "_id"

// TransformChecker validates a transform reference at load time.
type TransformChecker interface {
	Check(name string, columns []string, params map[string]any) error
}

type descriptorFile struct {
	Tables []tableDoc `yaml:"tables"`
}

type tableDoc struct {
	Name           string       `yaml:"name"`
	Source         string       `yaml:"source"`
	Optional       bool         `yaml:"optional"`
	Key            []string     `yaml:"key"`
	InstanceColumn string       `yaml:"instance_column"`
	Attachments    []string     `yaml:"attachments"`
	AutoMatch      *bool        `yaml:"auto_match"`
	Limit          int          `yaml:"limit"`
	SourceColumns  []columnDoc  `yaml:"source_columns"`
	TargetColumns  []columnDoc  `yaml:"target_columns"`
	Mappings       []mappingDoc `yaml:"mappings"`
}

type columnDoc struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	NotNull    bool   `yaml:"not_null"`
	PrimaryKey bool   `yaml:"primary_key"`
}

type mappingDoc struct {
	Target    string         `yaml:"target"`
	From      string         `yaml:"from"`
	Value     yaml.Node      `yaml:"value"`
	Transform string         `yaml:"transform"`
	Columns   []string       `yaml:"columns"`
	Params    map[string]any `yaml:"params"`
}

// LoadFile reads a descriptor from disk.
func LoadFile(path string, transforms TransformChecker) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("reading descriptor: %w", err)}
	}
	return Load(bytes.NewReader(data), transforms)
}

// Load parses and validates a descriptor. It never touches a database; the
// schemas it returns are what the operator expects to find.
func Load(r io.Reader, transforms TransformChecker) (*Descriptor, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var df descriptorFile
	if err := decoder.Decode(&df); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, configErrorf("", "", "descriptor is empty")
		}
		return nil, &ConfigError{Err: fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)}
	}
	if len(df.Tables) == 0 {
		return nil, configErrorf("", "", "no tables declared")
	}

	desc := &Descriptor{}
	seen := make(map[string]bool)
	var errs []error

	for _, td := range df.Tables {
		if td.Name == "" {
			errs = append(errs, configErrorf("", "", "table without a name"))
			continue
		}
		if seen[td.Name] {
			errs = append(errs, configErrorf(td.Name, "", "table declared twice"))
			continue
		}
		seen[td.Name] = true

		plan, tableErrs := buildPlan(td, transforms)
		if len(tableErrs) > 0 {
			errs = append(errs, tableErrs...)
			continue
		}
		desc.Tables = append(desc.Tables, plan)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return desc, nil
}

func buildPlan(td tableDoc, transforms TransformChecker) (*TablePlan, []error) {
	var errs []error

	plan := &TablePlan{
		Name:           td.Name,
		SourceName:     td.Source,
		Optional:       td.Optional,
		Key:            td.Key,
		InstanceColumn: td.InstanceColumn,
		Limit:          td.Limit,
	}
	if plan.SourceName == "" {
		plan.SourceName = td.Name
	}
	if plan.InstanceColumn == "" {
		plan.InstanceColumn = DefaultInstanceColumn
	}
	if td.Limit < 0 {
		errs = append(errs, configErrorf(td.Name, "", "limit must not be negative"))
	}

	var err error
	if plan.Source, err = buildSchema(plan.SourceName, td.SourceColumns); err != nil {
		errs = append(errs, err)
	}
	if plan.Target, err = buildSchema(td.Name, td.TargetColumns); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	for _, k := range plan.Key {
		if _, ok := plan.Source.Column(k); !ok {
			errs = append(errs, configErrorf(td.Name, k, "key column is not a declared source column"))
		}
	}

	if td.Attachments != nil {
		plan.Attachments = td.Attachments
		for _, a := range plan.Attachments {
			if _, ok := plan.Target.Column(a); !ok {
				errs = append(errs, configErrorf(td.Name, a, "attachment column is not a declared target column"))
			}
		}
	} else {
		for _, c := range plan.Target.Columns {
			if strings.HasSuffix(c.Name, AttachmentSuffix) {
				plan.Attachments = append(plan.Attachments, c.Name)
			}
		}
	}

	explicit := make(map[string]MappingEntry)
	for _, md := range td.Mappings {
		entry, err := buildEntry(td.Name, md, plan.Source, plan.Target, transforms)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := explicit[entry.Target]; dup {
			errs = append(errs, configErrorf(td.Name, entry.Target, "target column mapped more than once"))
			continue
		}
		explicit[entry.Target] = entry
	}

	autoMatch := td.AutoMatch == nil || *td.AutoMatch
	plan.Mapping.Table = td.Name
	for _, col := range plan.Target.Columns {
		entry, ok := explicit[col.Name]
		if !ok && autoMatch {
			if _, inSource := plan.Source.Column(col.Name); inSource {
				entry = MappingEntry{Target: col.Name, Kind: MapCopy, Source: col.Name, Implicit: true}
				ok = true
			}
		}
		if !ok {
			if col.NotNull {
				errs = append(errs, configErrorf(td.Name, col.Name, "NOT NULL target column has no mapping"))
			}
			continue
		}
		plan.Mapping.Entries = append(plan.Mapping.Entries, entry)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return plan, nil
}

func buildSchema(table string, cols []columnDoc) (TableSchema, error) {
	if len(cols) == 0 {
		return TableSchema{}, configErrorf(table, "", "no columns declared")
	}
	s := TableSchema{Name: table}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if c.Name == "" {
			return TableSchema{}, configErrorf(table, "", "column without a name")
		}
		if seen[c.Name] {
			return TableSchema{}, configErrorf(table, c.Name, "column declared twice")
		}
		seen[c.Name] = true
		s.Columns = append(s.Columns, ColumnDef{
			Name:       c.Name,
			Type:       c.Type,
			NotNull:    c.NotNull,
			PrimaryKey: c.PrimaryKey,
		})
	}
	return s, nil
}

func buildEntry(table string, md mappingDoc, source, target TableSchema, transforms TransformChecker) (MappingEntry, error) {
	if md.Target == "" {
		return MappingEntry{}, configErrorf(table, "", "mapping without a target column")
	}
	if _, ok := target.Column(md.Target); !ok {
		return MappingEntry{}, configErrorf(table, md.Target, "mapping references a column missing from the target schema")
	}

	hasValue := md.Value.Kind != 0
	set := 0
	for _, present := range []bool{md.From != "", hasValue, md.Transform != ""} {
		if present {
			set++
		}
	}
	if set != 1 {
		return MappingEntry{}, configErrorf(table, md.Target, "mapping needs exactly one of from, value, transform")
	}

	entry := MappingEntry{Target: md.Target}
	switch {
	case md.From != "":
		if _, ok := source.Column(md.From); !ok {
			return MappingEntry{}, configErrorf(table, md.Target, "source column %q is not declared", md.From)
		}
		entry.Kind = MapCopy
		entry.Source = md.From

	case hasValue:
		var v any
		if err := md.Value.Decode(&v); err != nil {
			return MappingEntry{}, configErrorf(table, md.Target, "literal value: %v", err)
		}
		entry.Kind = MapLiteral
		entry.Literal = v

	default:
		for _, c := range md.Columns {
			if _, ok := source.Column(c); !ok {
				return MappingEntry{}, configErrorf(table, md.Target, "transform input %q is not a declared source column", c)
			}
		}
		if transforms == nil {
			return MappingEntry{}, configErrorf(table, md.Target, "transform %q used without a registry", md.Transform)
		}
		if err := transforms.Check(md.Transform, md.Columns, md.Params); err != nil {
			return MappingEntry{}, &ConfigError{Table: table, Column: md.Target, Err: err}
		}
		entry.Kind = MapTransform
		entry.Transform = md.Transform
		entry.Columns = md.Columns
		entry.Params = md.Params
	}
	return entry, nil
}
