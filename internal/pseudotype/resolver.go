package pseudotype

import (
	"context"
	"fmt"
	"strings"

	"db-migrate/internal/dialect"
	"db-migrate/internal/logging"
	"db-migrate/internal/schema"
)

// MetadataTable records the logical element type of every data column.
const MetadataTable = "_column_definitions"

// Kind is the logical shape of a column value.
type Kind int

const (
	Scalar Kind = iota
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return "scalar"
}

// KindOf maps a metadata element type to a kind.
func KindOf(elementType string) Kind {
	switch strings.ToLower(strings.TrimSpace(elementType)) {
	case "array":
		return Array
	case "object":
		return Object
	}
	return Scalar
}

// Info describes one column as recorded in the metadata table.
type Info struct {
	Column      string
	ElementType string
	Kind        Kind
	Children    []string
}

// Composite reports whether stored values are string encodings of
// structured values.
func (i Info) Composite() bool {
	return i.Kind != Scalar
}

// Map holds the pseudotypes of one table keyed by column. It is read once
// per run and never written back.
type Map map[string]Info

// Kind returns the column's kind. Columns absent from metadata are scalars.
func (m Map) Kind(column string) Kind {
	if info, ok := m[column]; ok {
		return info.Kind
	}
	return Scalar
}

// Composite reports whether a column holds encoded values.
func (m Map) Composite(column string) bool {
	return m.Kind(column) != Scalar
}

// Resolve reads the pseudotypes of a table. A database without a metadata
// table yields an empty map.
func Resolve(ctx context.Context, q schema.Queryer, d dialect.Dialect, table string) (Map, error) {
	exists, err := metadataExists(ctx, q, d)
	if err != nil {
		return nil, err
	}
	if !exists {
		logging.FromContext(ctx).Warn("no column metadata, treating every column as scalar", "table", table)
		return Map{}, nil
	}

	rows, err := q.QueryContext(ctx, d.GetColumnDefinitionsQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column definitions of %s: %w", table, err)
	}
	defer rows.Close()

	out := Map{}
	for rows.Next() {
		var key, elementType, children string
		if err := rows.Scan(&key, &elementType, &children); err != nil {
			return nil, fmt.Errorf("failed to scan column definition (table: %s): %w", table, err)
		}
		info := Info{Column: key, ElementType: elementType, Kind: KindOf(elementType)}
		if children = strings.TrimSpace(children); children != "" && children != "[]" {
			info.Children = parseChildren(children)
		}
		out[key] = info
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column definitions of %s: %w", table, err)
	}
	return out, nil
}

func metadataExists(ctx context.Context, q schema.Queryer, d dialect.Dialect) (bool, error) {
	rows, err := q.QueryContext(ctx, d.TableExistsQuery(), MetadataTable)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", MetadataTable, err)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, fmt.Errorf("failed to look up %s: %w", MetadataTable, err)
		}
	}
	return n > 0, rows.Err()
}

// parseChildren accepts the JSON list the application writes and falls back
// to a comma separated list.
func parseChildren(raw string) []string {
	if v, err := Decode(raw, Array); err == nil {
		var out []string
		for _, e := range v.([]any) {
			out = append(out, fmt.Sprint(e))
		}
		return out
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
