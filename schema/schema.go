// Package schema exposes the BigQuery introspection capabilities the
// generator consumes: typed schema trees, table metadata and distinct
// column values.
package schema

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
)

// TableRef identifies a fully qualified BigQuery table or view.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// ParseTableRef parses a "project.dataset.table" reference.
func ParseTableRef(s string) (TableRef, error) {
	parts := strings.Split(strings.Trim(s, "`"), ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return TableRef{}, fmt.Errorf("invalid table reference %q", s)
	}
	return TableRef{Project: parts[0], Dataset: parts[1], Table: parts[2]}, nil
}

// String returns the project.dataset.table form.
func (r TableRef) String() string {
	return r.Project + "." + r.Dataset + "." + r.Table
}

// Field is one node of a table schema tree. Record fields carry nested
// Fields; Repeated is true for ARRAY-mode fields of any type.
type Field struct {
	Name        string
	Type        string
	Repeated    bool
	Description string
	Fields      []Field
}

// TableInfo is the subset of table metadata the generator needs.
type TableInfo struct {
	// Type is "TABLE" or "VIEW".
	Type         string
	FriendlyName string
}

// Inspector fetches schema metadata for tables. Implementations must be
// safe for concurrent use; the pipeline fans out across namespaces.
type Inspector interface {
	// TableSchema returns the typed field tree for ref.
	TableSchema(ctx context.Context, ref TableRef) ([]Field, error)
	// TableMetadata returns type and naming metadata for ref.
	TableMetadata(ctx context.Context, ref TableRef) (*TableInfo, error)
	// DistinctValues returns up to limit distinct non-null values of
	// column in ref, most frequent first.
	DistinctValues(ctx context.Context, ref TableRef, column string, limit int) ([]bigquery.Value, error)
}

// FromBigQuery converts a BigQuery schema into a Field tree.
func FromBigQuery(s bigquery.Schema) []Field {
	fields := make([]Field, 0, len(s))
	for _, fs := range s {
		fields = append(fields, Field{
			Name:        fs.Name,
			Type:        string(fs.Type),
			Repeated:    fs.Repeated,
			Description: fs.Description,
			Fields:      FromBigQuery(fs.Schema),
		})
	}
	return fields
}
