package compiler

import (
	"context"

	"github.com/koustreak/autorest/internal/typemap"
)

// ColumnSpec is one generated field.
type ColumnSpec struct {
	Name     string // catalog column name
	Field    string // generated field name
	Renamed  bool
	Column   string // underlying column, set iff Renamed
	Type     typemap.FieldDescriptor
	Position int
}

// PhysicalName returns the column name to use in SQL.
func (c ColumnSpec) PhysicalName() string {
	if c.Renamed {
		return c.Column
	}
	return c.Name
}

// TableSpec is the ordered field list of one table.
type TableSpec struct {
	Schema  string
	Table   string
	Columns []ColumnSpec
}

// Route returns "schema.table".
func (t *TableSpec) Route() string {
	return Route(t.Schema, t.Table)
}

// PrimaryKey returns the primary-key column, if the table has any mapped column.
func (t *TableSpec) PrimaryKey() (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Type.PrimaryKey {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// Field looks up a column by generated field name.
func (t *TableSpec) Field(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Field == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// Route formats a route key.
func Route(schema, table string) string {
	return schema + "." + table
}

// Unit is the generation unit of one schema: every table of the schema in
// first-seen order, plus their routes.
type Unit struct {
	Schema     string
	Tables     map[string]*TableSpec
	TableOrder []string
	Routes     []string
}

func newUnit(schema string) *Unit {
	return &Unit{Schema: schema, Tables: make(map[string]*TableSpec)}
}

// Ordered returns the unit's tables in first-seen order.
func (u *Unit) Ordered() []*TableSpec {
	out := make([]*TableSpec, 0, len(u.TableOrder))
	for _, name := range u.TableOrder {
		out = append(out, u.Tables[name])
	}
	return out
}

// Warning records a column skipped during compilation. A warning with an
// empty Column records a whole table skipped because none of its columns
// had a known data type.
type Warning struct {
	Schema   string
	Table    string
	Column   string
	DataType string
	Err      error
}

// Result summarizes one compilation run.
type Result struct {
	Routes   []string
	Units    int
	Tables   int
	Warnings []Warning
}

// Emitter receives compiled units. Emit is called once per schema, as soon
// as the schema is complete; EmitRoutes once at the end with every route.
type Emitter interface {
	Emit(ctx context.Context, u *Unit) error
	EmitRoutes(ctx context.Context, routes []string) error
}
