package catalog

// Sentinel is the schema and table value of the terminal row appended by
// ListColumns. PostgreSQL identifiers cannot contain NUL, so it never
// collides with a real name.
const Sentinel = "\x00end-of-catalog"

// ColumnRow is one physical column as reported by information_schema.
type ColumnRow struct {
	Schema           string
	Table            string
	Column           string
	DataType         string // information_schema data_type: integer, text, numeric, …
	CharMaxLength    *int64 // nil for non-character types
	NumericPrecision *int64 // nil for non-numeric types
	NumericScale     *int64
	OrdinalPosition  int
}

// IsSentinel reports whether r is the terminal row of a ListColumns result.
func (r ColumnRow) IsSentinel() bool {
	return r.Schema == Sentinel
}

// SentinelRow returns the terminal row.
func SentinelRow() ColumnRow {
	return ColumnRow{Schema: Sentinel, Table: Sentinel, Column: Sentinel, DataType: "integer"}
}

// Qualified renders schema.table for messages.
func Qualified(schema, table string) string {
	return schema + "." + table
}
