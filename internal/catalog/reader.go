// Package catalog issues the read-only introspection queries autorest needs:
// the sorted column stream the compiler consumes, the schemata an owner
// may expose, leading index columns and planner output.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/autorest/internal/database"
	"github.com/koustreak/autorest/internal/errs"
)

// Filter narrows ListColumns.
type Filter struct {
	// Owner restricts the scan to schemata owned by this role. Required.
	Owner string

	// Schema, when set, restricts the scan to one schema.
	Schema string

	// Allowed, when non-empty, restricts the scan to these schemata.
	Allowed []string

	// ExcludeTables holds LIKE patterns of tables to leave out.
	ExcludeTables []string
}

// Reader implements the catalog queries on top of database.DB.
// It is safe for concurrent use when the underlying DB is.
type Reader struct {
	db database.DB
}

// NewReader creates a catalog reader.
func NewReader(db database.DB) *Reader {
	return &Reader{db: db}
}

// ListColumns returns every column of the matching schemata ordered by
// (schema, table, ordinal position), followed by exactly one sentinel row.
func (r *Reader) ListColumns(ctx context.Context, f Filter) ([]ColumnRow, error) {
	if f.Owner == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "schema owner is required")
	}

	q, args := columnsQuery(f)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var out []ColumnRow
	for rows.Next() {
		var c ColumnRow
		if err := rows.Scan(
			&c.Schema,
			&c.Table,
			&c.Column,
			&c.DataType,
			&c.CharMaxLength,
			&c.NumericPrecision,
			&c.NumericScale,
			&c.OrdinalPosition,
		); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}

	return append(out, SentinelRow()), nil
}

func columnsQuery(f Filter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT
			s.schema_name::text,
			c.table_name::text,
			c.column_name::text,
			c.data_type::text,
			c.character_maximum_length::bigint,
			c.numeric_precision::bigint,
			c.numeric_scale::bigint,
			c.ordinal_position::int
		FROM information_schema.schemata s
		JOIN information_schema.columns c
			ON c.table_schema = s.schema_name
		WHERE s.schema_owner = $1`)

	args := []any{f.Owner}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Schema != "" {
		sb.WriteString("\n\t\t  AND s.schema_name = " + next(f.Schema))
	}
	if len(f.Allowed) > 0 {
		ph := make([]string, len(f.Allowed))
		for i, s := range f.Allowed {
			ph[i] = next(s)
		}
		sb.WriteString("\n\t\t  AND s.schema_name IN (" + strings.Join(ph, ", ") + ")")
	}
	for _, pattern := range f.ExcludeTables {
		sb.WriteString("\n\t\t  AND c.table_name NOT LIKE " + next(pattern))
	}

	sb.WriteString("\n\t\tORDER BY s.schema_name, c.table_name, c.ordinal_position")
	return sb.String(), args
}

// ListOwnedSchemas returns the schemata owned by owner, sorted by name.
func (r *Reader) ListOwnedSchemas(ctx context.Context, owner string) ([]string, error) {
	const q = `
		SELECT schema_name::text
		FROM information_schema.schemata
		WHERE schema_owner = $1
		ORDER BY schema_name`

	rows, err := r.db.Query(ctx, q, owner)
	if err != nil {
		return nil, fmt.Errorf("list schemata: %w", err)
	}
	return database.ScanStrings(rows)
}

// LeadingIndexColumns returns the physical names of columns that are the
// first key of at least one index on schema.table.
func (r *Reader) LeadingIndexColumns(ctx context.Context, schema, table string) ([]string, error) {
	const q = `
		SELECT DISTINCT a.attname::text AS index_column
		FROM pg_namespace n
		JOIN pg_class c ON n.oid = c.relnamespace
		JOIN pg_index i ON c.oid = i.indrelid
		JOIN pg_attribute a ON a.attnum = i.indkey[0]
			AND a.attrelid = c.oid
		WHERE n.nspname = $1
		  AND c.relname = $2
		ORDER BY index_column`

	rows, err := r.db.Query(ctx, q, schema, table)
	if err != nil {
		return nil, fmt.Errorf("leading index columns %s.%s: %w", schema, table, err)
	}
	return database.ScanStrings(rows)
}

// ExplainPlan returns the planner output for query, one plan line per
// text line.
func (r *Reader) ExplainPlan(ctx context.Context, query string) (string, error) {
	rows, err := r.db.Query(ctx, "EXPLAIN "+query)
	if err != nil {
		return "", fmt.Errorf("explain: %w", err)
	}
	lines, err := database.ScanStrings(rows)
	if err != nil {
		return "", fmt.Errorf("explain: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

// ResolveSchema checks a requested single-schema filter against the
// schemata the owner may expose. An empty request means all schemata.
// A request outside owned fails with errs.ErrKindSchemaNotAllowed; callers
// treat that as a warning and scan without the filter.
func ResolveSchema(requested string, owned []string) (string, error) {
	if requested == "" {
		return "", nil
	}
	for _, s := range owned {
		if s == requested {
			return requested, nil
		}
	}
	return "", errs.Newf(errs.ErrKindSchemaNotAllowed, "schema %q is not owned by the configured role", requested)
}
