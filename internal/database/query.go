package database

import (
	"fmt"
	"strings"

	"github.com/koustreak/autorest/internal/errs"
)

// Op is a filter comparison operator as exposed by the read API.
type Op string

const (
	OpExact      Op = "exact"
	OpIn         Op = "in"
	OpContains   Op = "contains"
	OpStartsWith Op = "startswith"
	OpEndsWith   Op = "endswith"
	OpLT         Op = "lt"
	OpLTE        Op = "lte"
	OpGT         Op = "gt"
	OpGTE        Op = "gte"
	OpRange      Op = "range"

	// OpIStartsWith is only produced by search, never by field filters.
	OpIStartsWith Op = "istartswith"
)

// comparisons maps the scalar operators to their SQL spelling.
// Operators outside this map and the special cases in Cond.build are
// rejected, since the operator position cannot be parameterized.
var comparisons = map[Op]string{
	OpExact: "=",
	OpLT:    "<",
	OpLTE:   "<=",
	OpGT:    ">",
	OpGTE:   ">=",
}

// ParseOp validates an operator name.
func ParseOp(s string) (Op, bool) {
	op := Op(strings.ToLower(s))
	switch op {
	case OpExact, OpIn, OpContains, OpStartsWith, OpEndsWith,
		OpLT, OpLTE, OpGT, OpGTE, OpRange:
		return op, true
	}
	return "", false
}

// Expr is a WHERE clause fragment.
type Expr interface {
	build(a *argList) (string, error)
}

// Cond compares one column against a value. For OpIn Value must be a
// []any; for OpRange a [2]any.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

func (c Cond) build(a *argList) (string, error) {
	col := quoteIdent(c.Column)

	if sqlOp, ok := comparisons[c.Op]; ok {
		return fmt.Sprintf("%s %s %s", col, sqlOp, a.add(c.Value)), nil
	}

	switch c.Op {
	case OpIn:
		vals, ok := c.Value.([]any)
		if !ok || len(vals) == 0 {
			return "", errs.Newf(errs.ErrKindInvalidInput, "in filter on %q needs at least one value", c.Column)
		}
		ph := make([]string, len(vals))
		for i, v := range vals {
			ph[i] = a.add(v)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ", ")), nil

	case OpRange:
		bounds, ok := c.Value.([2]any)
		if !ok {
			return "", errs.Newf(errs.ErrKindInvalidInput, "range filter on %q needs two values", c.Column)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, a.add(bounds[0]), a.add(bounds[1])), nil

	case OpContains, OpStartsWith, OpEndsWith, OpIStartsWith:
		s, ok := c.Value.(string)
		if !ok {
			return "", errs.Newf(errs.ErrKindInvalidInput, "%s filter on %q needs a text value", c.Op, c.Column)
		}
		pattern := escapeLike(s)
		like := "LIKE"
		switch c.Op {
		case OpContains:
			pattern = "%" + pattern + "%"
		case OpStartsWith:
			pattern += "%"
		case OpEndsWith:
			pattern = "%" + pattern
		case OpIStartsWith:
			pattern += "%"
			like = "ILIKE"
		}
		return fmt.Sprintf("%s %s %s", col, like, a.add(pattern)), nil
	}

	return "", errs.Newf(errs.ErrKindInvalidInput, "unsupported filter operator: %q", c.Op)
}

// Group joins expressions with AND or OR, optionally negated.
type Group struct {
	Or    bool
	Not   bool
	Exprs []Expr
}

// And joins exprs with AND.
func And(exprs ...Expr) Expr { return Group{Exprs: exprs} }

// Or joins exprs with OR.
func Or(exprs ...Expr) Expr { return Group{Or: true, Exprs: exprs} }

// Not negates e.
func Not(e Expr) Expr { return Group{Not: true, Exprs: []Expr{e}} }

func (g Group) build(a *argList) (string, error) {
	parts := make([]string, 0, len(g.Exprs))
	for _, e := range g.Exprs {
		if e == nil {
			continue
		}
		s, err := e.build(a)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}

	joiner := " AND "
	if g.Or {
		joiner = " OR "
	}
	out := strings.Join(parts, joiner)
	if len(parts) > 1 || g.Not {
		out = "(" + out + ")"
	}
	if g.Not {
		out = "NOT " + out
	}
	return out, nil
}

// SelectBuilder constructs a parameterized SELECT against one table.
// Values are never interpolated into the SQL string; they are always passed as args.
//
// Usage:
//
//	sql, args, err := Select("sales", "orders").
//	    Columns(Col("class", "class_var"), Col("id", "")).
//	    Where(Cond{Column: "id", Op: OpGT, Value: 10}).
//	    OrderBy("id", Desc).
//	    Limit(20).
//	    Build()
type SelectBuilder struct {
	schema  string
	table   string
	columns []Column
	where   []Expr
	orderBy []orderClause
	limit   *int
	offset  *int
}

// Column is a selected column with an optional output alias.
type Column struct {
	Name  string
	Alias string
}

// Col is shorthand for Column{name, alias}.
func Col(name, alias string) Column {
	return Column{Name: name, Alias: alias}
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type orderClause struct {
	column string
	dir    SortDirection
}

// Select starts a new SelectBuilder for schema.table.
func Select(schema, table string) *SelectBuilder {
	return &SelectBuilder{schema: schema, table: table}
}

// Columns restricts the SELECT to the given columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...Column) *SelectBuilder {
	b.columns = cols
	return b
}

// Where adds conditions. Multiple calls are combined with AND.
func (b *SelectBuilder) Where(exprs ...Expr) *SelectBuilder {
	b.where = append(b.where, exprs...)
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the final SQL string and argument slice.
func (b *SelectBuilder) Build() (string, []any, error) {
	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = quoteIdent(c.Name)
			if c.Alias != "" && c.Alias != c.Name {
				quoted[i] += " AS " + quoteIdent(c.Alias)
			}
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(QualifiedTable(b.schema, b.table))

	a := &argList{}
	if err := b.writeWhere(&sb, a); err != nil {
		return "", nil, err
	}

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = quoteIdent(o.column) + " " + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if b.limit != nil {
		sb.WriteString(" LIMIT " + a.add(*b.limit))
	}
	if b.offset != nil {
		sb.WriteString(" OFFSET " + a.add(*b.offset))
	}

	return sb.String(), a.args, nil
}

// BuildCount produces SELECT COUNT(*) over the same FROM and WHERE,
// ignoring columns, ordering and pagination.
func (b *SelectBuilder) BuildCount() (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(QualifiedTable(b.schema, b.table))

	a := &argList{}
	if err := b.writeWhere(&sb, a); err != nil {
		return "", nil, err
	}
	return sb.String(), a.args, nil
}

func (b *SelectBuilder) writeWhere(sb *strings.Builder, a *argList) error {
	if len(b.where) == 0 {
		return nil
	}
	parts := make([]string, 0, len(b.where))
	for _, e := range b.where {
		if e == nil {
			continue
		}
		s, err := e.build(a)
		if err != nil {
			return err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}
	return nil
}

// QualifiedTable renders "schema"."table".
func QualifiedTable(schema, table string) string {
	if schema == "" {
		return quoteIdent(table)
	}
	return quoteIdent(schema) + "." + quoteIdent(table)
}

// argList accumulates positional arguments and hands out $n placeholders.
type argList struct {
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return fmt.Sprintf("$%d", len(a.args))
}

// quoteIdent wraps a SQL identifier in double-quotes (ANSI standard).
// This safely handles reserved words and mixed-case names.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// escapeLike escapes LIKE metacharacters using PostgreSQL's default
// backslash escape.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
