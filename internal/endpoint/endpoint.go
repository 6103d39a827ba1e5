package endpoint

import (
	"context"
	"net/url"
	"strings"

	"github.com/koustreak/autorest/internal/compiler"
	"github.com/koustreak/autorest/internal/database"
	"github.com/koustreak/autorest/internal/errs"
	"github.com/koustreak/autorest/internal/filter"
)

// Endpoint is a configured, queryable table.
type Endpoint struct {
	Ref        Ref
	Table      *compiler.TableSpec
	Capability *Capability

	db  database.DB
	est Estimator
}

// Order is one ordering term by generated field name.
type Order struct {
	Field string
	Desc  bool
}

// Query is a parsed list request.
type Query struct {
	Where  []database.Expr
	Order  []Order
	Limit  int
	Offset int
}

// Page is one list response.
type Page struct {
	Count   int64
	Results []map[string]any
}

// Resolve implements filter.Resolver against the capability.
func (e *Endpoint) Resolve(field string, op database.Op) (string, error) {
	if !e.Capability.Allows(field, op) {
		if _, ok := e.Capability.Ops[field]; !ok {
			return "", errs.Newf(errs.ErrKindInvalidInput, "%s cannot be filtered on %q", e.Ref.Route(), field)
		}
		return "", errs.Newf(errs.ErrKindInvalidInput, "%s does not support %s on %q", e.Ref.Route(), op, field)
	}
	col, _ := e.Table.Field(field)
	return col.PhysicalName(), nil
}

// Where builds the filter conditions of a list request. When the filters
// parameter is present it replaces the plain field__op parameters for this
// request; search applies in both modes.
func (e *Endpoint) Where(values url.Values) ([]database.Expr, error) {
	var out []database.Expr

	if values.Has("filters") {
		expr, err := filter.ParseComplex(values.Get("filters"), e)
		if err != nil {
			return nil, err
		}
		out = append(out, expr)
	} else {
		exprs, err := filter.ParsePlain(values, e)
		if err != nil {
			return nil, err
		}
		out = append(out, exprs...)
	}

	return append(out, e.Search(values.Get("search"))...), nil
}

// Search matches every term of q against the search fields: a row matches
// when each term prefixes, case-insensitively, at least one search field.
// It returns one condition per term, or nil when there is nothing to search.
func (e *Endpoint) Search(q string) []database.Expr {
	fields := e.Capability.Searchable()
	terms := strings.FieldsFunc(q, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' })
	if len(fields) == 0 || len(terms) == 0 {
		return nil
	}

	all := make([]database.Expr, 0, len(terms))
	for _, term := range terms {
		anyOf := make([]database.Expr, 0, len(fields))
		for _, f := range fields {
			col, _ := e.Table.Field(f)
			anyOf = append(anyOf, database.Cond{Column: col.PhysicalName(), Op: database.OpIStartsWith, Value: term})
		}
		all = append(all, database.Or(anyOf...))
	}
	return all
}

// Ordering parses a comma-separated ordering parameter such as "-date,id".
// Every generated field may be used. The primary key is appended as a
// tiebreaker so offsets are stable.
func (e *Endpoint) Ordering(param string) ([]Order, error) {
	var out []Order
	seen := make(map[string]bool)
	for _, term := range strings.Split(param, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		o := Order{Field: term}
		if strings.HasPrefix(term, "-") {
			o = Order{Field: term[1:], Desc: true}
		}
		if _, ok := e.Table.Field(o.Field); !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "%s cannot be ordered by %q", e.Ref.Route(), o.Field)
		}
		if seen[o.Field] {
			continue
		}
		seen[o.Field] = true
		out = append(out, o)
	}

	if pk, ok := e.Table.PrimaryKey(); ok && !seen[pk.Field] {
		out = append(out, Order{Field: pk.Field})
	}
	return out, nil
}

func (e *Endpoint) selectBuilder() *database.SelectBuilder {
	cols := make([]database.Column, len(e.Table.Columns))
	for i, c := range e.Table.Columns {
		cols[i] = database.Col(c.PhysicalName(), c.Field)
	}
	return database.Select(e.Table.Schema, e.Table.Table).Columns(cols...)
}

// Count returns the total for a list request. Under exact-count it runs
// COUNT(*) over the filtered query. Under estimated-count it asks the
// planner again for the table-level estimate, ignoring the filters.
func (e *Endpoint) Count(ctx context.Context, where []database.Expr) (int64, error) {
	if e.Capability.Strategy == EstimatedCount {
		return e.est.Estimate(ctx, RepresentativeQuery(e.Table.Schema, e.Table.Table))
	}

	sql, args, err := e.selectBuilder().Where(where...).BuildCount()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := e.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// List runs a list request.
func (e *Endpoint) List(ctx context.Context, q Query) (*Page, error) {
	count, err := e.Count(ctx, q.Where)
	if err != nil {
		return nil, err
	}

	page := &Page{Count: count, Results: []map[string]any{}}
	if e.Capability.Strategy == EstimatedCount && (count == 0 || int64(q.Offset) > count) {
		return page, nil
	}

	b := e.selectBuilder().Where(q.Where...)
	for _, o := range q.Order {
		col, ok := e.Table.Field(o.Field)
		if !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "%s cannot be ordered by %q", e.Ref.Route(), o.Field)
		}
		dir := database.Asc
		if o.Desc {
			dir = database.Desc
		}
		b.OrderBy(col.PhysicalName(), dir)
	}
	if q.Limit > 0 {
		b.Limit(q.Limit)
	}
	if q.Offset > 0 {
		b.Offset(q.Offset)
	}

	sql, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	results, err := database.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	page.Results = results
	return page, nil
}

// Get returns the row whose primary key equals pk.
func (e *Endpoint) Get(ctx context.Context, pk string) (map[string]any, error) {
	key, ok := e.Table.PrimaryKey()
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "%s has no primary key", e.Ref.Route())
	}

	sql, args, err := e.selectBuilder().
		Where(database.Cond{Column: key.PhysicalName(), Op: database.OpExact, Value: pk}).
		Limit(1).
		Build()
	if err != nil {
		return nil, err
	}
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	results, err := database.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "%s has no row with %s=%s", e.Ref.Route(), key.Field, pk)
	}
	return results[0], nil
}
