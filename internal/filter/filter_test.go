package filter

import (
	"net/url"
	"testing"

	"github.com/koustreak/autorest/internal/database"
	"github.com/koustreak/autorest/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allowAll resolves every field to itself, except "type_var" which maps to
// its underlying column, and "secret" which is not filterable.
var allowAll = ResolverFunc(func(field string, op database.Op) (string, error) {
	switch field {
	case "secret":
		return "", errs.Newf(errs.ErrKindInvalidInput, "field %q is not filterable", field)
	case "type_var":
		return "type", nil
	}
	return field, nil
})

func where(t *testing.T, exprs ...database.Expr) (string, []any) {
	t.Helper()
	sql, args, err := database.Select("s", "t").Where(exprs...).Build()
	require.NoError(t, err)
	return sql, args
}

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key   string
		field string
		op    database.Op
	}{
		{"price__gte", "price", database.OpGTE},
		{"name", "name", database.OpExact},
		{"name__startswith", "name", database.OpStartsWith},
		{"first__name", "first__name", database.OpExact},
		{"a__b__in", "a__b", database.OpIn},
		{"__lt", "__lt", database.OpExact},
		{"name__istartswith", "name__istartswith", database.OpExact},
	}
	for _, tt := range tests {
		field, op := SplitKey(tt.key)
		assert.Equal(t, tt.field, field, tt.key)
		assert.Equal(t, tt.op, op, tt.key)
	}
}

func TestParsePlain(t *testing.T) {
	values := url.Values{
		"price__gte":     {"10"},
		"type_var":       {"A"},
		"limit":          {"5"},
		"search":         {"ab"},
		"code__in":       {"a,b,,c"},
		"day__range":     {"2020-01-01,2020-12-31"},
		"name__endswith": {"50%"},
	}

	exprs, err := ParsePlain(values, allowAll)
	require.NoError(t, err)
	require.Len(t, exprs, 5)

	sql, args := where(t, exprs...)
	assert.Equal(t,
		`SELECT * FROM "s"."t" WHERE "code" IN ($1, $2, $3) AND "day" BETWEEN $4 AND $5 AND "name" LIKE $6 AND "price" >= $7 AND "type" = $8`,
		sql)
	assert.Equal(t, []any{"a", "b", "c", "2020-01-01", "2020-12-31", `%50\%`, "10", "A"}, args)
}

func TestParsePlain_Errors(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
	}{
		{"not filterable", url.Values{"secret": {"x"}}},
		{"empty in", url.Values{"code__in": {","}}},
		{"range with one value", url.Values{"day__range": {"2020-01-01"}}},
		{"range with empty bound", url.Values{"day__range": {",2020-01-01"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlain(tt.values, allowAll)
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
}

func TestParsePlain_ReservedOnly(t *testing.T) {
	exprs, err := ParsePlain(url.Values{"limit": {"1"}, "offset": {"2"}, "format": {"json"}}, allowAll)
	require.NoError(t, err)
	assert.Empty(t, exprs)
}

func TestParseComplex(t *testing.T) {
	tests := []struct {
		name string
		expr string
		sql  string
		args []any
	}{
		{
			name: "single term",
			expr: "(a=1)",
			sql:  `SELECT * FROM "s"."t" WHERE "a" = $1`,
			args: []any{"1"},
		},
		{
			name: "left to right",
			expr: "(a=1)|(b__lt=2)&~(c=3)",
			sql:  `SELECT * FROM "s"."t" WHERE (("a" = $1 OR "b" < $2) AND NOT ("c" = $3))`,
			args: []any{"1", "2", "3"},
		},
		{
			name: "multi-condition term",
			expr: "(a=1&b__gt=2)|(c__startswith=x)",
			sql:  `SELECT * FROM "s"."t" WHERE (("a" = $1 AND "b" > $2) OR "c" LIKE $3)`,
			args: []any{"1", "2", "x%"},
		},
		{
			name: "encoded values",
			expr: "~(name=a%26b%29)",
			sql:  `SELECT * FROM "s"."t" WHERE NOT ("name" = $1)`,
			args: []any{"a&b)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseComplex(tt.expr, allowAll)
			require.NoError(t, err)
			sql, args := where(t, e)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestParseComplex_Errors(t *testing.T) {
	for _, expr := range []string{
		"",
		"a=1",
		"(a=1",
		"(a=1)(b=2)",
		"(a=1)&",
		"()",
		"(a=1)^(b=2)",
		"(secret=1)",
		"(a=%zz)",
	} {
		_, err := ParseComplex(expr, allowAll)
		assert.True(t, errs.IsInvalidInput(err), expr)
	}
}
