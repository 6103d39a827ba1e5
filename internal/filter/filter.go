// Package filter parses read-API query parameters into WHERE expressions.
//
// Plain filters are query parameters of the form field__op=value (op
// defaults to exact). A complex filter is a single parameter holding
// parenthesized query strings combined with & and |, each optionally
// negated with ~, for example:
//
//	(name__startswith=Ac)|~(price__gt=10)&(day__range=2020-01-01,2020-12-31)
//
// Terms combine left to right with no precedence.
package filter

import (
	"net/url"
	"sort"
	"strings"

	"github.com/koustreak/autorest/internal/database"
	"github.com/koustreak/autorest/internal/errs"
)

// Separator splits a field from its operator in a parameter name.
const Separator = "__"

// Reserved parameter names are never treated as filters.
var Reserved = map[string]bool{
	"limit":    true,
	"offset":   true,
	"ordering": true,
	"search":   true,
	"filters":  true,
	"format":   true,
}

// Resolver validates a (field, op) pair and returns the physical column.
type Resolver interface {
	Resolve(field string, op database.Op) (column string, err error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(field string, op database.Op) (string, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(field string, op database.Op) (string, error) {
	return f(field, op)
}

// SplitKey splits "price__gte" into ("price", gte). A key without a known
// operator suffix is an exact match on the whole key.
func SplitKey(key string) (string, database.Op) {
	if i := strings.LastIndex(key, Separator); i > 0 {
		if op, ok := database.ParseOp(key[i+len(Separator):]); ok {
			return key[:i], op
		}
	}
	return key, database.OpExact
}

// ParsePlain turns every non-reserved parameter of values into a condition.
// Conditions are returned sorted by parameter name so the generated SQL is
// stable. Repeated parameters each add a condition.
func ParsePlain(values url.Values, r Resolver) ([]database.Expr, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		if !Reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []database.Expr
	for _, k := range keys {
		for _, v := range values[k] {
			c, err := cond(k, v, r)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func cond(key, raw string, r Resolver) (database.Expr, error) {
	field, op := SplitKey(key)
	column, err := r.Resolve(field, op)
	if err != nil {
		return nil, err
	}

	c := database.Cond{Column: column, Op: op}
	switch op {
	case database.OpIn:
		parts := strings.Split(raw, ",")
		vals := make([]any, 0, len(parts))
		for _, p := range parts {
			if p != "" {
				vals = append(vals, p)
			}
		}
		if len(vals) == 0 {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "%s needs at least one value", key)
		}
		c.Value = vals
	case database.OpRange:
		parts := strings.Split(raw, ",")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "%s needs two comma-separated values", key)
		}
		c.Value = [2]any{parts[0], parts[1]}
	default:
		c.Value = raw
	}
	return c, nil
}

// ParseComplex parses a complex filter expression.
func ParseComplex(expr string, r Resolver) (database.Expr, error) {
	p := &parser{src: expr, r: r}
	return p.parse()
}

type parser struct {
	src string
	pos int
	r   Resolver
}

func (p *parser) parse() (database.Expr, error) {
	if strings.TrimSpace(p.src) == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "empty complex filter")
	}

	result, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.pos < len(p.src) {
		var or bool
		switch p.src[p.pos] {
		case '&':
		case '|':
			or = true
		default:
			return nil, p.errorf("expected & or | at offset %d", p.pos)
		}
		p.pos++

		next, err := p.term()
		if err != nil {
			return nil, err
		}
		result = database.Group{Or: or, Exprs: []database.Expr{result, next}}
	}
	return result, nil
}

func (p *parser) term() (database.Expr, error) {
	negate := false
	if p.pos < len(p.src) && p.src[p.pos] == '~' {
		negate = true
		p.pos++
	}
	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return nil, p.errorf("expected ( at offset %d", p.pos)
	}
	end := strings.IndexByte(p.src[p.pos:], ')')
	if end < 0 {
		return nil, p.errorf("unclosed ( at offset %d", p.pos)
	}
	inner := p.src[p.pos+1 : p.pos+end]
	p.pos += end + 1

	values, err := url.ParseQuery(inner)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed complex filter term", err)
	}
	conds, err := ParsePlain(values, p.r)
	if err != nil {
		return nil, err
	}
	if len(conds) == 0 {
		return nil, p.errorf("empty complex filter term %q", inner)
	}

	if len(conds) == 1 && !negate {
		return conds[0], nil
	}
	return database.Group{Not: negate, Exprs: conds}, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return errs.Newf(errs.ErrKindInvalidInput, "complex filter: "+format, args...)
}
