// Package endpoint decides, per table, how the read API filters, searches
// and paginates it, and executes list and detail queries accordingly.
//
// Only columns that lead some index are filterable or searchable. The
// pagination strategy comes from the planner's row estimate for the whole
// table: above the threshold the count is itself estimated on every list
// request instead of running COUNT(*).
package endpoint

import (
	"context"

	"github.com/koustreak/autorest/internal/compiler"
	"github.com/koustreak/autorest/internal/database"
	"github.com/koustreak/autorest/internal/errs"
	"github.com/koustreak/autorest/internal/logger"
	"github.com/koustreak/autorest/internal/naming"
	"github.com/koustreak/autorest/internal/typemap"
)

// Strategy selects how list responses obtain their total count.
type Strategy string

const (
	ExactCount     Strategy = "exact-count"
	EstimatedCount Strategy = "estimated-count"
)

// SearchPrefix marks a prefix-match search field.
const SearchPrefix = "^"

var (
	textOps     = []database.Op{database.OpExact, database.OpIn, database.OpContains, database.OpStartsWith, database.OpEndsWith}
	numericOps  = []database.Op{database.OpExact, database.OpIn, database.OpLT, database.OpLTE, database.OpGT, database.OpGTE}
	temporalOps = []database.Op{database.OpExact, database.OpIn, database.OpLT, database.OpLTE, database.OpGT, database.OpGTE, database.OpRange}
)

// OpsFor returns the filter operators offered for an indexed field of kind k.
func OpsFor(k typemap.Kind) []database.Op {
	switch k {
	case typemap.KindText:
		return textOps
	case typemap.KindNumeric:
		return numericOps
	case typemap.KindTemporal:
		return temporalOps
	}
	return nil
}

// IndexColumnSet holds generated field names of leading index columns.
type IndexColumnSet map[string]struct{}

// Has reports membership.
func (s IndexColumnSet) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// Capability is what one endpoint allows.
type Capability struct {
	Ref          Ref
	Strategy     Strategy
	Estimate     int64    // planner estimate at configuration time
	SearchFields []string // "^field", column order
	FilterFields []string // column order
	Ops          map[string][]database.Op
}

// Allows reports whether field may be filtered with op.
func (c *Capability) Allows(field string, op database.Op) bool {
	for _, o := range c.Ops[field] {
		if o == op {
			return true
		}
	}
	return false
}

// Searchable returns the search fields without their prefix marker.
func (c *Capability) Searchable() []string {
	out := make([]string, len(c.SearchFields))
	for i, f := range c.SearchFields {
		out[i] = f[len(SearchPrefix):]
	}
	return out
}

// IndexLister returns physical names of leading index columns.
type IndexLister interface {
	LeadingIndexColumns(ctx context.Context, schema, table string) ([]string, error)
}

// Estimator returns a planner row estimate for a query.
type Estimator interface {
	Estimate(ctx context.Context, query string) (int64, error)
}

// Config holds endpoint parameters.
type Config struct {
	// Threshold is the largest row estimate still paginated with an exact count.
	Threshold int64 `yaml:"threshold"`

	// DefaultLimit and MaxLimit bound the page size of list requests.
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// DefaultConfig returns a threshold of one million rows and pages of
// 100 rows, at most 10000.
func DefaultConfig() Config {
	return Config{
		Threshold:    1_000_000,
		DefaultLimit: 100,
		MaxLimit:     10_000,
	}
}

// Configurator builds capabilities and endpoints.
type Configurator struct {
	db      database.DB
	indexes IndexLister
	est     Estimator
	names   *naming.Sanitizer
	cfg     Config
	log     *logger.Logger
}

// NewConfigurator creates a Configurator. names must be configured the same
// way as the one used to compile the tables.
func NewConfigurator(db database.DB, indexes IndexLister, est Estimator, names *naming.Sanitizer, cfg Config, log *logger.Logger) *Configurator {
	if log == nil {
		log = logger.Nop()
	}
	return &Configurator{db: db, indexes: indexes, est: est, names: names, cfg: cfg, log: log}
}

// Config returns the endpoint configuration.
func (c *Configurator) Config() Config {
	return c.cfg
}

// RepresentativeQuery is the table-level query whose estimate decides and
// drives the estimated-count strategy.
func RepresentativeQuery(schema, table string) string {
	q, _, _ := database.Select(schema, table).Build()
	return q
}

// Configure computes the capability of t.
func (c *Configurator) Configure(ctx context.Context, ref Ref, t *compiler.TableSpec) (*Capability, error) {
	cols, err := c.indexes.LeadingIndexColumns(ctx, t.Schema, t.Table)
	if err != nil {
		return nil, err
	}
	indexed := make(IndexColumnSet, len(cols))
	for _, col := range cols {
		indexed[c.names.Name(col)] = struct{}{}
	}

	estimate, err := c.est.Estimate(ctx, RepresentativeQuery(t.Schema, t.Table))
	if err != nil {
		return nil, err
	}

	capability := &Capability{
		Ref:      ref,
		Strategy: ExactCount,
		Estimate: estimate,
		Ops:      make(map[string][]database.Op),
	}
	if estimate > c.cfg.Threshold {
		capability.Strategy = EstimatedCount
	}

	for _, col := range t.Columns {
		if !indexed.Has(col.Field) {
			continue
		}
		ops := OpsFor(col.Type.Kind)
		if len(ops) == 0 {
			continue
		}
		capability.FilterFields = append(capability.FilterFields, col.Field)
		capability.Ops[col.Field] = ops
		if col.Type.Kind == typemap.KindText {
			capability.SearchFields = append(capability.SearchFields, SearchPrefix+col.Field)
		}
	}

	c.log.With().
		Str("endpoint", ref.String()).
		Str("strategy", string(capability.Strategy)).
		Int64("estimate", estimate).
		Int("filters", len(capability.FilterFields)).
		Logger().Debug("endpoint configured")

	return capability, nil
}

// Endpoint configures t and binds it to the database.
func (c *Configurator) Endpoint(ctx context.Context, ref Ref, t *compiler.TableSpec) (*Endpoint, error) {
	if ref.Schema != t.Schema || ref.Table != t.Table {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "endpoint %s does not match table %s", ref, t.Route())
	}
	capability, err := c.Configure(ctx, ref, t)
	if err != nil {
		return nil, err
	}
	return &Endpoint{
		Ref:        ref,
		Table:      t,
		Capability: capability,
		db:         c.db,
		est:        c.est,
	}, nil
}
