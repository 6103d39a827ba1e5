// Package estimate reads approximate row counts from PostgreSQL planner output.
package estimate

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/koustreak/autorest/internal/errs"
)

var rowsPattern = regexp.MustCompile(`rows=(\d+)`)

// Parse returns the first rows=<n> annotation in plan, scanning lines top
// to bottom and each line left to right. A plan without one yields
// errs.ErrKindEstimateUnavailable; it never falls back to zero.
func Parse(plan string) (int64, error) {
	for _, line := range strings.Split(plan, "\n") {
		m := rowsPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, errs.Wrap(errs.ErrKindEstimateUnavailable, "row estimate out of range", err)
		}
		return n, nil
	}
	return 0, errs.New(errs.ErrKindEstimateUnavailable, "planner output has no rows= annotation")
}

// Planner returns the EXPLAIN output of a query. catalog.Reader implements it.
type Planner interface {
	ExplainPlan(ctx context.Context, query string) (string, error)
}

// Estimator asks the planner for a cardinality estimate. Nothing is cached:
// every call costs one round trip.
type Estimator struct {
	planner Planner
}

// New creates an Estimator.
func New(p Planner) *Estimator {
	return &Estimator{planner: p}
}

// Estimate returns the planner's row estimate for query.
func (e *Estimator) Estimate(ctx context.Context, query string) (int64, error) {
	plan, err := e.planner.ExplainPlan(ctx, query)
	if err != nil {
		return 0, err
	}
	return Parse(plan)
}
