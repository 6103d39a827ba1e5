package estimate

import (
	"context"
	"errors"
	"testing"

	"github.com/koustreak/autorest/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		plan string
		want int64
	}{
		{
			name: "seq scan",
			plan: "Seq Scan on prices  (cost=0.00..18334.00 rows=1000000 width=40)",
			want: 1000000,
		},
		{
			name: "first annotation wins",
			plan: "Hash Join  (cost=1.09..2.21 rows=4 width=72)\n" +
				"  ->  Seq Scan on a  (cost=0.00..1.05 rows=5 width=36)\n" +
				"  ->  Hash  (cost=1.04..1.04 rows=4 width=36)",
			want: 4,
		},
		{
			name: "annotation on a later line",
			plan: "Gather\n  Workers Planned: 2\n  ->  Parallel Seq Scan on t  (cost=0.00..1.00 rows=77 width=8)",
			want: 77,
		},
		{
			name: "zero rows",
			plan: "Result  (cost=0.00..0.00 rows=0 width=0)",
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.plan)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Unavailable(t *testing.T) {
	for _, plan := range []string{"", "Result", "Seq Scan on t (cost=0.00..1.00 width=8)", "rows=abc"} {
		n, err := Parse(plan)
		assert.True(t, errs.IsEstimateUnavailable(err), plan)
		assert.Zero(t, n)
	}

	_, err := Parse("rows=99999999999999999999")
	assert.True(t, errs.IsEstimateUnavailable(err))
}

type fakePlanner struct {
	plan  string
	err   error
	calls int
	query string
}

func (f *fakePlanner) ExplainPlan(_ context.Context, q string) (string, error) {
	f.calls++
	f.query = q
	return f.plan, f.err
}

func TestEstimator_NoCaching(t *testing.T) {
	p := &fakePlanner{plan: "Seq Scan on t  (cost=0.00..1.00 rows=42 width=8)"}
	e := New(p)

	for i := 0; i < 3; i++ {
		n, err := e.Estimate(context.Background(), `SELECT * FROM "s"."t"`)
		require.NoError(t, err)
		assert.Equal(t, int64(42), n)
	}
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, `SELECT * FROM "s"."t"`, p.query)
}

func TestEstimator_PlannerError(t *testing.T) {
	boom := errs.Wrap(errs.ErrKindConnectionFailed, "explain", errors.New("refused"))
	e := New(&fakePlanner{err: boom})

	_, err := e.Estimate(context.Background(), "SELECT 1")
	assert.True(t, errs.IsConnectionFailed(err))
}
