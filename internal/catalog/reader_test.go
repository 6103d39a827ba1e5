package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/koustreak/autorest/internal/database/sqldb"
	"github.com/koustreak/autorest/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columnNames = []string{
	"schema_name", "table_name", "column_name", "data_type",
	"character_maximum_length", "numeric_precision", "numeric_scale", "ordinal_position",
}

func newReader(t *testing.T) (*Reader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	d := sqldb.FromDB(db)
	t.Cleanup(d.Close)
	return NewReader(d), mock
}

func TestReader_ListColumnsAppendsSentinel(t *testing.T) {
	r, mock := newReader(t)

	mock.ExpectQuery(`FROM information_schema.schemata s`).
		WithArgs("owner", "s1", "%chars").
		WillReturnRows(sqlmock.NewRows(columnNames).
			AddRow("s1", "t1", "id", "integer", nil, 32, 0, 1).
			AddRow("s1", "t1", "class", "character varying", 40, nil, nil, 2))

	rows, err := r.ListColumns(context.Background(), Filter{
		Owner:         "owner",
		Schema:        "s1",
		ExcludeTables: []string{"%chars"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "id", rows[0].Column)
	require.NotNil(t, rows[0].NumericPrecision)
	assert.Equal(t, int64(32), *rows[0].NumericPrecision)
	assert.Nil(t, rows[0].CharMaxLength)
	assert.Equal(t, 2, rows[1].OrdinalPosition)
	require.NotNil(t, rows[1].CharMaxLength)
	assert.Equal(t, int64(40), *rows[1].CharMaxLength)

	assert.True(t, rows[2].IsSentinel())
	assert.False(t, rows[0].IsSentinel())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReader_ListColumnsRequiresOwner(t *testing.T) {
	r, _ := newReader(t)
	_, err := r.ListColumns(context.Background(), Filter{})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestReader_ListColumnsConnectionFailure(t *testing.T) {
	r, mock := newReader(t)
	mock.ExpectQuery(`FROM information_schema.schemata s`).
		WillReturnError(errors.New("connection refused"))

	_, err := r.ListColumns(context.Background(), Filter{Owner: "owner"})
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestColumnsQuery_Placeholders(t *testing.T) {
	q, args := columnsQuery(Filter{
		Owner:         "o",
		Allowed:       []string{"a", "b"},
		ExcludeTables: []string{"%chars", "tmp_%"},
	})

	assert.Contains(t, q, "s.schema_name IN ($2, $3)")
	assert.Contains(t, q, "c.table_name NOT LIKE $4")
	assert.Contains(t, q, "c.table_name NOT LIKE $5")
	assert.Contains(t, q, "ORDER BY s.schema_name, c.table_name, c.ordinal_position")
	assert.Equal(t, []any{"o", "a", "b", "%chars", "tmp_%"}, args)
}

func TestReader_LeadingIndexColumns(t *testing.T) {
	r, mock := newReader(t)
	mock.ExpectQuery(`JOIN pg_index i ON c.oid = i.indrelid`).
		WithArgs("s1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"index_column"}).
			AddRow("class").
			AddRow("id"))

	cols, err := r.LeadingIndexColumns(context.Background(), "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"class", "id"}, cols)
}

func TestReader_ListOwnedSchemas(t *testing.T) {
	r, mock := newReader(t)
	mock.ExpectQuery(`WHERE schema_owner = \$1`).
		WithArgs("owner").
		WillReturnRows(sqlmock.NewRows([]string{"schema_name"}).AddRow("s1").AddRow("s2"))

	got, err := r.ListOwnedSchemas(context.Background(), "owner")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, got)
}

func TestReader_ExplainPlan(t *testing.T) {
	r, mock := newReader(t)
	mock.ExpectQuery(`EXPLAIN SELECT \* FROM "s1"."t1"`).
		WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).
			AddRow("Seq Scan on t1  (cost=0.00..18.10 rows=810 width=36)"))

	plan, err := r.ExplainPlan(context.Background(), `SELECT * FROM "s1"."t1"`)
	require.NoError(t, err)
	assert.Contains(t, plan, "rows=810")
}

func TestResolveSchema(t *testing.T) {
	owned := []string{"crsp", "comp"}

	got, err := ResolveSchema("", owned)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ResolveSchema("crsp", owned)
	require.NoError(t, err)
	assert.Equal(t, "crsp", got)

	got, err = ResolveSchema("ibes", owned)
	assert.True(t, errs.IsSchemaNotAllowed(err))
	assert.Empty(t, got)
}
