package sqldb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/autorest/internal/database"
	"github.com/koustreak/autorest/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_QueryAndScanRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	d := FromDB(db)
	defer d.Close()

	mock.ExpectQuery(`SELECT "id", "class" AS "class_var" FROM "s1"."t1"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_var"}).
			AddRow(1, "first").
			AddRow(2, "second"))

	rows, err := d.Query(context.Background(), `SELECT "id", "class" AS "class_var" FROM "s1"."t1"`)
	require.NoError(t, err)

	got, err := database.ScanRows(rows)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[1]["class_var"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriver_QueryRowNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	d := FromDB(db)
	defer d.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"x"}))

	var x int
	err = d.QueryRow(context.Background(), "SELECT 1").Scan(&x)
	assert.True(t, errs.IsNotFound(err))
}

func TestDriver_PingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	d := FromDB(db)
	defer d.Close()

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)

	err = d.Ping(context.Background())
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestScanRows_KeepsDriverKind(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	d := FromDB(db)
	defer d.Close()

	mock.ExpectQuery(`SELECT`).WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1).RowError(0, &pgconn.PgError{Code: "22P02"}))
	mock.ExpectQuery(`SELECT`).WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1).RowError(0, &pgconn.PgError{Code: "XX000"}))

	rows, err := d.Query(context.Background(), `SELECT "id" FROM "s1"."t1" WHERE "id" = $1`, "abc")
	require.NoError(t, err)
	_, err = database.ScanRows(rows)
	assert.True(t, errs.IsInvalidInput(err), "got %v", err)

	rows, err = d.Query(context.Background(), `SELECT "id" FROM "s1"."t1"`)
	require.NoError(t, err)
	_, err = database.ScanRows(rows)
	assert.True(t, errs.IsQueryFailed(err), "got %v", err)
}
