package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/autorest/internal/compiler"
	"github.com/koustreak/autorest/internal/database/sqldb"
	"github.com/koustreak/autorest/internal/endpoint"
	"github.com/koustreak/autorest/internal/errs"
	"github.com/koustreak/autorest/internal/logger"
	"github.com/koustreak/autorest/internal/naming"
	"github.com/koustreak/autorest/internal/typemap"
)

type indexes map[string][]string

func (ix indexes) LeadingIndexColumns(_ context.Context, schema, table string) ([]string, error) {
	return ix[compiler.Route(schema, table)], nil
}

type estimator struct {
	mu  sync.Mutex
	n   int64
	err error
}

func (e *estimator) Estimate(context.Context, string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n, e.err
}

func (e *estimator) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func table(t *testing.T, schema, name string) *compiler.TableSpec {
	t.Helper()
	m, err := typemap.New(typemap.DefaultConfig())
	require.NoError(t, err)
	id, err := m.Map("integer", typemap.Precision{}, true)
	require.NoError(t, err)
	text, err := m.Map("text", typemap.Precision{}, false)
	require.NoError(t, err)
	return &compiler.TableSpec{Schema: schema, Table: name, Columns: []compiler.ColumnSpec{
		{Name: "id", Field: "id", Type: id, Position: 1},
		{Name: "name", Field: "name", Type: text, Position: 2},
	}}
}

const (
	countSQL  = `SELECT COUNT(*) FROM "s1"."t1"`
	selectSQL = `SELECT "id", "name" FROM "s1"."t1"`
)

func fixture(t *testing.T, threshold int64, perm Permission) (*Server, sqlmock.Sqlmock, *estimator) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	d := sqldb.FromDB(db)
	t.Cleanup(d.Close)

	est := &estimator{n: 3}
	cfg := endpoint.DefaultConfig()
	cfg.Threshold = threshold
	c := endpoint.NewConfigurator(d, indexes{"s1.t1": {"id", "name"}, "s2.t2": {"id"}}, est,
		naming.New(naming.DefaultConfig()), cfg, nil)

	reg := endpoint.NewRegistry()
	failures, err := reg.RegisterAll(context.Background(), c, "db", "api",
		[]*compiler.TableSpec{table(t, "s1", "t1"), table(t, "s2", "t2")}, 2, nil)
	require.NoError(t, err)
	require.Empty(t, failures)

	srv := New(reg, Options{QueryTimeout: time.Second, DefaultLimit: 2, MaxLimit: 5, Permission: perm}, nil)
	return srv, mock, est
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.com"+target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestIndex(t *testing.T) {
	srv, _, _ := fixture(t, 1_000_000, nil)

	rec, body := get(t, srv, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]any{
		"s1.t1": "http://example.com/s1.t1/",
		"s2.t2": "http://example.com/s2.t2/",
	}, body)
}

func TestPermission(t *testing.T) {
	onlyS2 := PermissionFunc(func(_ *http.Request, schema string) bool { return schema == "s2" })
	srv, mock, _ := fixture(t, 1_000_000, onlyS2)

	_, body := get(t, srv, "/")
	assert.Equal(t, map[string]any{"s2.t2": "http://example.com/s2.t2/"}, body)

	rec, body := get(t, srv, "/s1.t1/")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission_denied", body["kind"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_FirstPage(t *testing.T) {
	srv, mock, _ := fixture(t, 1_000_000, nil)

	mock.ExpectQuery(countSQL).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(selectSQL + ` ORDER BY "id" ASC LIMIT $1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "a").AddRow(2, "b"))

	rec, body := get(t, srv, "/s1.t1/")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(3), body["count"])
	assert.Equal(t, "http://example.com/s1.t1/?limit=2&offset=2", body["next"])
	assert.Nil(t, body["previous"])
	assert.Equal(t, []any{
		map[string]any{"id": float64(1), "name": "a"},
		map[string]any{"id": float64(2), "name": "b"},
	}, body["results"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_LastPage(t *testing.T) {
	srv, mock, _ := fixture(t, 1_000_000, nil)

	mock.ExpectQuery(countSQL + ` WHERE "name" = $1`).WithArgs("c").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(selectSQL + ` WHERE "name" = $1 ORDER BY "id" DESC LIMIT $2 OFFSET $3`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(3, "c"))

	rec, body := get(t, srv, "/s1.t1/?name=c&ordering=-id&limit=2&offset=2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, body["next"])
	assert.Equal(t, "http://example.com/s1.t1/?limit=2&name=c&ordering=-id", body["previous"])
	assert.Len(t, body["results"], 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_LimitClamped(t *testing.T) {
	srv, mock, _ := fixture(t, 1_000_000, nil)

	mock.ExpectQuery(countSQL).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(selectSQL + ` ORDER BY "id" ASC LIMIT $1`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	rec, body := get(t, srv, "/s1.t1/?limit=500")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{}, body["results"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_EstimatedCount(t *testing.T) {
	srv, mock, est := fixture(t, 1, nil)

	mock.ExpectQuery(selectSQL + ` ORDER BY "id" ASC LIMIT $1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "a"))

	rec, body := get(t, srv, "/s1.t1/")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(3), body["count"])

	est.fail(errs.New(errs.ErrKindEstimateUnavailable, "no plan"))
	rec, body = get(t, srv, "/s1.t1/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "estimate_unavailable", body["kind"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_BadRequests(t *testing.T) {
	srv, _, _ := fixture(t, 1_000_000, nil)

	for _, target := range []string{
		"/s1.t1/?limit=0",
		"/s1.t1/?limit=x",
		"/s1.t1/?offset=-1",
		"/s1.t1/?nope=1",
		"/s1.t1/?name__lt=a",
		"/s1.t1/?ordering=nope",
		"/s1.t1/?filters=(name=a",
	} {
		rec, body := get(t, srv, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "invalid_input", body["kind"], target)
	}
}

func TestNotFound(t *testing.T) {
	srv, _, _ := fixture(t, 1_000_000, nil)

	rec, _ := get(t, srv, "/s9.t9/")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = get(t, srv, "/a/b/c")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDetail(t *testing.T) {
	srv, mock, _ := fixture(t, 1_000_000, nil)

	mock.ExpectQuery(selectSQL+` WHERE "id" = $1 LIMIT $2`).WithArgs("7", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "g"))
	mock.ExpectQuery(selectSQL+` WHERE "id" = $1 LIMIT $2`).WithArgs("8", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	rec, body := get(t, srv, "/s1.t1/7")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"id": float64(7), "name": "g"}, body)

	rec, body = get(t, srv, "/s1.t1/8")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["kind"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDetail_BadKeyLiteral(t *testing.T) {
	srv, mock, _ := fixture(t, 1_000_000, nil)

	mock.ExpectQuery(selectSQL+` WHERE "id" = $1 LIMIT $2`).WithArgs("abc", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "a").
			RowError(0, &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type integer"}))

	rec, body := get(t, srv, "/s1.t1/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", body["kind"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailure_LoggedWithRequestID(t *testing.T) {
	srv, mock, _ := fixture(t, 1_000_000, nil)
	buf := &bytes.Buffer{}
	srv.log = logger.New(&logger.Config{Level: "info", Format: "json", Output: buf})

	mock.ExpectQuery(selectSQL+` WHERE "id" = $1 LIMIT $2`).WithArgs("7", 1).
		WillReturnError(errors.New("connection reset"))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/s1.t1/7", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var entries []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var e map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, "request failed", entries[0]["message"])
	assert.Equal(t, "request", entries[1]["message"])
	for _, e := range entries {
		assert.Equal(t, "req-42", e["request_id"])
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.New(errs.ErrKindInvalidInput, "x"), http.StatusBadRequest},
		{errs.New(errs.ErrKindNotFound, "x"), http.StatusNotFound},
		{errs.New(errs.ErrKindPermissionDenied, "x"), http.StatusForbidden},
		{errs.New(errs.ErrKindTimeout, "x"), http.StatusGatewayTimeout},
		{errs.New(errs.ErrKindEstimateUnavailable, "x"), http.StatusServiceUnavailable},
		{errs.New(errs.ErrKindQueryFailed, "x"), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestNormalize(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	assert.Equal(t, id, normalize([16]byte(id)))
	assert.Equal(t, "abc", normalize([]byte("abc")))
	assert.Equal(t, "09:30:00", normalize(pgtype.Time{Microseconds: (9*3600 + 30*60) * 1_000_000, Valid: true}))
	assert.Equal(t, "00:00:01.000250", normalize(pgtype.Time{Microseconds: 1_000_250, Valid: true}))
	assert.Nil(t, normalize(pgtype.Time{}))
	assert.Equal(t, "2024-01-02T03:04:05Z", normalize(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, int64(5), normalize(int64(5)))
}
