package db

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, driver string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	s, err := New(conn, driver, "customers")
	require.NoError(t, err)
	return s, mock
}

func TestQueryPreview(t *testing.T) {
	s, mock := newMockStore(t, DriverPostgres)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "customers" LIMIT $1`)).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"customerID", "tenure", "Churn"}).
			AddRow("7590-VHVEG", "1", "No").
			AddRow("5575-GNVDE", "34", nil))

	columns, rows, err := s.Query(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"customerID", "tenure", "Churn"}, columns)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"5575-GNVDE", "34", ""}, rows[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryAll(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLite)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "customers"`)).
		WithoutArgs().
		WillReturnRows(sqlmock.NewRows([]string{"tenure"}).AddRow(int64(12)))

	_, rows, err := s.Query(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"12"}}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLite)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "customers" ("tenure", "Churn") VALUES (?, ?)`))
	prep.ExpectExec().WithArgs("1", "No").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	_, err := s.Insert(context.Background(), []string{"tenure", "Churn"}, [][]string{{"1", "No"}, {"2"}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCommits(t *testing.T) {
	s, mock := newMockStore(t, DriverPostgres)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "customers" ("tenure", "Churn") VALUES ($1, $2)`))
	prep.ExpectExec().WithArgs("1", "No").WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("34", "Yes").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	n, err := s.Insert(context.Background(), []string{"tenure", "Churn"}, [][]string{{"1", "No"}, {"34", "Yes"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRejectsBadInput(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	_, err = New(conn, "mysql", "customers")
	assert.Error(t, err)
	_, err = New(conn, DriverSQLite, "customers; DROP TABLE users")
	assert.Error(t, err)
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "churn.db"), "customers")
	require.NoError(t, err)
	defer s.Close()

	columns := []string{"customerID", "tenure", "Contract", "Churn"}
	require.NoError(t, s.CreateTable(ctx, columns))
	require.NoError(t, s.CreateTable(ctx, columns))

	n, err := s.Insert(ctx, columns, [][]string{
		{"7590-VHVEG", "1", "Month-to-month", "No"},
		{"3668-QPYBK", "2", "Month-to-month", "Yes"},
		{"9237-HQITU", "45", "One year", "No"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, rows, err := s.Query(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, columns, got)
	require.Len(t, rows, 2)
	assert.Equal(t, "3668-QPYBK", rows[1][0])

	_, rows, err = s.Query(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
