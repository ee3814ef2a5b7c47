package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationFiles = []string{
	"migrations/0001_workflow.sql",
	"migrations/0002_verification.sql",
	"migrations/0003_incode.sql",
	"migrations/0004_outbox.sql",
	"migrations/0005_workflow_schedule.sql",
}

func expectLedger(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migration")).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestMigrate(t *testing.T) {
	t.Run("applies pending files in order and skips applied ones", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectLedger(mock)
		for i, name := range migrationFiles {
			mock.ExpectBegin()
			record := mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migration")).WithArgs(name)
			if i < 2 {
				record.WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
				continue
			}
			record.WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec("(CREATE|ALTER) TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectCommit()
		}

		require.NoError(t, Migrate(context.Background(), db))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a failing file stops the run and rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectLedger(mock)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migration")).
			WithArgs(migrationFiles[0]).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("syntax error"))
		mock.ExpectRollback()

		err = Migrate(context.Background(), db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "0001_workflow.sql")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
