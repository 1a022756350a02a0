package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fertility-cds-server/internal/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func recordRow(record *domain.PrescriptionRecord) *sqlmock.Rows {
	enc, err := encodeRecord(record)
	if err != nil {
		panic(err)
	}
	return sqlmock.NewRows([]string{
		"id", "session_id", "patient_ref", "protocol",
		"prescription", "findings", "decision_path", "bmi", "created_at",
	}).AddRow(
		record.ID, record.SessionID, record.PatientRef, record.Protocol,
		[]byte(enc.prescription), []byte(enc.findings), []byte(enc.decisionPath), enc.bmi.Float64, record.CreatedAt,
	)
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	record := testRecord("session-1", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO prescriptions")).
		WithArgs(record.ID, record.SessionID, record.PatientRef, record.Protocol,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), record.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Save(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	store, mock := newMockStore(t)
	record := testRecord("session-1", time.Now().UTC())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO prescriptions")).
		WillReturnError(errors.New("duplicate key value violates unique constraint"))

	err := store.Save(context.Background(), record)
	assert.ErrorContains(t, err, "failed to save prescription")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveInvalidSkipsDatabase(t *testing.T) {
	store, mock := newMockStore(t)
	record := testRecord("", time.Now().UTC())

	var validationErr *domain.ValidationError
	assert.ErrorAs(t, store.Save(context.Background(), record), &validationErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	record := testRecord("session-1", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	mock.ExpectQuery(`FROM prescriptions\s+WHERE id = \$1`).
		WithArgs(record.ID).
		WillReturnRows(recordRow(record))

	got, err := store.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Prescription, got.Prescription)
	assert.Equal(t, record.DecisionPath, got.DecisionPath)
	assert.Equal(t, record.Findings, got.Findings)
	require.NotNil(t, got.BMI)
	assert.InDelta(t, *record.BMI, *got.BMI, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM prescriptions\s+WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresStore_ListBySession(t *testing.T) {
	store, mock := newMockStore(t)
	record := testRecord("session-1", time.Now().UTC())

	mock.ExpectQuery(`WHERE session_id = \$1\s+ORDER BY created_at ASC`).
		WithArgs("session-1").
		WillReturnRows(recordRow(record))

	records, err := store.ListBySession(context.Background(), "session-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAndCount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "patient_ref", "protocol",
			"prescription", "findings", "decision_path", "bmi", "created_at",
		}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM prescriptions")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	records, err := store.List(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.Empty(t, records)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
