package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fertility-cds-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return store
}

func testRecord(sessionID string, createdAt time.Time) *domain.PrescriptionRecord {
	return &domain.PrescriptionRecord{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		PatientRef: "MRN-0042",
		Protocol:   "infertility-workup@1.0.0",
		Prescription: domain.Prescription{
			Lines: []domain.PrescriptionLine{
				{TradeName: "Clomid", Dosage: "50 mg daily, days 3-7", Quantity: 1},
				{TradeName: "Duphaston", Dosage: "10 mg twice daily", Quantity: 2, Instructions: "From day 16"},
			},
			Notes: "Review after one cycle",
		},
		Findings: []domain.Finding{
			{Code: domain.ANOVULATION_SUSPECTED, Severity: domain.SeverityMedium},
		},
		DecisionPath: []string{"start", "maleEvaluation", "femaleEvaluation", "noOvulation", "anovulationWorkup"},
		BMI:          domain.Float(23.4),
		CreatedAt:    createdAt,
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "prescriptions-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := testRecord("session-1", time.Now().UTC().Truncate(time.Second))

	require.NoError(t, store.Save(ctx, record))

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.SessionID, got.SessionID)
	assert.Equal(t, record.PatientRef, got.PatientRef)
	assert.Equal(t, record.Prescription, got.Prescription)
	assert.Equal(t, record.Findings, got.Findings)
	assert.Equal(t, record.DecisionPath, got.DecisionPath)
	require.NotNil(t, got.BMI)
	assert.InDelta(t, 23.4, *got.BMI, 1e-9)
	assert.WithinDuration(t, record.CreatedAt, got.CreatedAt, time.Second)
}

func TestSQLiteStore_SaveWithoutBMI(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := testRecord("session-1", time.Time{})
	record.BMI = nil
	record.Findings = nil

	require.NoError(t, store.Save(ctx, record))
	assert.False(t, record.CreatedAt.IsZero(), "CreatedAt should be set")

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Nil(t, got.BMI)
	assert.Empty(t, got.Findings)
}

func TestSQLiteStore_SaveDuplicate(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := testRecord("session-1", time.Now().UTC())
	require.NoError(t, store.Save(ctx, record))

	assert.Error(t, store.Save(ctx, record))
}

func TestSQLiteStore_SaveInvalid(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	record := testRecord("session-1", time.Now().UTC())
	record.Prescription.Lines[0].Quantity = 0

	var validationErr *domain.ValidationError
	assert.ErrorAs(t, store.Save(context.Background(), record), &validationErr)
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_ListBySession(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	first := testRecord("session-a", base)
	second := testRecord("session-a", base.Add(time.Minute))
	other := testRecord("session-b", base)
	for _, r := range []*domain.PrescriptionRecord{second, other, first} {
		require.NoError(t, store.Save(ctx, r))
	}

	records, err := store.ListBySession(ctx, "session-a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, second.ID, records[1].ID)

	none, err := store.ListBySession(ctx, "session-z")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_ListAndCount(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(ctx, testRecord("s", base.Add(time.Duration(i)*time.Minute))))
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	page, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt), "newest first")

	rest, err := store.List(ctx, 10, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

func TestExportImportJSON(t *testing.T) {
	source := createTestStore(t)
	defer source.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, source.Save(ctx, testRecord("s", base.Add(time.Duration(i)*time.Second))))
	}

	var buf bytes.Buffer
	require.NoError(t, ExportJSON(ctx, source, &buf))

	target := NewMemoryStore()
	imported, skipped, err := ImportJSON(ctx, target, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 3, imported)
	assert.Equal(t, 0, skipped)

	imported, skipped, err = ImportJSON(ctx, target, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 3, skipped)

	_, _, err = ImportJSON(ctx, target, bytes.NewReader([]byte("not json")))
	assert.Error(t, err)
}

func TestImportJSON_RejectsNullRecords(t *testing.T) {
	ctx := context.Background()
	target := NewMemoryStore()

	valid := testRecord("s", time.Now().UTC())
	data := []byte(`{"version":"1.0","count":2,"records":[` + mustJSON(t, valid) + `,null]}`)

	imported, skipped, err := ImportJSON(ctx, target, bytes.NewReader(data))
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Zero(t, imported)
	assert.Zero(t, skipped)

	count, err := target.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "nothing is written from a rejected file")
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
