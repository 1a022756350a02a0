// Package repository persists finalized prescriptions. The engine never
// touches storage; sessions hand completed records to a Store.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fertility-cds-server/internal/domain"
)

// Store defines the interface for prescription storage operations.
type Store interface {
	// Save stores a finalized record. Records are immutable; saving an
	// existing id fails.
	Save(ctx context.Context, record *domain.PrescriptionRecord) error

	// Get retrieves a record by id. A missing record wraps domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.PrescriptionRecord, error)

	// ListBySession returns the records finalized from one session, oldest first.
	ListBySession(ctx context.Context, sessionID string) ([]*domain.PrescriptionRecord, error)

	// List returns records with pagination, newest first.
	List(ctx context.Context, limit, offset int) ([]*domain.PrescriptionRecord, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}

// RecordExport represents the JSON export format.
type RecordExport struct {
	Version    string                       `json:"version"`
	ExportedAt time.Time                    `json:"exported_at"`
	Count      int                          `json:"count"`
	Records    []*domain.PrescriptionRecord `json:"records"`
}

// maxExportLimit is the maximum number of records to export at once.
const maxExportLimit = 1000000

// ExportJSON writes every record in the store to w.
func ExportJSON(ctx context.Context, store Store, w io.Writer) error {
	all, err := store.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	export := &RecordExport{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Records:    all,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON loads records from r, skipping ids that already exist. A file
// with null entries is rejected before anything is written.
func ImportJSON(ctx context.Context, store Store, r io.Reader) (imported int, skipped int, err error) {
	var export RecordExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}
	for i, record := range export.Records {
		if record == nil {
			return 0, 0, domain.NewValidationError("records", "record entry is null", i)
		}
	}

	for _, record := range export.Records {
		if _, err := store.Get(ctx, record.ID); err == nil {
			skipped++
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if err := store.Save(ctx, record); err != nil {
			return imported, skipped, fmt.Errorf("failed to save %s: %w", record.ID, err)
		}
		imported++
	}

	return imported, skipped, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// encodedRecord holds the JSON columns of a record.
type encodedRecord struct {
	prescription string
	findings     string
	decisionPath string
	bmi          sql.NullFloat64
}

func encodeRecord(record *domain.PrescriptionRecord) (*encodedRecord, error) {
	prescription, err := json.Marshal(record.Prescription)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prescription: %w", err)
	}

	findings := record.Findings
	if findings == nil {
		findings = []domain.Finding{}
	}
	findingsJSON, err := json.Marshal(findings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode findings: %w", err)
	}

	path := record.DecisionPath
	if path == nil {
		path = []string{}
	}
	pathJSON, err := json.Marshal(path)
	if err != nil {
		return nil, fmt.Errorf("failed to encode decision path: %w", err)
	}

	enc := &encodedRecord{
		prescription: string(prescription),
		findings:     string(findingsJSON),
		decisionPath: string(pathJSON),
	}
	if record.BMI != nil {
		enc.bmi = sql.NullFloat64{Float64: *record.BMI, Valid: true}
	}
	return enc, nil
}

// scanRecord scans a row selected with recordColumns.
func scanRecord(s scanner) (*domain.PrescriptionRecord, error) {
	record := &domain.PrescriptionRecord{}
	var prescription, findings, decisionPath []byte
	var bmi sql.NullFloat64

	err := s.Scan(
		&record.ID, &record.SessionID, &record.PatientRef, &record.Protocol,
		&prescription, &findings, &decisionPath, &bmi, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(prescription, &record.Prescription); err != nil {
		return nil, fmt.Errorf("failed to decode prescription: %w", err)
	}
	if err := json.Unmarshal(findings, &record.Findings); err != nil {
		return nil, fmt.Errorf("failed to decode findings: %w", err)
	}
	if err := json.Unmarshal(decisionPath, &record.DecisionPath); err != nil {
		return nil, fmt.Errorf("failed to decode decision path: %w", err)
	}
	if bmi.Valid {
		value := bmi.Float64
		record.BMI = &value
	}
	record.CreatedAt = record.CreatedAt.UTC()

	return record, nil
}

const recordColumns = `id, session_id, patient_ref, protocol,
		prescription, findings, decision_path, bmi, created_at`

func scanRecords(rows *sql.Rows) ([]*domain.PrescriptionRecord, error) {
	defer rows.Close()

	result := []*domain.PrescriptionRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, record)
	}
	return result, rows.Err()
}
