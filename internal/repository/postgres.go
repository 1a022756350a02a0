package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fertility-cds-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL prescription store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Save inserts a finalized record.
func (s *PostgresStore) Save(ctx context.Context, record *domain.PrescriptionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	enc, err := encodeRecord(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO prescriptions (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.SessionID,
		record.PatientRef,
		record.Protocol,
		enc.prescription,
		enc.findings,
		enc.decisionPath,
		enc.bmi,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save prescription: %w", err)
	}
	return nil
}

// Get retrieves a record by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.PrescriptionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM prescriptions
		WHERE id = $1
	`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prescription %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}
	return record, nil
}

// ListBySession returns the records of one session, oldest first.
func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.PrescriptionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM prescriptions
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return scanRecords(rows)
}

// List returns records with pagination, newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*domain.PrescriptionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM prescriptions
		ORDER BY created_at DESC, id ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return scanRecords(rows)
}

// Count returns the total number of records.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prescriptions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count prescriptions: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
