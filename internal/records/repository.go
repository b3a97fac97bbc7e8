package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinovault/clinovault/internal/platform/db"
	"github.com/clinovault/clinovault/internal/shared"
)

// Repository persists records in patient_records. Field ciphertexts live in
// one JSONB column; the database never sees plaintext.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByID loads one record.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (Record, error) {
	var rec Record
	var patientID *uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT id, record_type, patient_id, org_id, fields, created_at, updated_at
		 FROM patient_records WHERE id = $1`, id).
		Scan(&rec.ID, &rec.RecordType, &patientID, &rec.OrgID, &rec.Fields, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, shared.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("records: find %s: %w", id, err)
	}
	if patientID != nil {
		rec.PatientID = *patientID
	}
	if rec.Fields == nil {
		rec.Fields = map[string]string{}
	}
	return rec, nil
}

// Insert stores a new record with its full ciphertext field map.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	var patientID *uuid.UUID
	if rec.PatientID != uuid.Nil {
		patientID = &rec.PatientID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO patient_records (id, record_type, patient_id, org_id, fields, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.RecordType, patientID, rec.OrgID, rec.Fields, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("records: insert: %w", err)
	}
	return nil
}

// UpdateFields merges the given ciphertexts into the record's field map
// inside one transaction. The merge re-reads the row under RepeatableRead so
// two concurrent writers cannot silently drop each other's fields.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, ciphertexts map[string]string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var fields map[string]string
		err := tx.QueryRow(ctx,
			`SELECT fields FROM patient_records WHERE id = $1 FOR UPDATE`, id).Scan(&fields)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("records: lock %s: %w", id, err)
		}
		if fields == nil {
			fields = map[string]string{}
		}
		for field, ciphertext := range ciphertexts {
			fields[field] = ciphertext
		}
		if _, err := tx.Exec(ctx,
			`UPDATE patient_records SET fields = $2, updated_at = $3 WHERE id = $1`,
			id, fields, time.Now().UTC()); err != nil {
			return fmt.Errorf("records: update %s: %w", id, err)
		}
		return nil
	})
}
