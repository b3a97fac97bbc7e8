package records

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinovault/clinovault/internal/principal"
	"github.com/clinovault/clinovault/internal/schema"
)

// Store abstracts record persistence for the service.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (Record, error)
	Insert(ctx context.Context, rec Record) error
	UpdateFields(ctx context.Context, id uuid.UUID, ciphertexts map[string]string) error
}

// Service orchestrates record reads and writes through the projector. Every
// path runs authorization and audit before persistence or disclosure.
type Service struct {
	store     Store
	projector *Projector
	fields    *schema.Map
}

// NewService constructs a Service.
func NewService(store Store, projector *Projector, fields *schema.Map) *Service {
	return &Service{store: store, projector: projector, fields: fields}
}

// Get loads a record and projects it down to the fields the principal may
// see. requested empty means all stored fields.
func (s *Service) Get(ctx context.Context, prin *principal.Principal, id uuid.UUID, requested []string) (*FilteredRecord, error) {
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.projector.Project(ctx, prin, &rec, requested)
}

// Update authorizes and encrypts every field update, then merges the
// ciphertexts. A single denied field rejects the whole write.
func (s *Service) Update(ctx context.Context, prin *principal.Principal, id uuid.UUID, updates map[string]string) error {
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	ciphertexts, err := s.projector.AuthorizeWrite(ctx, prin, &rec, updates)
	if err != nil {
		return err
	}
	return s.store.UpdateFields(ctx, id, ciphertexts)
}

// CreateInput describes a new record.
type CreateInput struct {
	RecordType string
	PatientID  uuid.UUID
	OrgID      string
	Fields     map[string]string
}

// Create authorizes every initial field as a write against the new record's
// subject, encrypts, and stores. Like Update it is all or nothing.
func (s *Service) Create(ctx context.Context, prin *principal.Principal, in CreateInput) (uuid.UUID, error) {
	if len(s.fields.FieldsFor(in.RecordType)) == 0 {
		return uuid.Nil, fmt.Errorf("%w: unknown record type %q", ErrValidation, in.RecordType)
	}
	now := time.Now().UTC()
	rec := Record{
		ID:         uuid.New(),
		RecordType: in.RecordType,
		PatientID:  in.PatientID,
		OrgID:      in.OrgID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	ciphertexts, err := s.projector.AuthorizeWrite(ctx, prin, &rec, in.Fields)
	if err != nil {
		return uuid.Nil, err
	}
	rec.Fields = ciphertexts
	if err := s.store.Insert(ctx, rec); err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}
