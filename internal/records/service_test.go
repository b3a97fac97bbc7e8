package records

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/clinovault/clinovault/internal/encryption"
	"github.com/clinovault/clinovault/internal/shared"
)

type stubStore struct {
	records map[uuid.UUID]Record
	updates map[uuid.UUID]map[string]string
}

func newStubStore() *stubStore {
	return &stubStore{
		records: make(map[uuid.UUID]Record),
		updates: make(map[uuid.UUID]map[string]string),
	}
}

func (s *stubStore) FindByID(_ context.Context, id uuid.UUID) (Record, error) {
	rec, ok := s.records[id]
	if !ok {
		return Record{}, shared.ErrNotFound
	}
	return rec, nil
}

func (s *stubStore) Insert(_ context.Context, rec Record) error {
	s.records[rec.ID] = rec
	return nil
}

func (s *stubStore) UpdateFields(_ context.Context, id uuid.UUID, ciphertexts map[string]string) error {
	if _, ok := s.records[id]; !ok {
		return shared.ErrNotFound
	}
	s.updates[id] = ciphertexts
	return nil
}

func newTestService(t *testing.T, sink *recordingSink) (*Service, *stubStore, *encryption.MemoryGateway) {
	t.Helper()
	projector, gateway := newTestProjector(t, sink)
	store := newStubStore()
	return NewService(store, projector, projector.fields), store, gateway
}

func TestServiceCreateThenGetRoundTrip(t *testing.T) {
	sink := &recordingSink{}
	service, store, _ := newTestService(t, sink)
	physician := staffPrincipal("physician")

	id, err := service.Create(context.Background(), physician, CreateInput{
		RecordType: RecordTypePatient,
		PatientID:  uuid.New(),
		OrgID:      "org-1",
		Fields:     map[string]string{"given_name": "Ada", "ssn": "123-45-6789"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Stored values are ciphertext, never the submitted plaintext.
	stored := store.records[id]
	for name, value := range stored.Fields {
		if value == "Ada" || value == "123-45-6789" {
			t.Fatalf("field %s stored as plaintext", name)
		}
	}

	out, err := service.Get(context.Background(), physician, id, nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Fields["given_name"] != "Ada" || out.Fields["ssn"] != "123-45-6789" {
		t.Fatalf("fields = %v", out.Fields)
	}
}

func TestServiceCreateRejectsUnknownRecordType(t *testing.T) {
	sink := &recordingSink{}
	service, _, _ := newTestService(t, sink)

	_, err := service.Create(context.Background(), staffPrincipal("physician"), CreateInput{
		RecordType: "appointment",
		OrgID:      "org-1",
		Fields:     map[string]string{"slot": "morning"},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestServiceUpdateDeniedWritesNothing(t *testing.T) {
	sink := &recordingSink{}
	service, store, gateway := newTestService(t, sink)
	rec := encryptedRecord(t, gateway, service.fields, map[string]string{"given_name": "Ada"})
	store.records[rec.ID] = *rec

	err := service.Update(context.Background(), staffPrincipal("staff"), rec.ID, map[string]string{
		"given_name": "Grace",
		"ssn":        "987-65-4321",
	})
	if !errors.Is(err, shared.ErrNotPermitted) {
		t.Fatalf("err = %v, want ErrNotPermitted", err)
	}
	if len(store.updates) != 0 {
		t.Fatalf("denied write persisted: %v", store.updates)
	}
}

func TestServiceUpdateMergesCiphertexts(t *testing.T) {
	sink := &recordingSink{}
	service, store, gateway := newTestService(t, sink)
	rec := encryptedRecord(t, gateway, service.fields, map[string]string{"given_name": "Ada"})
	store.records[rec.ID] = *rec

	if err := service.Update(context.Background(), staffPrincipal("physician"), rec.ID, map[string]string{
		"given_name": "Grace",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	update := store.updates[rec.ID]
	if len(update) != 1 {
		t.Fatalf("updates = %v", update)
	}
	plaintext, err := gateway.Decrypt(context.Background(), service.fields.Describe(RecordTypePatient, "given_name"), update["given_name"])
	if err != nil || plaintext != "Grace" {
		t.Fatalf("decrypt update = %q, %v", plaintext, err)
	}
}

func TestServiceGetUnknownRecord(t *testing.T) {
	sink := &recordingSink{}
	service, _, _ := newTestService(t, sink)

	if _, err := service.Get(context.Background(), staffPrincipal("physician"), uuid.New(), nil); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
