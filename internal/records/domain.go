package records

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinovault/clinovault/internal/policy"
)

// RecordTypePatient is the record type shipped in the default field map.
const RecordTypePatient = "patient"

// ErrValidation indicates invalid input.
var ErrValidation = errors.New("records: invalid input")

// Record is a stored regulated record. Field values are ciphertext from the
// encryption gateway; plaintext only ever exists inside a granted projection.
type Record struct {
	ID         uuid.UUID
	RecordType string
	PatientID  uuid.UUID
	OrgID      string
	Fields     map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Subject projects the record down to what a policy evaluation needs. A
// record without a patient keeps an empty PatientID so relationship
// predicates deny rather than match the zero UUID.
func (r *Record) Subject() policy.Subject {
	patientID := ""
	if r.PatientID != uuid.Nil {
		patientID = r.PatientID.String()
	}
	return policy.Subject{
		RecordType: r.RecordType,
		RecordID:   r.ID.String(),
		PatientID:  patientID,
		OrgID:      r.OrgID,
	}
}

// FilteredRecord is the outbound projection. A field the principal may not
// see has no key here at all: not null, not a redaction marker, because a
// present-but-empty "ssn" key still confirms the field exists.
type FilteredRecord struct {
	ID         string            `json:"id"`
	RecordType string            `json:"record_type"`
	Fields     map[string]string `json:"fields"`
	// FieldErrors lists granted fields whose decryption failed, with a
	// generic reason. Failures are isolated per field; the projection as a
	// whole still succeeds.
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}
