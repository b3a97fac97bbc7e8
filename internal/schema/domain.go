package schema

import "github.com/clinovault/clinovault/internal/policy"

// EncryptionClass describes how a field's ciphertext is produced. The actual
// ciphers live behind the encryption gateway; this core treats the class as a
// routing property only.
type EncryptionClass string

const (
	// ClassEquality supports equality-searchable ciphertext.
	ClassEquality EncryptionClass = "equality"
	// ClassRange supports range-searchable ciphertext.
	ClassRange EncryptionClass = "range"
	// ClassOpaque is randomized, non-searchable ciphertext.
	ClassOpaque EncryptionClass = "opaque"
)

// Valid reports whether the class is one of the three known kinds.
func (c EncryptionClass) Valid() bool {
	switch c {
	case ClassEquality, ClassRange, ClassOpaque:
		return true
	}
	return false
}

// AttributeRestricted gates fields that have no descriptor. Policy tables
// grant it only to break-glass roles, so an unmapped field stays unreadable
// and unwritable for everyone else: fail closed, never open.
const AttributeRestricted policy.Attribute = "restricted-override"

// FieldDescriptor is the per-field sensitivity configuration for one record
// type.
type FieldDescriptor struct {
	RecordType      string
	FieldName       string
	EncryptionClass EncryptionClass
	ReadAttribute   policy.Attribute
	WriteAttribute  policy.Attribute
}
