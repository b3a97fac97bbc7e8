package schema

import (
	"fmt"
	"sort"

	"github.com/clinovault/clinovault/internal/policy"
)

// Map is the process-wide field sensitivity registry. Immutable after load;
// reads require no locking.
type Map struct {
	fields map[string]map[string]FieldDescriptor
}

// NewMap builds the registry from descriptors. Duplicate descriptors for the
// same (recordType, field) pair are a configuration error.
func NewMap(descriptors []FieldDescriptor) (*Map, error) {
	fields := make(map[string]map[string]FieldDescriptor)
	for _, d := range descriptors {
		if d.RecordType == "" || d.FieldName == "" {
			return nil, fmt.Errorf("schema: descriptor missing record type or field name")
		}
		if !d.EncryptionClass.Valid() {
			return nil, fmt.Errorf("schema: %s.%s has unknown encryption class %q", d.RecordType, d.FieldName, d.EncryptionClass)
		}
		if d.ReadAttribute == "" || d.WriteAttribute == "" {
			return nil, fmt.Errorf("schema: %s.%s missing read or write attribute", d.RecordType, d.FieldName)
		}
		byField, ok := fields[d.RecordType]
		if !ok {
			byField = make(map[string]FieldDescriptor)
			fields[d.RecordType] = byField
		}
		if _, dup := byField[d.FieldName]; dup {
			return nil, fmt.Errorf("schema: duplicate descriptor for %s.%s", d.RecordType, d.FieldName)
		}
		byField[d.FieldName] = d
	}
	return &Map{fields: fields}, nil
}

// Describe returns the descriptor for the field. A field without one resolves
// to a descriptor requiring AttributeRestricted for both operations, so a
// missing mapping denies instead of leaking.
func (m *Map) Describe(recordType, fieldName string) FieldDescriptor {
	if byField, ok := m.fields[recordType]; ok {
		if d, ok := byField[fieldName]; ok {
			return d
		}
	}
	return FieldDescriptor{
		RecordType:      recordType,
		FieldName:       fieldName,
		EncryptionClass: ClassOpaque,
		ReadAttribute:   AttributeRestricted,
		WriteAttribute:  AttributeRestricted,
	}
}

// Known reports whether an explicit descriptor exists.
func (m *Map) Known(recordType, fieldName string) bool {
	byField, ok := m.fields[recordType]
	if !ok {
		return false
	}
	_, ok = byField[fieldName]
	return ok
}

// ReadAttributeFor resolves the attribute required to view the field.
func (m *Map) ReadAttributeFor(recordType, fieldName string) policy.Attribute {
	return m.Describe(recordType, fieldName).ReadAttribute
}

// WriteAttributeFor resolves the attribute required to edit the field.
func (m *Map) WriteAttributeFor(recordType, fieldName string) policy.Attribute {
	return m.Describe(recordType, fieldName).WriteAttribute
}

// RecordTypes lists the registered record types, sorted.
func (m *Map) RecordTypes() []string {
	types := make([]string, 0, len(m.fields))
	for rt := range m.fields {
		types = append(types, rt)
	}
	sort.Strings(types)
	return types
}

// FieldsFor lists the registered field names for a record type, sorted.
func (m *Map) FieldsFor(recordType string) []string {
	byField := m.fields[recordType]
	names := make([]string, 0, len(byField))
	for name := range byField {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CrossValidate checks that every attribute a descriptor references exists in
// the policy table. Runs at startup; a missing mapping discovered at request
// time is a compliance defect, not an acceptable runtime condition.
func (m *Map) CrossValidate(engine *policy.Engine) error {
	for _, recordType := range m.RecordTypes() {
		for _, fieldName := range m.FieldsFor(recordType) {
			d := m.fields[recordType][fieldName]
			if !engine.Knows(d.ReadAttribute) {
				return fmt.Errorf("schema: %s.%s references unknown read attribute %q", recordType, fieldName, d.ReadAttribute)
			}
			if !engine.Knows(d.WriteAttribute) {
				return fmt.Errorf("schema: %s.%s references unknown write attribute %q", recordType, fieldName, d.WriteAttribute)
			}
		}
	}
	return nil
}
