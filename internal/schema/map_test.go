package schema

import (
	"reflect"
	"strings"
	"testing"

	"github.com/clinovault/clinovault/internal/policy"
)

const sampleFieldMap = `
record_types:
  patient:
    fields:
      given_name:
        class: equality
        read: view-demographics
        write: edit-demographics
      ssn:
        class: equality
        read: view-restricted-identifier
        write: edit-restricted-identifier
      date_of_birth:
        class: range
        read: view-demographics
        write: edit-demographics
      clinical_notes:
        class: opaque
        read: view-clinical-data
        write: edit-clinical-data
`

func buildSampleMap(t *testing.T) *Map {
	t.Helper()
	cfg, err := ParseConfig([]byte(sampleFieldMap))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m, err := cfg.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return m
}

func TestDescribeKnownField(t *testing.T) {
	m := buildSampleMap(t)
	d := m.Describe("patient", "ssn")
	if d.EncryptionClass != ClassEquality {
		t.Fatalf("expected equality class, got %s", d.EncryptionClass)
	}
	if d.ReadAttribute != "view-restricted-identifier" {
		t.Fatalf("unexpected read attribute %s", d.ReadAttribute)
	}
	if m.ReadAttributeFor("patient", "ssn") != "view-restricted-identifier" {
		t.Fatalf("unexpected read attribute")
	}
	if m.WriteAttributeFor("patient", "clinical_notes") != "edit-clinical-data" {
		t.Fatalf("unexpected write attribute")
	}
}

func TestDescribeUnknownFieldFailsClosed(t *testing.T) {
	m := buildSampleMap(t)
	d := m.Describe("patient", "undocumented_field")
	if d.ReadAttribute != AttributeRestricted || d.WriteAttribute != AttributeRestricted {
		t.Fatalf("unmapped field must require the restricted attribute, got %+v", d)
	}
	if m.Known("patient", "undocumented_field") {
		t.Fatalf("unmapped field reported as known")
	}
}

func TestNewMapRejectsDuplicates(t *testing.T) {
	_, err := NewMap([]FieldDescriptor{
		{RecordType: "patient", FieldName: "ssn", EncryptionClass: ClassEquality, ReadAttribute: "a", WriteAttribute: "b"},
		{RecordType: "patient", FieldName: "ssn", EncryptionClass: ClassOpaque, ReadAttribute: "a", WriteAttribute: "b"},
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate descriptor error, got %v", err)
	}
}

func TestNewMapRejectsUnknownClass(t *testing.T) {
	_, err := NewMap([]FieldDescriptor{
		{RecordType: "patient", FieldName: "ssn", EncryptionClass: "homomorphic", ReadAttribute: "a", WriteAttribute: "b"},
	})
	if err == nil {
		t.Fatalf("expected unknown class error")
	}
}

func TestCrossValidate(t *testing.T) {
	m := buildSampleMap(t)

	engine, err := policy.NewEngine(map[policy.Attribute]policy.Rule{
		"view-demographics":          {Roles: []policy.Role{"clinical-staff"}},
		"edit-demographics":          {Roles: []policy.Role{"clinical-staff"}},
		"view-restricted-identifier": {Roles: []policy.Role{"clinician-full"}},
		"edit-restricted-identifier": {Roles: []policy.Role{"clinician-full"}},
		"view-clinical-data":         {Roles: []policy.Role{"clinician"}},
		"edit-clinical-data":         {Roles: []policy.Role{"clinician"}},
	}, nil, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := m.CrossValidate(engine); err != nil {
		t.Fatalf("cross validate: %v", err)
	}
}

func TestCrossValidateNamesOffendingField(t *testing.T) {
	m := buildSampleMap(t)
	engine, err := policy.NewEngine(map[policy.Attribute]policy.Rule{
		"view-demographics": {Roles: []policy.Role{"clinical-staff"}},
	}, nil, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	err = m.CrossValidate(engine)
	if err == nil {
		t.Fatalf("expected missing attribute error")
	}
	if !strings.Contains(err.Error(), "patient") {
		t.Fatalf("error must name the record type: %v", err)
	}
}

func TestBuildIdempotent(t *testing.T) {
	first := buildSampleMap(t)
	second := buildSampleMap(t)
	if !reflect.DeepEqual(first.RecordTypes(), second.RecordTypes()) {
		t.Fatalf("record types differ across identical loads")
	}
	for _, rt := range first.RecordTypes() {
		if !reflect.DeepEqual(first.FieldsFor(rt), second.FieldsFor(rt)) {
			t.Fatalf("fields differ for %s", rt)
		}
		for _, f := range first.FieldsFor(rt) {
			if first.Describe(rt, f) != second.Describe(rt, f) {
				t.Fatalf("descriptor differs for %s.%s", rt, f)
			}
		}
	}
}
