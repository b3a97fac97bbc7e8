package schema

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/clinovault/clinovault/internal/policy"
)

// ConfigFile is the declarative field sensitivity table, one block per record
// type mapping field name to encryption class and required attributes.
type ConfigFile struct {
	RecordTypes map[string]RecordTypeConfig `yaml:"record_types" validate:"required,min=1"`
}

// RecordTypeConfig holds the field table for one record type.
type RecordTypeConfig struct {
	Fields map[string]FieldConfig `yaml:"fields" validate:"required,min=1"`
}

// FieldConfig is one field's sensitivity declaration.
type FieldConfig struct {
	Class EncryptionClass `yaml:"class" validate:"required"`
	Read  string          `yaml:"read" validate:"required"`
	Write string          `yaml:"write" validate:"required"`
}

// LoadConfig reads and validates the field map from path.
func LoadConfig(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates raw YAML field map configuration.
func ParseConfig(data []byte) (*ConfigFile, error) {
	var cfg ConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("schema: parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("schema: invalid config: %w", err)
	}
	return &cfg, nil
}

// Build compiles the configuration into an immutable Map.
func (c *ConfigFile) Build() (*Map, error) {
	recordTypes := make([]string, 0, len(c.RecordTypes))
	for rt := range c.RecordTypes {
		recordTypes = append(recordTypes, rt)
	}
	sort.Strings(recordTypes)

	var descriptors []FieldDescriptor
	for _, rt := range recordTypes {
		fields := c.RecordTypes[rt].Fields
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fc := fields[name]
			descriptors = append(descriptors, FieldDescriptor{
				RecordType:      rt,
				FieldName:       name,
				EncryptionClass: fc.Class,
				ReadAttribute:   policy.Attribute(fc.Read),
				WriteAttribute:  policy.Attribute(fc.Write),
			})
		}
	}
	return NewMap(descriptors)
}
