package policy

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ConfigFile is the declarative policy table: role implications plus the
// attribute -> authorized roles mapping. Loaded once at startup; any schema
// violation aborts process start.
type ConfigFile struct {
	Roles      map[string]RoleConfig      `yaml:"roles"`
	Attributes map[string]AttributeConfig `yaml:"attributes" validate:"required,min=1"`
}

// RoleConfig declares which roles a role implies.
type RoleConfig struct {
	Implies []string `yaml:"implies" validate:"dive,required"`
}

// AttributeConfig declares the authorized role set for one attribute and an
// optional relationship predicate applied to subject-sensitive evaluations.
type AttributeConfig struct {
	Roles     []string `yaml:"roles" validate:"required,min=1,dive,required"`
	Predicate string   `yaml:"predicate"`
}

// LoadConfig reads and validates the policy table from path.
func LoadConfig(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates raw YAML policy configuration.
func ParseConfig(data []byte) (*ConfigFile, error) {
	var cfg ConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("policy: parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("policy: invalid config: %w", err)
	}
	return &cfg, nil
}

// Build compiles the configuration into an immutable Hierarchy and Engine.
// Cycle detection and empty-role-set rejection both happen here, before the
// process ever serves a request.
func (c *ConfigFile) Build(predicates map[string]Predicate, logger *slog.Logger) (*Hierarchy, *Engine, error) {
	table := make(map[Role][]Role, len(c.Roles))
	for name, rc := range c.Roles {
		implied := make([]Role, 0, len(rc.Implies))
		for _, r := range rc.Implies {
			implied = append(implied, Role(r))
		}
		table[Role(name)] = implied
	}
	hierarchy, err := NewHierarchy(table)
	if err != nil {
		return nil, nil, err
	}

	rules := make(map[Attribute]Rule, len(c.Attributes))
	for name, ac := range c.Attributes {
		roles := make([]Role, 0, len(ac.Roles))
		for _, r := range ac.Roles {
			roles = append(roles, Role(r))
		}
		rules[Attribute(name)] = Rule{Roles: roles, Predicate: ac.Predicate}
	}
	engine, err := NewEngine(rules, predicates, logger)
	if err != nil {
		return nil, nil, err
	}
	return hierarchy, engine, nil
}
