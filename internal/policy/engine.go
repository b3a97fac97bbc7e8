package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Predicate answers whether a context-specific relationship holds between a
// principal and a subject record, e.g. assigned-provider-to-patient. It is
// supplied by an external collaborator; the engine only dispatches to it.
type Predicate func(ctx context.Context, principal PrincipalRef, subject Subject) (bool, error)

// Rule is one row of the policy table: the roles authorized for an attribute,
// plus an optional relationship predicate name for subject-sensitive
// attributes.
type Rule struct {
	Roles     []Role
	Predicate string
}

// Engine is the permission decision function. The rule table is immutable
// after construction; Evaluate is safe for concurrent use.
type Engine struct {
	rules      map[Attribute]compiledRule
	predicates map[string]Predicate
	logger     *slog.Logger
}

type compiledRule struct {
	roles     RoleSet
	predicate Predicate
	predName  string
}

// Deny reasons recorded on audit entries. Externally every denial looks the
// same; these only appear in the audit trail and internal logs.
const (
	ReasonRoleMatch           = "role match"
	ReasonUnknownAttribute    = "unknown attribute"
	ReasonNoQualifyingRole    = "no qualifying role"
	ReasonRelationshipDenied  = "relationship predicate denied"
	ReasonRelationshipFailure = "relationship lookup unavailable"
)

// NewEngine compiles the rule table. Every attribute must name at least one
// authorized role, and every referenced predicate must be registered; both
// are load-time failures, never discovered per request.
func NewEngine(rules map[Attribute]Rule, predicates map[string]Predicate, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	compiled := make(map[Attribute]compiledRule, len(rules))
	for attr, rule := range rules {
		if len(rule.Roles) == 0 {
			return nil, fmt.Errorf("policy: attribute %q authorizes no roles", attr)
		}
		cr := compiledRule{roles: NewRoleSet(rule.Roles...)}
		if rule.Predicate != "" {
			pred, ok := predicates[rule.Predicate]
			if !ok {
				return nil, fmt.Errorf("policy: attribute %q references unknown predicate %q", attr, rule.Predicate)
			}
			cr.predicate = pred
			cr.predName = rule.Predicate
		}
		compiled[attr] = cr
	}
	return &Engine{rules: compiled, predicates: predicates, logger: logger}, nil
}

// Knows reports whether the attribute exists in the policy table. Used by
// startup cross-validation of the field sensitivity map.
func (e *Engine) Knows(attr Attribute) bool {
	_, ok := e.rules[attr]
	return ok
}

// Attributes returns every attribute in the table, sorted.
func (e *Engine) Attributes() []Attribute {
	attrs := make([]Attribute, 0, len(e.rules))
	for a := range e.rules {
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i] < attrs[j] })
	return attrs
}

// Evaluate decides whether the expanded role set may exercise the attribute
// against the optional subject. There is no fallthrough-allow branch: every
// path not explicitly granting ends in a denial. Multiple matching roles are
// combined by logical OR, so any qualifying role grants.
//
// A relationship lookup failure downgrades to deny rather than erroring the
// evaluation; an unavailable collaborator must never widen access.
func (e *Engine) Evaluate(ctx context.Context, roles RoleSet, attr Attribute, subject *Subject, principal PrincipalRef) Decision {
	rule, ok := e.rules[attr]
	if !ok {
		return Decision{Attribute: attr, Subject: subject, Outcome: OutcomeDenied, Reason: ReasonUnknownAttribute}
	}

	matched := false
	for role := range roles {
		if rule.roles.Has(role) {
			matched = true
			break
		}
	}
	if !matched {
		return Decision{Attribute: attr, Subject: subject, Outcome: OutcomeDenied, Reason: ReasonNoQualifyingRole}
	}

	if rule.predicate != nil && subject != nil {
		held, err := rule.predicate(ctx, principal, *subject)
		if err != nil {
			e.logger.Error("policy relationship lookup",
				slog.String("attribute", string(attr)),
				slog.String("predicate", rule.predName),
				slog.Any("error", err))
			return Decision{Attribute: attr, Subject: subject, Outcome: OutcomeDenied, Reason: ReasonRelationshipFailure}
		}
		if !held {
			return Decision{Attribute: attr, Subject: subject, Outcome: OutcomeDenied, Reason: ReasonRelationshipDenied}
		}
	}

	return Decision{Attribute: attr, Subject: subject, Outcome: OutcomeGranted, Reason: ReasonRoleMatch}
}

// SameOrgPredicate grants when the principal and subject carry the same
// non-empty organization identifier. Missing identifiers on either side deny.
func SameOrgPredicate(ctx context.Context, principal PrincipalRef, subject Subject) (bool, error) {
	if principal.OrgID == "" || subject.OrgID == "" {
		return false, nil
	}
	return principal.OrgID == subject.OrgID, nil
}
