package policy

import "sort"

// Role names a permission grouping granted to a principal.
type Role string

// Attribute names an atomic capability gating one field-level or
// record-level operation, e.g. "view-restricted-identifier".
type Attribute string

// Outcome of one permission evaluation.
type Outcome string

const (
	// OutcomeGranted means the evaluation allowed the operation.
	OutcomeGranted Outcome = "granted"
	// OutcomeDenied means the evaluation refused the operation.
	OutcomeDenied Outcome = "denied"
)

// PrincipalRef carries the minimum identity an evaluation needs. The full
// principal lives in the request scope; the engine only sees this projection.
type PrincipalRef struct {
	ID    string
	OrgID string
}

// Subject identifies the record an evaluation concerns.
type Subject struct {
	RecordType string
	RecordID   string
	PatientID  string
	OrgID      string
}

// Decision is the transient result of one evaluation. It is consumed
// immediately by the projector and the audit sink and never cached across
// requests.
type Decision struct {
	Attribute Attribute
	Subject   *Subject
	Outcome   Outcome
	Reason    string
}

// Granted reports whether the decision allows the operation.
func (d Decision) Granted() bool {
	return d.Outcome == OutcomeGranted
}

// RoleSet is an expanded, deduplicated set of roles.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s RoleSet) Has(role Role) bool {
	_, ok := s[role]
	return ok
}

// Sorted returns the roles in deterministic order, for audit entries and logs.
func (s RoleSet) Sorted() []Role {
	roles := make([]Role, 0, len(s))
	for r := range s {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Strings returns the sorted roles as plain strings.
func (s RoleSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, r := range sorted {
		out[i] = string(r)
	}
	return out
}
