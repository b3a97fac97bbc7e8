// Package principal carries the authenticated actor through the evaluation
// pipeline as an explicit value. It is constructed once per request and
// passed by parameter, never resolved from ambient state, so two layers can
// never disagree about who is acting.
package principal

import "github.com/clinovault/clinovault/internal/policy"

// Principal is the authenticated actor for one request. Immutable after
// resolution.
type Principal struct {
	ID    string
	Email string
	OrgID string
	// Roles are the declared roles; expansion through the role hierarchy
	// happens at evaluation time.
	Roles []policy.Role
}

// Ref projects the principal down to what the policy engine needs.
func (p *Principal) Ref() policy.PrincipalRef {
	return policy.PrincipalRef{ID: p.ID, OrgID: p.OrgID}
}
