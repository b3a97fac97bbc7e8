package users

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinovault/clinovault/internal/audit"
	"github.com/clinovault/clinovault/internal/policy"
	"github.com/clinovault/clinovault/internal/principal"
	"github.com/clinovault/clinovault/internal/shared"
)

// Store defines data access methods for users.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (User, error)
	List(ctx context.Context) ([]User, error)
	AssignRole(ctx context.Context, userID uuid.UUID, role policy.Role) error
	RevokeRole(ctx context.Context, userID uuid.UUID, role policy.Role) error
}

// Invalidator drops cached principal state after a role change. Implemented
// by the principal resolver.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Service handles user administration. It doubles as the directory the
// principal resolver consults: declared roles originate here and nowhere
// else. Administration itself is gated by a permission attribute and audited
// like any other regulated access.
type Service struct {
	store     Store
	hierarchy *policy.Hierarchy
	engine    *policy.Engine
	sink      audit.Sink

	// Invalidator is set after the principal resolver exists; the resolver
	// needs this service as its directory first. Nil disables invalidation.
	Invalidator Invalidator
}

// NewService builds a Service instance.
func NewService(store Store, hierarchy *policy.Hierarchy, engine *policy.Engine, sink audit.Sink) *Service {
	return &Service{store: store, hierarchy: hierarchy, engine: engine, sink: sink}
}

// FindPrincipal implements principal.Directory. Inactive accounts resolve to
// not-found so authentication fails without revealing the distinction.
func (s *Service) FindPrincipal(ctx context.Context, userID string) (principal.Principal, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return principal.Principal{}, shared.ErrNotFound
	}
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return principal.Principal{}, err
	}
	if !user.IsActive {
		return principal.Principal{}, shared.ErrNotFound
	}
	return principal.Principal{
		ID:    user.ID.String(),
		Email: user.Email,
		OrgID: user.OrgID,
		Roles: user.Roles,
	}, nil
}

// List returns all users. Gated and audited.
func (s *Service) List(ctx context.Context, p *principal.Principal) ([]User, error) {
	if err := s.authorize(ctx, p, ""); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

// Get returns one user. Gated and audited.
func (s *Service) Get(ctx context.Context, p *principal.Principal, id uuid.UUID) (User, error) {
	if err := s.authorize(ctx, p, id.String()); err != nil {
		return User{}, err
	}
	return s.store.FindByID(ctx, id)
}

// AssignRole grants a declared role and drops the target's cached principal
// so the change takes effect on their next request.
func (s *Service) AssignRole(ctx context.Context, p *principal.Principal, userID uuid.UUID, role policy.Role) error {
	if strings.TrimSpace(string(role)) == "" {
		return shared.ErrNotFound
	}
	if err := s.authorize(ctx, p, userID.String()); err != nil {
		return err
	}
	if _, err := s.store.FindByID(ctx, userID); err != nil {
		return err
	}
	if err := s.store.AssignRole(ctx, userID, role); err != nil {
		return err
	}
	if s.Invalidator != nil {
		s.Invalidator.Invalidate(ctx, userID.String())
	}
	return nil
}

// RevokeRole removes a declared role, invalidating the cache the same way.
func (s *Service) RevokeRole(ctx context.Context, p *principal.Principal, userID uuid.UUID, role policy.Role) error {
	if err := s.authorize(ctx, p, userID.String()); err != nil {
		return err
	}
	if err := s.store.RevokeRole(ctx, userID, role); err != nil {
		return err
	}
	if s.Invalidator != nil {
		s.Invalidator.Invalidate(ctx, userID.String())
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, p *principal.Principal, subjectID string) error {
	if p == nil {
		return shared.ErrNotAuthenticated
	}
	expanded := s.hierarchy.Expand(p.Roles)
	decision := s.engine.Evaluate(ctx, expanded, AttributeManage, nil, p.Ref())
	entry := audit.Entry{
		PrincipalID: p.ID,
		Roles:       expanded.Strings(),
		Attribute:   string(AttributeManage),
		SubjectType: "user",
		SubjectID:   subjectID,
		Outcome:     decision.Outcome,
		Reason:      decision.Reason,
	}
	if subjectID == "" {
		entry.SubjectType = ""
	}
	if err := s.sink.Record(ctx, entry); err != nil {
		return err
	}
	if !decision.Granted() {
		return shared.ErrNotPermitted
	}
	return nil
}
