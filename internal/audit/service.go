package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinovault/clinovault/internal/policy"
	"github.com/clinovault/clinovault/internal/principal"
	"github.com/clinovault/clinovault/internal/shared"
)

// AttributeQuery gates read access to the audit trail itself. The trail
// records decisions about the trail the same way it records everything else.
const AttributeQuery policy.Attribute = "query-audit-log"

// Sink receives one entry per permission decision, granted or denied.
// Implementations must persist synchronously; failure to persist escalates to
// the caller.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// Store is the persistence contract the service depends on.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Window(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error)
	All(ctx context.Context, filters Filters) ([]Entry, error)
}

// Metrics menerima observasi durasi penulisan entri audit.
type Metrics interface {
	ObserveAuditWrite(d time.Duration)
}

// Service mengoordinasikan pencatatan dan pembacaan jejak audit.
type Service struct {
	store     Store
	hierarchy *policy.Hierarchy
	engine    *policy.Engine
	logger    *slog.Logger
	metrics   Metrics
}

// NewService membuat service audit baru. Metrics boleh nil.
func NewService(store Store, hierarchy *policy.Hierarchy, engine *policy.Engine, logger *slog.Logger, metrics Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, hierarchy: hierarchy, engine: engine, logger: logger, metrics: metrics}
}

// Record persists the entry. Any persistence failure is surfaced as
// ErrAuditUnavailable so the surrounding request aborts instead of disclosing
// an unaudited decision.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if entry.PrincipalID == "" || entry.Attribute == "" {
		return fmt.Errorf("audit: entry requires principal and attribute")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	start := time.Now()
	err := s.store.Append(ctx, entry)
	if s.metrics != nil {
		s.metrics.ObserveAuditWrite(time.Since(start))
	}
	if err != nil {
		s.logger.Error("audit append", slog.Any("error", err))
		return fmt.Errorf("%w: %w", shared.ErrAuditUnavailable, err)
	}
	return nil
}

// Query mengambil data audit dengan paging. Access to the trail is itself a
// policy decision and is itself recorded.
func (s *Service) Query(ctx context.Context, p *principal.Principal, filters Filters) (Result, error) {
	if p == nil {
		return Result{}, shared.ErrNotAuthenticated
	}
	if err := s.authorize(ctx, p); err != nil {
		return Result{}, err
	}

	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	entries, err := s.store.Window(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: entries, Paging: paging}, nil
}

// Export mengambil seluruh entri tanpa paging untuk pelaporan kepatuhan.
func (s *Service) Export(ctx context.Context, p *principal.Principal, filters Filters) ([]Entry, error) {
	if p == nil {
		return nil, shared.ErrNotAuthenticated
	}
	if err := s.authorize(ctx, p); err != nil {
		return nil, err
	}
	return s.store.All(ctx, filters)
}

func (s *Service) authorize(ctx context.Context, p *principal.Principal) error {
	expanded := s.hierarchy.Expand(p.Roles)
	decision := s.engine.Evaluate(ctx, expanded, AttributeQuery, nil, p.Ref())
	if err := s.Record(ctx, Entry{
		PrincipalID: p.ID,
		Roles:       expanded.Strings(),
		Attribute:   string(AttributeQuery),
		Outcome:     decision.Outcome,
		Reason:      decision.Reason,
	}); err != nil {
		return err
	}
	if !decision.Granted() {
		return shared.ErrNotPermitted
	}
	return nil
}
