package records

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/clinovault/clinovault/internal/audit"
	"github.com/clinovault/clinovault/internal/encryption"
	"github.com/clinovault/clinovault/internal/policy"
	"github.com/clinovault/clinovault/internal/principal"
	"github.com/clinovault/clinovault/internal/schema"
	"github.com/clinovault/clinovault/internal/shared"
)

// Metrics receives projection outcome observations. Implemented by the
// observability package; a nil Metrics disables collection.
type Metrics interface {
	ObserveDecision(recordType, outcome string)
	ObserveDecryptFailure(recordType string)
}

// Projector assembles outbound records field by field: resolve the field's
// read attribute, evaluate, audit the decision, and only then decrypt.
// Evaluations for distinct fields run concurrently; they share only read-only
// configuration. Every audit entry is durably recorded before the assembled
// projection is returned.
type Projector struct {
	hierarchy *policy.Hierarchy
	engine    *policy.Engine
	fields    *schema.Map
	gateway   encryption.Gateway
	sink      audit.Sink
	logger    *slog.Logger
	metrics   Metrics
	// fanout bounds concurrent field evaluations per request.
	fanout int
}

// NewProjector constructs a Projector.
func NewProjector(hierarchy *policy.Hierarchy, engine *policy.Engine, fields *schema.Map, gateway encryption.Gateway, sink audit.Sink, logger *slog.Logger, metrics Metrics) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{
		hierarchy: hierarchy,
		engine:    engine,
		fields:    fields,
		gateway:   gateway,
		sink:      sink,
		logger:    logger,
		metrics:   metrics,
		fanout:    4,
	}
}

// Project filters the record down to the fields the principal may see. An
// empty requested list means every stored field. Denied fields are omitted
// entirely; decryption failures are isolated per field. If any decision
// cannot be audited the whole projection fails instead.
func (p *Projector) Project(ctx context.Context, prin *principal.Principal, rec *Record, requested []string) (*FilteredRecord, error) {
	if prin == nil {
		return nil, shared.ErrNotAuthenticated
	}
	fields := normalizeFields(rec, requested)
	expanded := p.hierarchy.Expand(prin.Roles)
	roles := expanded.Strings()
	subject := rec.Subject()

	out := &FilteredRecord{
		ID:         rec.ID.String(),
		RecordType: rec.RecordType,
		Fields:     make(map[string]string, len(fields)),
	}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.fanout)
	for _, field := range fields {
		group.Go(func() error {
			descriptor := p.fields.Describe(rec.RecordType, field)
			decision := p.engine.Evaluate(groupCtx, expanded, descriptor.ReadAttribute, &subject, prin.Ref())
			if err := p.record(groupCtx, prin, roles, &subject, decision); err != nil {
				return err
			}
			if !decision.Granted() {
				return nil
			}

			ciphertext, ok := rec.Fields[field]
			if !ok {
				return nil
			}
			plaintext, err := p.gateway.Decrypt(groupCtx, descriptor, ciphertext)
			if err != nil {
				p.logger.Error("field decrypt",
					slog.String("record_type", rec.RecordType),
					slog.String("field", field),
					slog.Bool("key_unavailable", encryption.KeyUnavailable(err)),
					slog.Any("error", err))
				if p.metrics != nil {
					p.metrics.ObserveDecryptFailure(rec.RecordType)
				}
				mu.Lock()
				if out.FieldErrors == nil {
					out.FieldErrors = make(map[string]string)
				}
				out.FieldErrors[field] = "unavailable"
				mu.Unlock()
				return nil
			}
			mu.Lock()
			out.Fields[field] = plaintext
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AuthorizeWrite evaluates and audits every field update, then encrypts. Any
// denied field rejects the whole write before a single encrypt call happens;
// any encryption failure rejects the whole write too. There are no partial
// writes.
func (p *Projector) AuthorizeWrite(ctx context.Context, prin *principal.Principal, rec *Record, updates map[string]string) (map[string]string, error) {
	if prin == nil {
		return nil, shared.ErrNotAuthenticated
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: empty update", ErrValidation)
	}
	expanded := p.hierarchy.Expand(prin.Roles)
	roles := expanded.Strings()
	subject := rec.Subject()

	fields := make([]string, 0, len(updates))
	for field := range updates {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	denied := false
	for _, field := range fields {
		descriptor := p.fields.Describe(rec.RecordType, field)
		decision := p.engine.Evaluate(ctx, expanded, descriptor.WriteAttribute, &subject, prin.Ref())
		if err := p.record(ctx, prin, roles, &subject, decision); err != nil {
			return nil, err
		}
		if !decision.Granted() {
			denied = true
		}
	}
	if denied {
		return nil, shared.ErrNotPermitted
	}

	ciphertexts := make(map[string]string, len(fields))
	for _, field := range fields {
		descriptor := p.fields.Describe(rec.RecordType, field)
		ciphertext, err := p.gateway.Encrypt(ctx, descriptor, updates[field])
		if err != nil {
			p.logger.Error("field encrypt",
				slog.String("record_type", rec.RecordType),
				slog.String("field", field),
				slog.Any("error", err))
			return nil, fmt.Errorf("records: encrypt %s: %w", field, err)
		}
		ciphertexts[field] = ciphertext
	}
	return ciphertexts, nil
}

func (p *Projector) record(ctx context.Context, prin *principal.Principal, roles []string, subject *policy.Subject, decision policy.Decision) error {
	if p.metrics != nil {
		p.metrics.ObserveDecision(subject.RecordType, string(decision.Outcome))
	}
	return p.sink.Record(ctx, audit.Entry{
		PrincipalID: prin.ID,
		Roles:       roles,
		Attribute:   string(decision.Attribute),
		SubjectType: subject.RecordType,
		SubjectID:   subject.RecordID,
		Outcome:     decision.Outcome,
		Reason:      decision.Reason,
	})
}

// normalizeFields dedupes the requested list, defaulting to every stored
// field, in deterministic order.
func normalizeFields(rec *Record, requested []string) []string {
	if len(requested) == 0 {
		fields := make([]string, 0, len(rec.Fields))
		for field := range rec.Fields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		return fields
	}
	seen := make(map[string]struct{}, len(requested))
	fields := make([]string, 0, len(requested))
	for _, field := range requested {
		if field == "" {
			continue
		}
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
