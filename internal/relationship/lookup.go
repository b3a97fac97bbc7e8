// Package relationship answers whether a context-specific relationship holds
// between a principal and a subject record, e.g. assigned-provider-to-patient.
// The policy engine consumes it through named predicates; it never widens a
// decision, only downgrades tentative grants.
package relationship

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinovault/clinovault/internal/policy"
)

// Store is the persistence contract for care team membership.
type Store interface {
	OnCareTeam(ctx context.Context, providerID, patientID string) (bool, error)
}

// Lookup resolves relationship predicates, with a short-lived redis cache in
// front of the store. Cache misses on error fall through to the store.
type Lookup struct {
	store    Store
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewLookup constructs a Lookup. The cache is optional.
func NewLookup(store Store, cache *redis.Client, cacheTTL time.Duration, logger *slog.Logger) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{store: store, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// CareTeamPredicate reports whether the principal is an assigned provider for
// the subject's patient. A subject without a patient identity denies.
func (l *Lookup) CareTeamPredicate(ctx context.Context, principal policy.PrincipalRef, subject policy.Subject) (bool, error) {
	if subject.PatientID == "" {
		return false, nil
	}
	key := fmt.Sprintf("careteam:%s:%s", principal.ID, subject.PatientID)
	if l.cache != nil {
		value, err := l.cache.Get(ctx, key).Result()
		if err == nil {
			return value == "1", nil
		}
		if !errors.Is(err, redis.Nil) {
			l.logger.Warn("relationship cache read", slog.Any("error", err))
		}
	}

	held, err := l.store.OnCareTeam(ctx, principal.ID, subject.PatientID)
	if err != nil {
		return false, err
	}
	if l.cache != nil {
		value := "0"
		if held {
			value = "1"
		}
		if err := l.cache.Set(ctx, key, value, l.cacheTTL).Err(); err != nil {
			l.logger.Warn("relationship cache write", slog.Any("error", err))
		}
	}
	return held, nil
}

// Predicates returns the named predicate table handed to the policy engine at
// startup. SameOrg needs no collaborator and lives in the policy package.
func (l *Lookup) Predicates() map[string]policy.Predicate {
	return map[string]policy.Predicate{
		"care-team": l.CareTeamPredicate,
		"same-org":  policy.SameOrgPredicate,
	}
}
