package principal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinovault/clinovault/internal/policy"
	"github.com/clinovault/clinovault/internal/shared"
)

// Directory resolves a user identifier to its identity and declared roles.
// Implemented by the users package against postgres.
type Directory interface {
	FindPrincipal(ctx context.Context, userID string) (Principal, error)
}

// Resolver turns the request session into a Principal. Resolution failure is
// an authentication error and short-circuits the pipeline before any
// permission evaluation runs.
type Resolver struct {
	directory Directory
	cache     *redis.Client
	cacheTTL  time.Duration
	logger    *slog.Logger
}

// NewResolver constructs a Resolver. The redis cache is optional; with a nil
// client every resolution hits the directory.
func NewResolver(directory Directory, cache *redis.Client, cacheTTL time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{directory: directory, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

type cachedPrincipal struct {
	Email string   `json:"email"`
	OrgID string   `json:"org_id"`
	Roles []string `json:"roles"`
}

// Resolve extracts the session from context and loads the principal behind
// it. Role and identity state can change between requests, so the cache TTL
// is kept short.
func (r *Resolver) Resolve(ctx context.Context) (*Principal, error) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil || sess.User() == "" {
		return nil, shared.ErrNotAuthenticated
	}
	userID := sess.User()

	if p, ok := r.fromCache(ctx, userID); ok {
		return p, nil
	}

	resolved, err := r.directory.FindPrincipal(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotAuthenticated
		}
		return nil, err
	}
	r.toCache(ctx, userID, &resolved)
	return &resolved, nil
}

func (r *Resolver) fromCache(ctx context.Context, userID string) (*Principal, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, err := r.cache.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("principal cache read", slog.Any("error", err))
		}
		return nil, false
	}
	var cached cachedPrincipal
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false
	}
	roles := make([]policy.Role, 0, len(cached.Roles))
	for _, role := range cached.Roles {
		roles = append(roles, policy.Role(role))
	}
	return &Principal{ID: userID, Email: cached.Email, OrgID: cached.OrgID, Roles: roles}, true
}

func (r *Resolver) toCache(ctx context.Context, userID string, p *Principal) {
	if r.cache == nil {
		return
	}
	roles := make([]string, 0, len(p.Roles))
	for _, role := range p.Roles {
		roles = append(roles, string(role))
	}
	data, err := json.Marshal(cachedPrincipal{Email: p.Email, OrgID: p.OrgID, Roles: roles})
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(userID), data, r.cacheTTL).Err(); err != nil {
		r.logger.Warn("principal cache write", slog.Any("error", err))
	}
}

// Invalidate drops the cached entry after role assignments change.
func (r *Resolver) Invalidate(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, cacheKey(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Warn("principal cache invalidate", slog.Any("error", err))
	}
}

func cacheKey(userID string) string {
	return "principal:" + userID
}
