package principal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/clinovault/clinovault/internal/policy"
	"github.com/clinovault/clinovault/internal/shared"
	_ "github.com/clinovault/clinovault/testing"
)

type stubDirectory struct {
	principals map[string]Principal
	calls      int
	err        error
}

func (d *stubDirectory) FindPrincipal(ctx context.Context, userID string) (Principal, error) {
	d.calls++
	if d.err != nil {
		return Principal{}, d.err
	}
	p, ok := d.principals[userID]
	if !ok {
		return Principal{}, shared.ErrNotFound
	}
	return p, nil
}

func newCacheClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func sessionContext(t *testing.T, client *redis.Client, userID string) context.Context {
	t.Helper()
	sm := shared.NewSessionManager(client, "clinovault_session", "test-secret", time.Hour, false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	if userID != "" {
		sess.SetUser(userID)
	}
	return shared.ContextWithSession(context.Background(), sess)
}

func TestResolveReturnsDirectoryPrincipal(t *testing.T) {
	client := newCacheClient(t)
	dir := &stubDirectory{principals: map[string]Principal{
		"user-1": {ID: "user-1", Email: "nurse@clinic.test", OrgID: "org-1", Roles: []policy.Role{"nurse"}},
	}}
	resolver := NewResolver(dir, client, time.Minute, nil)

	p, err := resolver.Resolve(sessionContext(t, client, "user-1"))
	require.NoError(t, err)
	require.Equal(t, "user-1", p.ID)
	require.Equal(t, "org-1", p.OrgID)
	require.Equal(t, []policy.Role{"nurse"}, p.Roles)
}

func TestResolveCachesSecondLookup(t *testing.T) {
	client := newCacheClient(t)
	dir := &stubDirectory{principals: map[string]Principal{
		"user-1": {ID: "user-1", Email: "nurse@clinic.test", OrgID: "org-1", Roles: []policy.Role{"nurse"}},
	}}
	resolver := NewResolver(dir, client, time.Minute, nil)
	ctx := sessionContext(t, client, "user-1")

	_, err := resolver.Resolve(ctx)
	require.NoError(t, err)
	p, err := resolver.Resolve(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, dir.calls)
	require.Equal(t, "org-1", p.OrgID)
}

func TestInvalidateForcesDirectoryLookup(t *testing.T) {
	client := newCacheClient(t)
	dir := &stubDirectory{principals: map[string]Principal{
		"user-1": {ID: "user-1", Email: "nurse@clinic.test", OrgID: "org-1", Roles: []policy.Role{"nurse"}},
	}}
	resolver := NewResolver(dir, client, time.Minute, nil)
	ctx := sessionContext(t, client, "user-1")

	_, err := resolver.Resolve(ctx)
	require.NoError(t, err)

	// Role assignment changed; stale grants must not survive the flush.
	dir.principals["user-1"] = Principal{ID: "user-1", Email: "nurse@clinic.test", OrgID: "org-1", Roles: []policy.Role{"nurse", "security-officer"}}
	resolver.Invalidate(ctx, "user-1")

	p, err := resolver.Resolve(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, dir.calls)
	require.Len(t, p.Roles, 2)
}

func TestResolveWithoutSessionFailsClosed(t *testing.T) {
	client := newCacheClient(t)
	resolver := NewResolver(&stubDirectory{}, client, time.Minute, nil)

	_, err := resolver.Resolve(context.Background())
	require.ErrorIs(t, err, shared.ErrNotAuthenticated)

	_, err = resolver.Resolve(sessionContext(t, client, ""))
	require.ErrorIs(t, err, shared.ErrNotAuthenticated)
}

func TestResolveUnknownUserIsAuthenticationFailure(t *testing.T) {
	client := newCacheClient(t)
	resolver := NewResolver(&stubDirectory{principals: map[string]Principal{}}, client, time.Minute, nil)

	_, err := resolver.Resolve(sessionContext(t, client, "ghost"))
	require.ErrorIs(t, err, shared.ErrNotAuthenticated)
}

func TestRequireRejectsAnonymousRequests(t *testing.T) {
	client := newCacheClient(t)
	resolver := NewResolver(&stubDirectory{}, client, time.Minute, nil)
	mw := Middleware{Resolver: resolver}

	handler := mw.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a principal")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/records/1", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireInjectsPrincipal(t *testing.T) {
	client := newCacheClient(t)
	dir := &stubDirectory{principals: map[string]Principal{
		"user-1": {ID: "user-1", Email: "nurse@clinic.test", OrgID: "org-1", Roles: []policy.Role{"nurse"}},
	}}
	resolver := NewResolver(dir, client, time.Minute, nil)
	mw := Middleware{Resolver: resolver}

	var seen *Principal
	handler := mw.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/records/1", nil)
	req = req.WithContext(sessionContext(t, client, "user-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "user-1", seen.ID)
}

func TestResolveDirectoryErrorPropagates(t *testing.T) {
	client := newCacheClient(t)
	dirErr := errors.New("directory down")
	resolver := NewResolver(&stubDirectory{err: dirErr}, client, time.Minute, nil)

	_, err := resolver.Resolve(sessionContext(t, client, "user-1"))
	require.ErrorIs(t, err, dirErr)
}
