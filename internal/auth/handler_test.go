package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinovault/clinovault/internal/auth"
	"github.com/clinovault/clinovault/internal/shared"
	_ "github.com/clinovault/clinovault/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]uuid.UUID
	removed  []string
}

func newStubRepo(user *auth.User) *stubRepo {
	return &stubRepo{user: user, sessions: make(map[string]uuid.UUID)}
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.removed = append(s.removed, id)
	return nil
}

func (s *stubRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	return auth.NewHandler(nil, auth.NewService(repo), sessionManager), sessionManager
}

func activeUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{
		ID:           uuid.New(),
		Email:        "user@clinic.test",
		PasswordHash: string(hashed),
		OrgID:        "org-1",
		IsActive:     true,
	}
}

func doLogin(t *testing.T, handler *auth.Handler, sessionManager *shared.SessionManager, body string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)
	if err := sessionManager.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res, sess
}

func TestLoginSuccess(t *testing.T) {
	user := activeUser(t, "correctpass")
	repo := newStubRepo(user)
	handler, sessionManager := newAuthHandler(t, repo)

	res, sess := doLogin(t, handler, sessionManager, `{"email":"user@clinic.test","password":"correctpass"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.UserID != user.ID.String() {
		t.Fatalf("user_id = %q, want %q", body.UserID, user.ID)
	}
	if sess.User() != user.ID.String() {
		t.Fatalf("session user = %q", sess.User())
	}
	if _, ok := repo.sessions[sess.ID]; !ok {
		t.Fatal("session not registered in postgres store")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := newStubRepo(activeUser(t, "correctpass"))
	handler, sessionManager := newAuthHandler(t, repo)

	res, sess := doLogin(t, handler, sessionManager, `{"email":"user@clinic.test","password":"wrongpass!"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if sess.User() != "" {
		t.Fatal("failed login must not bind a user to the session")
	}
	// The body for a bad password and an unknown account must be identical.
	other, _ := doLogin(t, handler, sessionManager, `{"email":"ghost@clinic.test","password":"whatever123"}`)
	if other.Code != http.StatusUnauthorized || other.Body.String() != res.Body.String() {
		t.Fatalf("credential failures must be indistinguishable: %q vs %q", res.Body.String(), other.Body.String())
	}
}

func TestLoginInactiveAccountIndistinguishable(t *testing.T) {
	user := activeUser(t, "correctpass")
	user.IsActive = false
	handler, sessionManager := newAuthHandler(t, newStubRepo(user))

	res, _ := doLogin(t, handler, sessionManager, `{"email":"user@clinic.test","password":"correctpass"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, newStubRepo(nil))

	res, _ := doLogin(t, handler, sessionManager, `{"email":"not-an-email","password":"x"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	user := activeUser(t, "correctpass")
	repo := newStubRepo(user)
	handler, sessionManager := newAuthHandler(t, repo)

	_, sess := doLogin(t, handler, sessionManager, `{"email":"user@clinic.test","password":"correctpass"}`)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionManager.CookieName(), Value: sess.ID})
	loaded, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), loaded)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	handler.HandleLogoutForTest(res, req)
	if err := sessionManager.Commit(ctx, res, req, loaded); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(repo.removed) != 1 || repo.removed[0] != sess.ID {
		t.Fatalf("removed = %v", repo.removed)
	}
}
