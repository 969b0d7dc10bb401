package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/dependable-calls/dce/internal/auth"
	"github.com/dependable-calls/dce/internal/shared"
	_ "github.com/dependable-calls/dce/testing"
)

type stubRepo struct {
	user   *auth.User
	role   string
	nextID int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateUser(ctx context.Context, email, passwordHash, fullName, role string) (int64, error) {
	if s.user != nil && s.user.Email == email {
		return 0, auth.ErrEmailTaken
	}
	s.nextID++
	s.user = &auth.User{ID: s.nextID, Email: email, PasswordHash: passwordHash, FullName: fullName, IsActive: true}
	s.role = role
	return s.nextID, nil
}

func (s *stubRepo) ResolveRole(ctx context.Context, userID int64) (string, error) {
	return s.role, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auth.NewHandler(logger, auth.NewService(repo), sessionManager, csrfManager)
	return handler, sessionManager
}

func withSession(t *testing.T, sm *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func TestSignup(t *testing.T) {
	handler, _ := newAuthHandler(t, &stubRepo{})

	body := `{"email":"supplier@test.local","password":"correcthorse","full_name":"Test Supplier","role":"supplier"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.HandleSignupForTest(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), "supplier@test.local") {
		t.Fatalf("expected created user in body")
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.DefaultCost)
	repo := &stubRepo{user: &auth.User{ID: 1, Email: "taken@test.local", PasswordHash: string(hashed), IsActive: true}, role: auth.RoleBuyer}
	handler, _ := newAuthHandler(t, repo)

	body := `{"email":"taken@test.local","password":"correcthorse","full_name":"Dup","role":"buyer"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.HandleSignupForTest(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestSignupRejectsAdminRole(t *testing.T) {
	handler, _ := newAuthHandler(t, &stubRepo{})

	body := `{"email":"sneaky@test.local","password":"correcthorse","full_name":"Sneaky","role":"admin"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.HandleSignupForTest(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestLogin(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "buyer@test.local", PasswordHash: string(hashed), IsActive: true}, role: auth.RoleBuyer}
	handler, sessionManager := newAuthHandler(t, repo)

	body := `{"email":"buyer@test.local","password":"correcthorse"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, sess := withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)
	if err := sessionManager.Commit(req.Context(), res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var out struct {
		Authenticated bool   `json:"authenticated"`
		Role          string `json:"role"`
		CSRFToken     string `json:"csrf_token"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.Authenticated {
		t.Fatalf("expected authenticated session")
	}
	if out.Role != auth.RoleBuyer {
		t.Fatalf("expected buyer role, got %q", out.Role)
	}
	if out.CSRFToken == "" {
		t.Fatalf("expected csrf token in login response")
	}
	if sess.User() != "7" {
		t.Fatalf("expected session user 7, got %q", sess.User())
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.DefaultCost)
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "buyer@test.local", PasswordHash: string(hashed), IsActive: true}, role: auth.RoleBuyer}
	handler, sessionManager := newAuthHandler(t, repo)

	body := `{"email":"buyer@test.local","password":"wrongwrongwrong"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, _ = withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.DefaultCost)
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "buyer@test.local", PasswordHash: string(hashed), IsActive: false}, role: auth.RoleBuyer}
	handler, sessionManager := newAuthHandler(t, repo)

	body := `{"email":"buyer@test.local","password":"correcthorse"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, _ = withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestSessionUnauthenticated(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req, _ = withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleSessionForTest(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"authenticated":false`) {
		t.Fatalf("expected unauthenticated body, got %s", res.Body.String())
	}
	if !strings.Contains(res.Body.String(), `"csrf_token"`) {
		t.Fatalf("expected csrf token for anonymous client, got %s", res.Body.String())
	}
}

func TestSessionRoundTrip(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.DefaultCost)
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "buyer@test.local", PasswordHash: string(hashed), IsActive: true}, role: auth.RoleBuyer}
	handler, sessionManager := newAuthHandler(t, repo)

	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"buyer@test.local","password":"correcthorse"}`))
	loginReq.Header.Set("Content-Type", "application/json")
	loginReq, loginSess := withSession(t, sessionManager, loginReq)
	loginRes := httptest.NewRecorder()
	handler.HandleLoginForTest(loginRes, loginReq)
	if err := sessionManager.Commit(loginReq.Context(), loginRes, loginReq, loginSess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	if loginRes.Code != http.StatusOK {
		t.Fatalf("login failed: %d", loginRes.Code)
	}

	// Attach session cookie manually.
	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: sessionManager.CookieName(), Value: loginSess.ID})
	req, _ = withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleSessionForTest(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), "buyer@test.local") {
		t.Fatalf("expected user in session body")
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.DefaultCost)
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "buyer@test.local", PasswordHash: string(hashed), IsActive: true}, role: auth.RoleBuyer}
	handler, sessionManager := newAuthHandler(t, repo)

	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"buyer@test.local","password":"correcthorse"}`))
	loginReq.Header.Set("Content-Type", "application/json")
	loginReq, loginSess := withSession(t, sessionManager, loginReq)
	loginRes := httptest.NewRecorder()
	handler.HandleLoginForTest(loginRes, loginReq)
	if err := sessionManager.Commit(loginReq.Context(), loginRes, loginReq, loginSess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	logoutReq := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logoutReq.AddCookie(&http.Cookie{Name: sessionManager.CookieName(), Value: loginSess.ID})
	logoutReq, logoutSess := withSession(t, sessionManager, logoutReq)
	logoutRes := httptest.NewRecorder()
	handler.HandleLogoutForTest(logoutRes, logoutReq)
	if err := sessionManager.Commit(logoutReq.Context(), logoutRes, logoutReq, logoutSess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if logoutRes.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", logoutRes.Code)
	}

	// A follow-up request with the old cookie must be unauthenticated.
	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: sessionManager.CookieName(), Value: loginSess.ID})
	req, _ = withSession(t, sessionManager, req)
	res := httptest.NewRecorder()
	handler.HandleSessionForTest(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", res.Code)
	}
}
