package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	signUpFn  func(ctx context.Context, in auth.SignUpInput) (*auth.Result, error)
	signInFn  func(ctx context.Context, email, password string) (*auth.Result, error)
	signOutFn func(ctx context.Context, token string) error
}

func (m *mockAuthService) SignUp(ctx context.Context, in auth.SignUpInput) (*auth.Result, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, in)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string) (*auth.Result, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, model.ErrInvalidCredentials
}

func (m *mockAuthService) SignOut(ctx context.Context, token string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, token)
	}
	return nil
}

var testExpiresAt = time.Date(2030, 1, 8, 0, 0, 0, 0, time.UTC)

func testResult(email string, role model.Role) *auth.Result {
	return &auth.Result{
		User: &model.User{
			ID:           "11111111-1111-1111-1111-111111111111",
			Email:        email,
			Name:         "Alice",
			PasswordHash: "$2a$10$secret-hash",
			CreatedAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Role: role,
		Session: &model.Session{
			ID:        "session-row-1",
			Token:     "plain-token-abc",
			ExpiresAt: testExpiresAt,
		},
	}
}

func newTestAuthHandler(svc AuthServiceInterface) *AuthHandler {
	h := NewAuthHandler(svc, AuthHandlerConfig{CookieSecure: true})
	h.now = func() time.Time { return testExpiresAt.Add(-time.Hour) }
	return h
}

func jsonBody(t *testing.T, v any) *strings.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	return strings.NewReader(string(b))
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- POST /api/auth/signup ---

func TestAuthHandler_SignUp_Success_ReturnsUserAndSession(t *testing.T) {
	var got auth.SignUpInput
	svc := &mockAuthService{
		signUpFn: func(ctx context.Context, in auth.SignUpInput) (*auth.Result, error) {
			got = in
			return testResult(in.Email, model.RoleUser), nil
		},
	}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", jsonBody(t, map[string]string{
		"email": "alice@example.com", "password": "pw123456", "fullName": "Alice",
	}))
	w := httptest.NewRecorder()
	h.SignUp(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	if got.Email != "alice@example.com" || got.Password != "pw123456" || got.FullName != "Alice" {
		t.Errorf("service input = %+v", got)
	}

	var body authResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.User.Email != "alice@example.com" {
		t.Errorf("user.email = %q", body.User.Email)
	}
	if body.User.Role != "user" {
		t.Errorf("user.role = %q, want user", body.User.Role)
	}
	if body.Session.Token != "plain-token-abc" {
		t.Errorf("session.token = %q", body.Session.Token)
	}
	if !body.Session.ExpiresAt.Equal(testExpiresAt) {
		t.Errorf("session.expiresAt = %v, want %v", body.Session.ExpiresAt, testExpiresAt)
	}
	if strings.Contains(w.Body.String(), "secret-hash") {
		t.Error("password hash must not be serialized")
	}
}

func TestAuthHandler_SignUp_SetsHttpOnlySessionCookie(t *testing.T) {
	svc := &mockAuthService{
		signUpFn: func(ctx context.Context, in auth.SignUpInput) (*auth.Result, error) {
			return testResult(in.Email, model.RoleUser), nil
		},
	}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", jsonBody(t, map[string]string{
		"email": "alice@example.com", "password": "pw123456",
	}))
	w := httptest.NewRecorder()
	h.SignUp(w, req)

	c := findCookie(w.Result(), middleware.SessionCookieName)
	if c == nil {
		t.Fatal("expected session cookie to be set")
	}
	if c.Value != "plain-token-abc" {
		t.Errorf("cookie value = %q, want the issued token", c.Value)
	}
	if !c.HttpOnly || !c.Secure {
		t.Errorf("cookie HttpOnly=%v Secure=%v, want both true", c.HttpOnly, c.Secure)
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", c.SameSite)
	}
	if c.MaxAge != 3600 {
		t.Errorf("MaxAge = %d, want 3600 (remaining session lifetime)", c.MaxAge)
	}
}

func TestAuthHandler_SignUp_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantAPI  string
	}{
		{"duplicate email", model.ErrDuplicateEmail, http.StatusConflict, model.ErrCodeDuplicateEmail},
		{"validation", model.NewValidationError("email"), http.StatusBadRequest, model.ErrCodeValidation},
		{"storage", fmt.Errorf("%w: pool exhausted", model.ErrStorage), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				signUpFn: func(ctx context.Context, in auth.SignUpInput) (*auth.Result, error) {
					return nil, tt.err
				},
			}
			h := newTestAuthHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", jsonBody(t, map[string]string{
				"email": "alice@example.com", "password": "pw123456",
			}))
			w := httptest.NewRecorder()
			h.SignUp(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			body := decodeAPIError(t, w)
			if body.Code != tt.wantAPI {
				t.Errorf("code = %q, want %q", body.Code, tt.wantAPI)
			}
			if strings.Contains(body.Message, "pool exhausted") {
				t.Error("internal error detail must not reach the client")
			}
			if findCookie(w.Result(), middleware.SessionCookieName) != nil {
				t.Error("no session cookie should be set on failure")
			}
		})
	}
}

func TestAuthHandler_SignUp_MalformedJSON_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	for _, body := range []string{"{", `{"email": 1}`, `{"email":"a@example.com","role":"admin"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.SignUp(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
	}
}

// --- POST /api/auth/signin ---

func TestAuthHandler_SignIn_Success(t *testing.T) {
	svc := &mockAuthService{
		signInFn: func(ctx context.Context, email, password string) (*auth.Result, error) {
			if email != "alice@example.com" || password != "pw123456" {
				t.Errorf("credentials = %q/%q", email, password)
			}
			return testResult(email, model.RoleModerator), nil
		},
	}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", jsonBody(t, map[string]string{
		"email": "alice@example.com", "password": "pw123456",
	}))
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body authResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.User.Role != "moderator" {
		t.Errorf("role = %q, want moderator", body.User.Role)
	}
	if findCookie(w.Result(), middleware.SessionCookieName) == nil {
		t.Error("expected session cookie")
	}
}

func TestAuthHandler_SignIn_Failures_AreGeneric(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantAPI  string
	}{
		{"invalid credentials", model.ErrInvalidCredentials, http.StatusUnauthorized, model.ErrCodeInvalidCredentials},
		{"locked out", model.ErrTooManyAttempts, http.StatusTooManyRequests, model.ErrCodeTooManyAttempts},
		{"storage", model.ErrStorage, http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				signInFn: func(ctx context.Context, email, password string) (*auth.Result, error) {
					return nil, tt.err
				},
			}
			h := newTestAuthHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", jsonBody(t, map[string]string{
				"email": "nobody@example.com", "password": "wrong-pass",
			}))
			w := httptest.NewRecorder()
			h.SignIn(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if body := decodeAPIError(t, w); body.Code != tt.wantAPI {
				t.Errorf("code = %q, want %q", body.Code, tt.wantAPI)
			}
			if findCookie(w.Result(), middleware.SessionCookieName) != nil {
				t.Error("no session cookie should be set on failure")
			}
		})
	}
}

// --- POST /api/auth/signout ---

func TestAuthHandler_SignOut_TokenSources(t *testing.T) {
	tests := []struct {
		name      string
		cookie    string
		bearer    string
		wantToken string
	}{
		{"cookie", "cookie-token", "", "cookie-token"},
		{"bearer", "", "bearer-token", "bearer-token"},
		{"none", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var revoked string
			called := false
			svc := &mockAuthService{
				signOutFn: func(ctx context.Context, token string) error {
					called = true
					revoked = token
					return nil
				},
			}
			h := newTestAuthHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: tt.cookie})
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			w := httptest.NewRecorder()
			h.SignOut(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
			}
			if tt.wantToken == "" && called {
				t.Error("SignOut should not be called without a token")
			}
			if revoked != tt.wantToken {
				t.Errorf("revoked token = %q, want %q", revoked, tt.wantToken)
			}

			c := findCookie(w.Result(), middleware.SessionCookieName)
			if c == nil || c.MaxAge >= 0 {
				t.Errorf("session cookie should be cleared, got %+v", c)
			}
		})
	}
}

func TestAuthHandler_SignOut_ServiceError_StillSucceeds(t *testing.T) {
	svc := &mockAuthService{
		signOutFn: func(ctx context.Context, token string) error {
			return model.ErrStorage
		},
	}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "tok"})
	w := httptest.NewRecorder()
	h.SignOut(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

// --- GET /api/auth/user ---

func TestAuthHandler_CurrentUser_ReturnsPrincipal(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req = req.WithContext(middleware.ContextWithPrincipal(req.Context(), &model.Principal{
		User: model.User{ID: "user-1", Email: "alice@example.com", Name: "Alice"},
		Role: model.RoleAdmin,
	}))
	w := httptest.NewRecorder()
	h.CurrentUser(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		User userResponse `json:"user"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.User.ID != "user-1" || body.User.Role != "admin" || body.User.FullName != "Alice" {
		t.Errorf("user = %+v", body.User)
	}
}

func TestAuthHandler_CurrentUser_NoPrincipal_Returns401(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	w := httptest.NewRecorder()
	h.CurrentUser(w, httptest.NewRequest(http.MethodGet, "/api/auth/user", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
