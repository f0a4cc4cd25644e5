package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/model"
)

// TestRouterIntegration_CSRFTokenEndpoint はCSRFトークン取得エンドポイントが
// chi.Routerで正しく動作することを検証する。
func TestRouterIntegration_CSRFTokenEndpoint(t *testing.T) {
	r := chi.NewRouter()

	csrfConfig := CSRFConfig{CookieSecure: false}
	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrfConfig).ServeHTTP)

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Token == "" {
		t.Error("expected non-empty token")
	}
}

// TestRouterIntegration_AuthAndAdminGroups は
// CSRF -> 認証ゲート -> 認可ゲートのチェーンがchi.Routerで正しく動作することを検証する。
func TestRouterIntegration_AuthAndAdminGroups(t *testing.T) {
	verifier := &mockSessionVerifier{
		verifyFn: func(_ context.Context, token string) (*model.Principal, error) {
			switch token {
			case "user-token":
				return principal("user-router-test", model.RoleUser), nil
			case "admin-token":
				return principal("admin-router-test", model.RoleAdmin), nil
			}
			return nil, model.ErrSessionInvalid
		},
	}

	csrfConfig := CSRFConfig{ExemptPaths: []string{"/api/auth/signin"}}

	r := chi.NewRouter()
	r.Use(NewCSRFMiddleware(csrfConfig))
	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrfConfig).ServeHTTP)
	r.Post("/api/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(NewAuthMiddleware(verifier))

		r.Get("/api/auth/user", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"user_id": userID})
		})
		r.Post("/api/auth/signout", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(NewAdminMiddleware())
			r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"id": chi.URLParam(r, "id")})
			})
		})
	})

	tests := []struct {
		name    string
		method  string
		path    string
		cookie  string
		bearer  string
		csrf    string
		want    int
		wantErr string
	}{
		{"user_with_session", http.MethodGet, "/api/auth/user", "user-token", "", "", http.StatusOK, ""},
		{"user_no_session", http.MethodGet, "/api/auth/user", "", "", "", http.StatusUnauthorized, model.ErrCodeSessionInvalid},
		{"signout_with_csrf", http.MethodPost, "/api/auth/signout", "user-token", "", "csrf-1", http.StatusOK, ""},
		{"signout_without_csrf", http.MethodPost, "/api/auth/signout", "user-token", "", "", http.StatusForbidden, model.ErrCodeCSRFInvalid},
		{"signout_bearer_without_csrf", http.MethodPost, "/api/auth/signout", "", "user-token", "", http.StatusOK, ""},
		{"signout_cookie_and_bearer_without_csrf", http.MethodPost, "/api/auth/signout", "user-token", "user-token", "", http.StatusForbidden, model.ErrCodeCSRFInvalid},
		{"signin_exempt_from_csrf", http.MethodPost, "/api/auth/signin", "", "", "", http.StatusOK, ""},
		{"admin_as_user", http.MethodGet, "/api/admin/users/u-1", "user-token", "", "", http.StatusForbidden, model.ErrCodeForbidden},
		{"admin_as_admin", http.MethodGet, "/api/admin/users/u-1", "admin-token", "", "", http.StatusOK, ""},
		{"admin_no_session", http.MethodGet, "/api/admin/users/u-1", "", "", "", http.StatusUnauthorized, model.ErrCodeSessionInvalid},
		{"csrf_token_no_auth", http.MethodGet, "/api/csrf-token", "", "", "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			if tt.csrf != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.csrf})
				req.Header.Set(csrfHeaderName, tt.csrf)
			}
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.wantErr != "" {
				if code := decodeErrorCode(t, w); code != tt.wantErr {
					t.Errorf("code = %q, want %q", code, tt.wantErr)
				}
			}
		})
	}
}
