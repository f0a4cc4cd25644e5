// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/storefront/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_token"

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var principalContextKey = contextKey("principal")

// SessionVerifier はトークンからユーザーと実効ロールを解決するインターフェース。
// auth.Serviceが満たす。
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (*model.Principal, error)
}

// TokenFromRequest はリクエストからセッショントークンを取り出す。
// セッションCookieを優先し、無ければAuthorization: Bearerヘッダーを使う。
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bearerToken(r)
}

// bearerToken はAuthorizationヘッダーのBearerトークンを返す。
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > len(bearerPrefix) && strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(h[len(bearerPrefix):])
	}
	return ""
}

// NewAuthMiddleware はセッショントークンを検証する認証ゲートを返す。
// トークン無し・不明・期限切れは401、ストレージ障害は500を返す。
// 認証済みユーザーと実効ロールをリクエストコンテキストに注入する。
func NewAuthMiddleware(verifier SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				WriteAPIError(w, model.ErrSessionInvalid)
				return
			}

			principal, err := verifier.VerifySession(r.Context(), token)
			if errors.Is(err, model.ErrSessionInvalid) {
				WriteAPIError(w, model.ErrSessionInvalid)
				return
			}
			if err != nil {
				slog.Error("failed to verify session",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			annotateUserID(r.Context(), principal.User.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// NewAdminMiddleware は実効ロールがadminであることを要求する認可ゲートを返す。
// 認証ゲートの後に配置する。セッションストアには問い合わせず、コンテキストのみを参照する。
func NewAdminMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteAPIError(w, model.ErrSessionInvalid)
				return
			}
			if !principal.IsAdmin() {
				slog.Warn("admin access denied",
					slog.String("user_id", principal.User.ID),
					slog.String("role", string(principal.Role)),
					slog.String("path", r.URL.Path),
				)
				WriteAPIError(w, model.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ゲートを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*model.Principal)
	return p, ok && p != nil
}

// ContextWithPrincipal はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.User.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return p.User.ID, nil
}
