package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/model"
)

// CSRFトークンはCookieとヘッダーの二重送信で照合する。
// CookieはフロントエンドのJavaScriptが読むためHttpOnlyにしない。
const (
	csrfCookieName   = "csrf_token"
	csrfHeaderName   = "X-CSRF-Token"
	csrfTokenBytes   = 32
	csrfCookieMaxAge = 24 * 60 * 60
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
	// ExemptPaths は検証を行わないパス。セッション発行前のサインアップ・サインインを指定する。
	ExemptPaths []string
}

// csrfGuard はCSRFトークンの発行と照合をまとめる。
type csrfGuard struct {
	cfg    CSRFConfig
	exempt map[string]struct{}
}

func newCSRFGuard(cfg CSRFConfig) *csrfGuard {
	g := &csrfGuard{cfg: cfg, exempt: make(map[string]struct{}, len(cfg.ExemptPaths))}
	for _, p := range cfg.ExemptPaths {
		g.exempt[p] = struct{}{}
	}
	return g
}

// NewCSRFMiddleware はダブルサブミットCookie方式のCSRF検証ミドルウェアを返す。
// GET, HEAD, OPTIONSは検証せず、トークンCookieが無ければ発行する。
// 状態変更メソッドはCookieとX-CSRF-Tokenヘッダーの一致を要求する。
// セッションCookieを伴わずAuthorization: Bearerのみで認証するリクエストは検証対象外。
// 認証ゲートはCookieを優先するため、Cookieが付いていればBearerがあっても検証する。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	g := newCSRFGuard(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				if _, err := g.ensureCookie(w, r); err != nil {
					slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				}
			default:
				if !g.requiresCheck(r) {
					break
				}
				if reason := checkCSRFToken(r); reason != "" {
					slog.Warn("CSRF validation failed",
						slog.String("reason", reason),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)
					WriteAPIError(w, model.ErrCSRFInvalid)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewCSRFTokenHandler は GET /api/csrf-token のハンドラーを返す。
// 既存のトークンCookieがあればその値を、なければ新規発行した値を返す。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	g := newCSRFGuard(config)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := g.ensureCookie(w, r)
		if err != nil {
			slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
			WriteInternalServerError(w)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Token string `json:"token"`
		}{Token: token})
	})
}

// requiresCheck は状態変更リクエストにトークン照合が必要かを返す。
func (g *csrfGuard) requiresCheck(r *http.Request) bool {
	if _, ok := g.exempt[r.URL.Path]; ok {
		return false
	}
	return !bearerOnly(r)
}

// ensureCookie はリクエストのトークンCookieを返す。無ければ発行してSet-Cookieする。
func (g *csrfGuard) ensureCookie(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(csrfCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   g.cfg.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		Secure:   g.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// bearerOnly はセッションCookieが無く、Bearerトークンのみで認証するリクエストかを判定する。
func bearerOnly(r *http.Request) bool {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return false
	}
	return bearerToken(r) != ""
}

// checkCSRFToken はCookieとヘッダーのトークンを比較し、失敗理由を返す。成功時は空文字。
func checkCSRFToken(r *http.Request) string {
	c, err := r.Cookie(csrfCookieName)
	if err != nil || c.Value == "" {
		return "missing cookie token"
	}
	header := r.Header.Get(csrfHeaderName)
	switch {
	case header == "":
		return "missing header token"
	case subtle.ConstantTimeCompare([]byte(c.Value), []byte(header)) != 1:
		return "token mismatch"
	}
	return ""
}
