package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
)

const (
	signUpPath  = "/api/auth/signup"
	signInPath  = "/api/auth/signin"
	signOutPath = "/api/auth/signout"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 運用エンドポイント
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer     // nilの場合は/metricsを提供しない
	StatusRecorder  middleware.StatusRecorder // nilの場合はステータス集計をしない
	Logger          *slog.Logger

	// ミドルウェア依存
	SessionVerifier   middleware.SessionVerifier
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	RequestTimeout    time.Duration

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 管理
	AdminService AdminServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → RequestID → Logging → Metrics → SecurityHeaders → CORS → Timeout
//	  /api: CSRF
//	    サインアップ・サインイン: RateLimit(Auth)
//	    認証必須: AuthGate → RateLimit(General)
//	      /api/admin: AdminGate
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.StatusRecorder
	if recorder == nil {
		recorder = metrics.Nop()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(recorder))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.RequestTimeout > 0 {
		r.Use(chimw.Timeout(deps.RequestTimeout))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	adminHandler := NewAdminHandler(deps.AdminService)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// セッション発行前のリクエストはCSRFトークンを持たない。
	// サインアウトは失効済みCookieでも必ず成功させ、Cookieを消す必要がある。
	csrfConfig := deps.CSRFConfig
	csrfConfig.ExemptPaths = append(append([]string(nil), csrfConfig.ExemptPaths...), signUpPath, signInPath, signOutPath)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig).ServeHTTP)

		// --- 認証不要のルート ---
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Post(signUpPath, authHandler.SignUp)
			r.Post(signInPath, authHandler.SignIn)
		})

		// サインアウトは無効なトークンでも成功させるため認証ゲートの外に置く
		r.Post(signOutPath, authHandler.SignOut)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.SessionVerifier))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/api/auth/user", authHandler.CurrentUser)

			// --- 管理者ルート ---
			r.Route("/api/admin", func(r chi.Router) {
				r.Use(middleware.NewAdminMiddleware())

				r.Route("/users/{id}", func(r chi.Router) {
					r.Get("/", adminHandler.GetUser)
					r.Delete("/sessions", adminHandler.RevokeSessions)
				})
			})
		})
	})

	return r
}
