// Package auth はサインアップ・サインイン・サインアウトとセッションの発行・検証・破棄を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/storefront/internal/lockout"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/password"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/security"
)

const (
	// tokenBytes はセッショントークンの乱数バイト数（256bit）。
	tokenBytes = 32
	// maxEmailLength はメールアドレスの最大長（users.emailの列長）。
	maxEmailLength = 320
	// dummyPassword はユーザー不在時の検証に使うダミーパスワード。
	dummyPassword = "storefront-timing-equalisation"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionTTL time.Duration // セッション有効期間。延長はしない
}

// SignUpInput はサインアップの入力値。
type SignUpInput struct {
	Email    string
	Password string
	FullName string
}

// Result はサインアップ・サインインの結果。
// Session.Tokenには発行したトークンの平文が入る。
type Result struct {
	User    *model.User
	Role    model.Role
	Session *model.Session
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users    repository.UserRepository
	roles    repository.RoleRepository
	sessions repository.SessionRepository
	hasher   password.Hasher
	limiter  lockout.Limiter
	names    security.NameSanitizer
	metrics  metrics.MetricsCollector
	config   ServiceConfig
	now      func() time.Time

	dummyMu   sync.Mutex
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	sessions repository.SessionRepository,
	hasher password.Hasher,
	limiter lockout.Limiter,
	names security.NameSanitizer,
	mc metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if mc == nil {
		mc = metrics.Nop()
	}
	return &Service{
		users:    users,
		roles:    roles,
		sessions: sessions,
		hasher:   hasher,
		limiter:  limiter,
		names:    names,
		metrics:  mc,
		config:   config,
		now:      time.Now,
	}
}

// SignUp はユーザーを作成し、セッションを発行する。
// メールアドレスの重複はDB一意制約で検出し、model.ErrDuplicateEmailを返す。
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*Result, error) {
	if err := validateEmail(in.Email); err != nil {
		s.metrics.RecordSignUp(metrics.ResultInvalidInput)
		return nil, err
	}
	if err := password.Validate(in.Password); err != nil {
		s.metrics.RecordSignUp(metrics.ResultInvalidInput)
		return nil, err
	}

	hash, err := s.hash(ctx, in.Password)
	if err != nil {
		s.metrics.RecordSignUp(metrics.ResultError)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        in.Email,
		Name:         s.names.SanitizeDisplayName(in.FullName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrDuplicateEmail) {
			s.metrics.RecordSignUp(metrics.ResultDuplicateEmail)
			return nil, err
		}
		s.metrics.RecordSignUp(metrics.ResultError)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	session, err := s.CreateSession(ctx, user.ID)
	if err != nil {
		s.metrics.RecordSignUp(metrics.ResultError)
		return nil, err
	}

	s.metrics.RecordSignUp(metrics.ResultSuccess)
	slog.Info("user signed up",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)

	// 新規ユーザーはロール行を持たないため実効ロールはuser
	return &Result{User: user, Role: model.RoleUser, Session: session}, nil
}

// SignIn はメールアドレスとパスワードを検証し、セッションを発行する。
// ユーザー不在とパスワード不一致はどちらもmodel.ErrInvalidCredentialsを返す。
// 失敗時はセッションを作成しない。
func (s *Service) SignIn(ctx context.Context, email, pw string) (*Result, error) {
	if err := s.limiter.Check(ctx, email); err != nil {
		if errors.Is(err, model.ErrTooManyAttempts) {
			s.metrics.RecordSignIn(metrics.ResultLocked)
			return nil, err
		}
		slog.Warn("lockout check failed, continuing", slog.String("error", err.Error()))
	}

	if !password.Storable(email) || !password.Storable(pw) {
		// ストレージへ渡せない入力は照合できない。不在ユーザーと同じ扱いで失敗させる
		if _, err := s.verify(ctx, dummyPassword, s.dummy(ctx)); err != nil {
			s.metrics.RecordSignIn(metrics.ResultError)
			return nil, fmt.Errorf("failed to verify password: %w", err)
		}
		return nil, s.rejectSignIn(ctx, email)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.RecordSignIn(metrics.ResultError)
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		// 存在するユーザーと同じ計算量を費やしてから失敗させる
		if _, err := s.verify(ctx, pw, s.dummy(ctx)); err != nil {
			s.metrics.RecordSignIn(metrics.ResultError)
			return nil, fmt.Errorf("failed to verify password: %w", err)
		}
		return nil, s.rejectSignIn(ctx, email)
	}

	ok, err := s.verify(ctx, pw, user.PasswordHash)
	if err != nil {
		s.metrics.RecordSignIn(metrics.ResultError)
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, s.rejectSignIn(ctx, email)
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		slog.Warn("lockout reset failed", slog.String("error", err.Error()))
	}

	role, err := s.roles.EffectiveRole(ctx, user.ID)
	if err != nil {
		s.metrics.RecordSignIn(metrics.ResultError)
		return nil, fmt.Errorf("failed to resolve role: %w", err)
	}

	session, err := s.CreateSession(ctx, user.ID)
	if err != nil {
		s.metrics.RecordSignIn(metrics.ResultError)
		return nil, err
	}

	s.metrics.RecordSignIn(metrics.ResultSuccess)
	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)

	return &Result{User: user, Role: role, Session: session}, nil
}

// rejectSignIn は失敗回数を記録し、model.ErrInvalidCredentialsを返す。
func (s *Service) rejectSignIn(ctx context.Context, email string) error {
	if err := s.limiter.RecordFailure(ctx, email); err != nil {
		slog.Warn("lockout record failed", slog.String("error", err.Error()))
	}
	s.metrics.RecordSignIn(metrics.ResultInvalidCredentials)
	return model.ErrInvalidCredentials
}

// SignOut はセッションを破棄する。トークンが空・不明・期限切れでも成功する。
func (s *Service) SignOut(ctx context.Context, token string) error {
	if err := s.RevokeSession(ctx, token); err != nil {
		return err
	}
	s.metrics.RecordSignOut()
	return nil
}

// CreateSession は暗号論的乱数でトークンを生成し、セッションを永続化する。
// 永続化に失敗した場合はセッションを返さない。
func (s *Service) CreateSession(ctx context.Context, userID string) (*model.Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Token:     token,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(s.config.SessionTTL),
		CreatedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// VerifySession はトークンからユーザーと実効ロールを解決する。
// 未指定・不明・期限切れ・ユーザー削除済みはすべてmodel.ErrSessionInvalidを返す。
func (s *Service) VerifySession(ctx context.Context, token string) (*model.Principal, error) {
	if token == "" {
		s.metrics.RecordSessionVerify(metrics.ResultInvalid)
		return nil, model.ErrSessionInvalid
	}

	principal, err := s.sessions.FindPrincipalByTokenHash(ctx, HashToken(token), s.now())
	if err != nil {
		s.metrics.RecordSessionVerify(metrics.ResultError)
		return nil, fmt.Errorf("failed to verify session: %w", err)
	}
	if principal == nil {
		s.metrics.RecordSessionVerify(metrics.ResultInvalid)
		return nil, model.ErrSessionInvalid
	}

	s.metrics.RecordSessionVerify(metrics.ResultSuccess)
	return principal, nil
}

// RevokeSession はトークンのセッションを削除する。冪等。
func (s *Service) RevokeSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.DeleteByTokenHash(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Service) hash(ctx context.Context, pw string) (string, error) {
	start := time.Now()
	defer func() { s.metrics.RecordHashLatency(time.Since(start)) }()
	return s.hasher.Hash(ctx, pw)
}

func (s *Service) verify(ctx context.Context, pw, hash string) (bool, error) {
	start := time.Now()
	defer func() { s.metrics.RecordHashLatency(time.Since(start)) }()
	return s.hasher.Verify(ctx, pw, hash)
}

// dummy はユーザー不在時の検証に使うハッシュを返す。初回呼び出し時に生成する。
// 生成に失敗した場合は空文字を返し、次回に再試行する。
func (s *Service) dummy(ctx context.Context) string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()

	if s.dummyHash == "" {
		h, err := s.hasher.Hash(ctx, dummyPassword)
		if err != nil {
			slog.Warn("failed to prepare dummy hash", slog.String("error", err.Error()))
			return ""
		}
		s.dummyHash = h
	}
	return s.dummyHash
}

// HashToken はトークンの保存用ハッシュ（SHA-256の16進表現）を返す。
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateToken は暗号的に安全なセッショントークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validateEmail はメールアドレスの形式を検証する。表記の正規化は行わない。
func validateEmail(email string) error {
	if email == "" {
		return model.NewValidationError("email is required")
	}
	if len(email) > maxEmailLength {
		return model.NewValidationError("email is too long")
	}
	if !password.Storable(email) {
		return model.NewValidationError("email is malformed")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewValidationError("email is malformed")
	}
	return nil
}
