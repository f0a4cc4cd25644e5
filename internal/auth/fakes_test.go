package auth

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/storefront/internal/lockout"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/password"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/security"
	"golang.org/x/crypto/bcrypt"
)

// --- インメモリ実装 ---
// PostgreSQLリポジトリと同じ契約（email一意・token_hash一意・expires_at > now）を満たす。

type memStore struct {
	mu       sync.Mutex
	users    map[string]*model.User // id -> user
	roles    map[string][]model.Role
	sessions map[string]*model.Session // token_hash -> session
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*model.User),
		roles:    make(map[string][]model.Role),
		sessions: make(map[string]*model.Session),
	}
}

type memUserRepo struct{ s *memStore }

func (r *memUserRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return model.ErrDuplicateEmail
		}
	}
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

type memRoleRepo struct{ s *memStore }

func (r *memRoleRepo) ListByUserID(_ context.Context, userID string) ([]model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]model.Role(nil), r.s.roles[userID]...), nil
}

func (r *memRoleRepo) EffectiveRole(ctx context.Context, userID string) (model.Role, error) {
	roles, _ := r.ListByUserID(ctx, userID)
	return model.EffectiveRole(roles), nil
}

func (r *memRoleRepo) Grant(_ context.Context, userID string, role model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, held := range r.s.roles[userID] {
		if held == role {
			return nil
		}
	}
	r.s.roles[userID] = append(r.s.roles[userID], role)
	return nil
}

func (r *memRoleRepo) Revoke(_ context.Context, userID string, role model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.roles[userID][:0]
	for _, held := range r.s.roles[userID] {
		if held != role {
			kept = append(kept, held)
		}
	}
	r.s.roles[userID] = kept
	return nil
}

type memSessionRepo struct{ s *memStore }

func (r *memSessionRepo) Create(_ context.Context, session *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.sessions[session.TokenHash]; exists {
		return model.ErrStorage
	}
	cp := *session
	cp.Token = ""
	r.s.sessions[session.TokenHash] = &cp
	return nil
}

func (r *memSessionRepo) FindPrincipalByTokenHash(_ context.Context, tokenHash string, now time.Time) (*model.Principal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[tokenHash]
	if !ok || !now.Before(sess.ExpiresAt) {
		return nil, nil
	}
	u, ok := r.s.users[sess.UserID]
	if !ok {
		return nil, nil
	}
	return &model.Principal{
		User:      *u,
		Role:      model.EffectiveRole(r.s.roles[u.ID]),
		SessionID: sess.ID,
	}, nil
}

func (r *memSessionRepo) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, tokenHash)
	return nil
}

func (r *memSessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h, sess := range r.s.sessions {
		if sess.UserID == userID {
			delete(r.s.sessions, h)
		}
	}
	return nil
}

func (r *memSessionRepo) count() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.sessions)
}

// --- モック定義 ---

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findFn       func(ctx context.Context, tokenHash string, now time.Time) (*model.Principal, error)
	deleteFn     func(ctx context.Context, tokenHash string) error
	deleteByUser func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindPrincipalByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*model.Principal, error) {
	if m.findFn != nil {
		return m.findFn(ctx, tokenHash, now)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tokenHash)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUser != nil {
		return m.deleteByUser(ctx, userID)
	}
	return nil
}

type mockLimiter struct {
	checkErr  error
	recordErr error
	failures  int
	resets    int
}

func (m *mockLimiter) Check(_ context.Context, _ string) error { return m.checkErr }

func (m *mockLimiter) RecordFailure(_ context.Context, _ string) error {
	m.failures++
	return m.recordErr
}

func (m *mockLimiter) Reset(_ context.Context, _ string) error {
	m.resets++
	return nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*memUserRepo)(nil)
var _ repository.RoleRepository = (*memRoleRepo)(nil)
var _ repository.SessionRepository = (*memSessionRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ lockout.Limiter = (*mockLimiter)(nil)

// testEnv はインメモリ実装で組み立てたServiceとその依存。
type testEnv struct {
	svc      *Service
	store    *memStore
	roles    *memRoleRepo
	sessions *memSessionRepo
	now      time.Time
}

func newTestEnv(limiter lockout.Limiter) *testEnv {
	store := newMemStore()
	env := &testEnv{
		store:    store,
		roles:    &memRoleRepo{s: store},
		sessions: &memSessionRepo{s: store},
		now:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	if limiter == nil {
		limiter = lockout.NewMemoryLimiter(lockout.Config{Threshold: 10, Window: 15 * time.Minute})
	}
	env.svc = NewService(
		&memUserRepo{s: store},
		env.roles,
		env.sessions,
		password.NewBcryptHasher(bcrypt.MinCost),
		limiter,
		security.NewNameSanitizer(),
		nil,
		ServiceConfig{SessionTTL: 7 * 24 * time.Hour},
	)
	env.svc.now = func() time.Time { return env.now }
	return env
}
