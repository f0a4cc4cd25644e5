// Package lockout はメールアドレス単位のサインイン失敗回数を数え、上限到達時に試行を拒否する。
package lockout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// ErrUnavailable はカウンタのバックエンドに到達できない場合のエラー。
// 呼び出し側はこのエラーでサインインを止めない（fail-open）。
var ErrUnavailable = errors.New("lockout backend unavailable")

// Limiter はサインイン失敗回数の固定ウィンドウカウンタ。
type Limiter interface {
	// Check は失敗回数が上限に達している場合にmodel.ErrTooManyAttemptsを返す。
	Check(ctx context.Context, email string) error
	// RecordFailure は失敗を1回記録する。
	RecordFailure(ctx context.Context, email string) error
	// Reset はサインイン成功時にカウンタを消去する。
	Reset(ctx context.Context, email string) error
}

// Config はロックアウトのしきい値とウィンドウ幅。
type Config struct {
	Threshold int
	Window    time.Duration
}

// Enabled はロックアウトが有効かどうかを返す。しきい値0以下は無効。
func (c Config) Enabled() bool {
	return c.Threshold > 0 && c.Window > 0
}

// MemoryLimiter はプロセス内メモリで失敗回数を保持するLimiter。
// 単一インスタンス構成およびテストで使用する。
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	entries   map[string]*memoryEntry
	lastSweep time.Time
}

type memoryEntry struct {
	count     int
	expiresAt time.Time
}

// NewMemoryLimiter はMemoryLimiterを生成する。
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*memoryEntry),
	}
}

// Check は失敗回数が上限に達しているかを判定する。
func (l *MemoryLimiter) Check(_ context.Context, email string) error {
	if !l.cfg.Enabled() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.current(email)
	if e != nil && e.count >= l.cfg.Threshold {
		return model.ErrTooManyAttempts
	}
	return nil
}

// RecordFailure は失敗を記録する。最初の失敗でウィンドウを開始する。
func (l *MemoryLimiter) RecordFailure(_ context.Context, email string) error {
	if !l.cfg.Enabled() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	e := l.current(email)
	if e == nil {
		e = &memoryEntry{expiresAt: now.Add(l.cfg.Window)}
		l.entries[email] = e
	}
	e.count++
	return nil
}

// sweep は期限切れエントリをまとめて削除する。走査はウィンドウ幅ごとに高々1回。
// 保持されるのは直近2ウィンドウ以内に失敗したメールアドレスに限られる。
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.cfg.Window {
		return
	}
	l.lastSweep = now
	for email, e := range l.entries {
		if !now.Before(e.expiresAt) {
			delete(l.entries, email)
		}
	}
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset はカウンタを消去する。
func (l *MemoryLimiter) Reset(_ context.Context, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, email)
	return nil
}

// current は有効期間内のエントリを返す。期限切れは削除してnilを返す。
func (l *MemoryLimiter) current(email string) *memoryEntry {
	e, ok := l.entries[email]
	if !ok {
		return nil
	}
	if !l.now().Before(e.expiresAt) {
		delete(l.entries, email)
		return nil
	}
	return e
}

// compile-time interface check
var _ Limiter = (*MemoryLimiter)(nil)
