// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// UserRepository はユーザー（identity）データの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// メールアドレスが既に存在する場合はDB一意制約によりmodel.ErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	// メールアドレスは保存された表記のまま大文字小文字を区別して比較する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// RoleRepository はユーザーとロールの対応を扱うインターフェース。
type RoleRepository interface {
	// ListByUserID はユーザーが保持するロール行を返す。順序は不定。
	ListByUserID(ctx context.Context, userID string) ([]model.Role, error)

	// EffectiveRole は優先順位（admin > moderator > user）で実効ロールを返す。
	// ロール行が無い場合はmodel.RoleUser。
	EffectiveRole(ctx context.Context, userID string) (model.Role, error)

	// Grant はロールを付与する。既に付与済みの場合は何もしない。
	Grant(ctx context.Context, userID string, role model.Role) error

	// Revoke はロールを剥奪する。付与されていない場合も成功する。
	Revoke(ctx context.Context, userID string, role model.Role) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。token_hashの一意制約違反はエラーとして返す。
	Create(ctx context.Context, session *model.Session) error

	// FindPrincipalByTokenHash はトークンハッシュからユーザーと実効ロールを1回の読み取りで取得する。
	// トークン不明、期限切れ（expires_at <= now）、ユーザー削除済みのいずれの場合もnilを返す。
	FindPrincipalByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*model.Principal, error)

	// DeleteByTokenHash はセッションを削除する。存在しない場合もエラーにしない。
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
