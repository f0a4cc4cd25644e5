package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/lib/pq"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// トークンの平文は保存せず、SHA-256ハッシュ（token_hash）のみを扱う。
type PostgresSessionRepo struct {
	scope *database.Scope
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(scope *database.Scope) *PostgresSessionRepo {
	return &PostgresSessionRepo{scope: scope}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return r.scope.Do(ctx, func(ctx context.Context, q database.Querier) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			session.ID, session.UserID, session.TokenHash, session.ExpiresAt, session.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		return nil
	})
}

// FindPrincipalByTokenHash はセッション・ユーザー・ロールを結合して1回のクエリで取得する。
// ロールは毎回結合して解決するため、付与・剥奪は既存セッションにも即時反映される。
func (r *PostgresSessionRepo) FindPrincipalByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*model.Principal, error) {
	var principal *model.Principal
	err := r.scope.Do(ctx, func(ctx context.Context, q database.Querier) error {
		p := &model.Principal{}
		var name sql.NullString
		var confirmedAt sql.NullTime
		var roles []string
		err := q.QueryRowContext(ctx,
			`SELECT s.id, u.id, u.email, u.name, u.password_hash, u.email_confirmed_at, u.created_at, u.updated_at,
			        COALESCE(array_agg(r.role) FILTER (WHERE r.role IS NOT NULL), '{}')
			 FROM sessions s
			 JOIN users u ON u.id = s.user_id
			 LEFT JOIN user_roles r ON r.user_id = u.id
			 WHERE s.token_hash = $1 AND s.expires_at > $2
			 GROUP BY s.id, u.id`,
			tokenHash, now,
		).Scan(
			&p.SessionID, &p.User.ID, &p.User.Email, &name, &p.User.PasswordHash,
			&confirmedAt, &p.User.CreatedAt, &p.User.UpdatedAt, pq.Array(&roles),
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find session: %w", err)
		}

		p.User.Name = name.String
		if confirmedAt.Valid {
			t := confirmedAt.Time
			p.User.EmailConfirmedAt = &t
		}
		held := make([]model.Role, 0, len(roles))
		for _, role := range roles {
			held = append(held, model.Role(role))
		}
		p.Role = model.EffectiveRole(held)
		principal = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return principal, nil
}

// DeleteByTokenHash は指定トークンのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	return r.scope.Do(ctx, func(ctx context.Context, q database.Querier) error {
		_, err := q.ExecContext(ctx,
			`DELETE FROM sessions WHERE token_hash = $1`,
			tokenHash,
		)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return nil
	})
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return r.scope.Do(ctx, func(ctx context.Context, q database.Querier) error {
		_, err := q.ExecContext(ctx,
			`DELETE FROM sessions WHERE user_id = $1`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("failed to delete user sessions: %w", err)
		}
		return nil
	})
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
