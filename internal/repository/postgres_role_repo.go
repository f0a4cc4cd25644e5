package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/model"
)

// PostgresRoleRepo はPostgreSQLを使用したロール割り当てリポジトリ。
type PostgresRoleRepo struct {
	scope *database.Scope
}

// NewPostgresRoleRepo はPostgresRoleRepoを生成する。
func NewPostgresRoleRepo(scope *database.Scope) *PostgresRoleRepo {
	return &PostgresRoleRepo{scope: scope}
}

// ListByUserID はユーザーが保持するロール行を返す。
func (r *PostgresRoleRepo) ListByUserID(ctx context.Context, userID string) ([]model.Role, error) {
	var roles []model.Role
	err := r.scope.Do(ctx, func(ctx context.Context, q database.Querier) error {
		rows, err := q.QueryContext(ctx,
			`SELECT role FROM user_roles WHERE user_id = $1`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("failed to list roles: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var role string
			if err := rows.Scan(&role); err != nil {
				return fmt.Errorf("failed to scan role: %w", err)
			}
			roles = append(roles, model.Role(role))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// EffectiveRole はユーザーの実効ロールを返す。
func (r *PostgresRoleRepo) EffectiveRole(ctx context.Context, userID string) (model.Role, error) {
	roles, err := r.ListByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	return model.EffectiveRole(roles), nil
}

// Grant はロールを付与する。(user_id, role)の一意制約により重複行は作られない。
// ユーザーが存在しない場合はUSER_NOT_FOUNDエラーを返す。
func (r *PostgresRoleRepo) Grant(ctx context.Context, userID string, role model.Role) error {
	if !role.Valid() {
		return model.NewValidationError(fmt.Sprintf("unknown role %q", role))
	}
	return r.scope.Do(ctx, func(ctx context.Context, q database.Querier) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO user_roles (id, user_id, role, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, role) DO NOTHING`,
			uuid.New().String(), userID, string(role), time.Now(),
		)
		if isForeignKeyViolation(err) {
			return model.NewUserNotFoundError()
		}
		if err != nil {
			return fmt.Errorf("failed to grant role: %w", err)
		}
		return nil
	})
}

// Revoke はロールを剥奪する。
func (r *PostgresRoleRepo) Revoke(ctx context.Context, userID string, role model.Role) error {
	return r.scope.Do(ctx, func(ctx context.Context, q database.Querier) error {
		_, err := q.ExecContext(ctx,
			`DELETE FROM user_roles WHERE user_id = $1 AND role = $2`,
			userID, string(role),
		)
		if err != nil {
			return fmt.Errorf("failed to revoke role: %w", err)
		}
		return nil
	})
}

// compile-time interface check
var _ RoleRepository = (*PostgresRoleRepo)(nil)
