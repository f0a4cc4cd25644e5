package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/lib/pq"
)

const (
	// uniqueViolation は一意制約違反のSQLSTATE。
	uniqueViolation = "23505"
	// foreignKeyViolation は外部キー制約違反のSQLSTATE。
	foreignKeyViolation = "23503"

	usersEmailConstraint = "users_email_key"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	scope *database.Scope
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(scope *database.Scope) *PostgresUserRepo {
	return &PostgresUserRepo{scope: scope}
}

// Create はユーザーを作成する。
// 事前の存在確認は行わず、users_email_key制約の違反をmodel.ErrDuplicateEmailに変換する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	return r.scope.Do(ctx, func(ctx context.Context, q database.Querier) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO users (id, email, name, password_hash, email_confirmed_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			user.ID, user.Email, nullString(user.Name), user.PasswordHash,
			user.EmailConfirmedAt, user.CreatedAt, user.UpdatedAt,
		)
		if isUniqueViolation(err, usersEmailConstraint) {
			return model.ErrDuplicateEmail
		}
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT id, email, name, password_hash, email_confirmed_at, created_at, updated_at
		 FROM users WHERE email = $1`,
		email,
	)
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT id, email, name, password_hash, email_confirmed_at, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	)
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg string) (*model.User, error) {
	var user *model.User
	err := r.scope.Do(ctx, func(ctx context.Context, q database.Querier) error {
		u := &model.User{}
		var name sql.NullString
		var confirmedAt sql.NullTime
		err := q.QueryRowContext(ctx, query, arg).Scan(
			&u.ID, &u.Email, &name, &u.PasswordHash, &confirmedAt, &u.CreatedAt, &u.UpdatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find user: %w", err)
		}
		u.Name = name.String
		if confirmedAt.Valid {
			t := confirmedAt.Time
			u.EmailConfirmedAt = &t
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// isUniqueViolation はerrが指定制約の一意制約違反かどうかを判定する。
// constraintが空の場合は制約名を問わない。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// isForeignKeyViolation はerrが外部キー制約違反かどうかを判定する。
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == foreignKeyViolation
}

// nullString は空文字をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
