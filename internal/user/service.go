// Package user はユーザー管理のドメインロジックを提供する。
// ロールの付与・剥奪とセッションの一括失効は管理者操作（CLIまたは管理API）からのみ呼ばれる。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// Details はユーザーと実効ロールの組。
type Details struct {
	User *model.User
	Role model.Role
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	roleRepo    repository.RoleRepository
	sessionRepo repository.SessionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	roleRepo repository.RoleRepository,
	sessionRepo repository.SessionRepository,
) *Service {
	return &Service{
		userRepo:    userRepo,
		roleRepo:    roleRepo,
		sessionRepo: sessionRepo,
	}
}

// Get はユーザーと実効ロールを取得する。
func (s *Service) Get(ctx context.Context, userID string) (*Details, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	role, err := s.roleRepo.EffectiveRole(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ロールの取得に失敗しました: %w", err)
	}

	return &Details{User: user, Role: role}, nil
}

// GrantRole はメールアドレスで指定したユーザーにロールを付与する。付与済みの場合は何もしない。
// 付与は既存セッションにも次のリクエストから反映される。
func (s *Service) GrantRole(ctx context.Context, email, roleName string) error {
	user, role, err := s.resolve(ctx, email, roleName)
	if err != nil {
		return err
	}

	if err := s.roleRepo.Grant(ctx, user.ID, role); err != nil {
		return fmt.Errorf("ロールの付与に失敗しました: %w", err)
	}

	slog.Info("ロールを付与しました",
		slog.String("user_id", user.ID),
		slog.String("role", string(role)),
	)
	return nil
}

// RevokeRole はメールアドレスで指定したユーザーからロールを剥奪する。付与されていない場合も成功する。
func (s *Service) RevokeRole(ctx context.Context, email, roleName string) error {
	user, role, err := s.resolve(ctx, email, roleName)
	if err != nil {
		return err
	}

	if err := s.roleRepo.Revoke(ctx, user.ID, role); err != nil {
		return fmt.Errorf("ロールの剥奪に失敗しました: %w", err)
	}

	slog.Info("ロールを剥奪しました",
		slog.String("user_id", user.ID),
		slog.String("role", string(role)),
	)
	return nil
}

// RevokeSessions は指定ユーザーの全セッションを削除する。セッションが無くても成功する。
func (s *Service) RevokeSessions(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	slog.Info("全セッションを失効させました",
		slog.String("user_id", userID),
	)
	return nil
}

// resolve はメールアドレスとロール名を検証し、対象ユーザーとロールを返す。
func (s *Service) resolve(ctx context.Context, email, roleName string) (*model.User, model.Role, error) {
	role, err := model.ParseRole(roleName)
	if err != nil {
		return nil, "", model.NewValidationError(err.Error())
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, "", model.NewUserNotFoundError()
	}
	return user, role, nil
}
