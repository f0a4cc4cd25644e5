// Package model はドメインモデルを定義する。
package model

import "time"

// User はストアフロントに登録されたユーザー（identity）を表す。
// PasswordHashは作成後に外部へ出さない。
type User struct {
	ID               string
	Email            string
	Name             string // 表示名。未設定の場合は空文字
	PasswordHash     string
	EmailConfirmedAt *time.Time // nilは未確認
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Session はユーザーのログインセッションを表す。
// Tokenは発行直後のレスポンスにのみ含まれ、DBにはハッシュのみ保存される。
type Session struct {
	ID        string
	UserID    string
	Token     string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Principal は認証済みリクエストに紐付くユーザーと実効ロール。
// 認証ミドルウェアがリクエストコンテキストに格納する。
type Principal struct {
	User      User
	Role      Role
	SessionID string
}

// IsAdmin は実効ロールがadminかどうかを返す。
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
