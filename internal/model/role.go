package model

import "fmt"

// Role はユーザーに付与される権限ラベル。
type Role string

const (
	// RoleAdmin は管理者ロール。
	RoleAdmin Role = "admin"
	// RoleModerator はモデレーターロール。
	RoleModerator Role = "moderator"
	// RoleUser は一般ユーザーロール。ロール行が無い場合のデフォルト。
	RoleUser Role = "user"
)

// rolePrecedence は優先順位の高い順に並べたロール一覧。
var rolePrecedence = []Role{RoleAdmin, RoleModerator, RoleUser}

// Rank はロールの優先度を返す。値が大きいほど優先される。
// 未知のロールは0を返し、どの既知ロールにも勝たない。
func (r Role) Rank() int {
	for i, known := range rolePrecedence {
		if r == known {
			return len(rolePrecedence) - i
		}
	}
	return 0
}

// Valid は既知のロールかどうかを返す。
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// ParseRole は文字列をRoleに変換する。
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// EffectiveRole は保持ロールの中で最も優先度の高いロールを返す。
// 入力の順序に依存しない。既知ロールが1つも無い場合はRoleUserを返す。
func EffectiveRole(roles []Role) Role {
	best := RoleUser
	for _, r := range roles {
		if r.Rank() > best.Rank() {
			best = r
		}
	}
	return best
}
