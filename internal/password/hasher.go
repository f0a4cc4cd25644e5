// Package password はパスワードの一方向ハッシュ化と検証を提供する。
// ハッシュはソルトとコストを内包する自己記述形式（$2a$...）で、外部にソルトを保存しない。
package password

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/storefront/internal/model"
)

const (
	// MinLength はパスワードの最小バイト数。
	MinLength = 8
	// MaxLength はパスワードの最大バイト数。bcryptは72バイトを超える入力を扱えない。
	MaxLength = 72
)

// Hasher はパスワードのハッシュ化と検証を行う。
type Hasher interface {
	// Hash は毎回新しいソルトでパスワードをハッシュ化する。
	Hash(ctx context.Context, password string) (string, error)

	// Verify はハッシュに埋め込まれたソルトで再計算し、一致するかを返す。
	// 不正な形式のハッシュはfalseを返し、エラーにはしない。
	// エラーはストレージ障害など基盤の失敗に限る。
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// Validate はパスワードの長さと文字を検証する。
// NULを含む文字列や不正なUTF-8はPostgreSQLのtext型に渡せないため拒否する。
func Validate(password string) error {
	if !Storable(password) {
		return model.NewValidationError("パスワードに使用できない文字が含まれています")
	}
	if len(password) < MinLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%dバイト以上で指定してください", MinLength))
	}
	if len(password) > MaxLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%dバイト以下で指定してください", MaxLength))
	}
	return nil
}

// Storable はPostgreSQLのtext型パラメータとして送れる文字列かを返す。
func Storable(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}

// bcryptHashLen はbcryptハッシュ文字列の固定長。
const bcryptHashLen = 60

// wellFormed はbcrypt形式のハッシュ文字列かどうかを判定する。
func wellFormed(hash string) bool {
	if len(hash) != bcryptHashLen {
		return false
	}
	for _, prefix := range []string{"$2a$", "$2b$", "$2x$", "$2y$"} {
		if strings.HasPrefix(hash, prefix) {
			return true
		}
	}
	return false
}
