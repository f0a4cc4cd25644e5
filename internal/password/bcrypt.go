package password

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher はアプリケーションプロセス内でbcryptを計算するHasher。
// PgcryptoHasherと同じ$2a$形式を出力するため、相互に検証できる。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。
func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{cost: cost}
}

// Hash はパスワードをbcryptでハッシュ化する。
func (h *BcryptHasher) Hash(_ context.Context, password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Verify はパスワードとハッシュを定数時間で比較する。
func (h *BcryptHasher) Verify(_ context.Context, password, hash string) (bool, error) {
	if !wellFormed(hash) {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// compile-time interface check
var _ Hasher = (*BcryptHasher)(nil)
