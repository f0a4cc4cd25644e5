package password

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/hitoshi/storefront/internal/database"
	"github.com/lib/pq"
)

// invalidParameterValue はpgcryptoが不正なソルトに対して返すSQLSTATE。
const invalidParameterValue = "22023"

// PgcryptoHasher はPostgreSQLのpgcrypto拡張（crypt / gen_salt('bf')）でハッシュを計算するHasher。
type PgcryptoHasher struct {
	scope *database.Scope
	cost  int
}

// NewPgcryptoHasher はPgcryptoHasherを生成する。
func NewPgcryptoHasher(scope *database.Scope, cost int) *PgcryptoHasher {
	return &PgcryptoHasher{scope: scope, cost: cost}
}

// Hash はgen_salt('bf')で生成したソルトでパスワードをハッシュ化する。
func (h *PgcryptoHasher) Hash(ctx context.Context, password string) (string, error) {
	var hash string
	err := h.scope.Do(ctx, func(ctx context.Context, q database.Querier) error {
		return q.QueryRowContext(ctx,
			`SELECT crypt($1, gen_salt('bf', $2))`,
			password, h.cost,
		).Scan(&hash)
	})
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// Verify はハッシュ内のソルトでcryptを再計算し、結果をアプリケーション側で定数時間比較する。
func (h *PgcryptoHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	if !wellFormed(hash) {
		return false, nil
	}

	var computed string
	malformed := false
	err := h.scope.Do(ctx, func(ctx context.Context, q database.Querier) error {
		err := q.QueryRowContext(ctx, `SELECT crypt($1, $2)`, password, hash).Scan(&computed)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == invalidParameterValue {
			malformed = true
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to verify password: %w", err)
	}
	if malformed {
		return false, nil
	}

	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}

// compile-time interface check
var _ Hasher = (*PgcryptoHasher)(nil)
