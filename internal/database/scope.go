package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// Querier は1回の論理操作で使用するクエリ実行インターフェース。
// *sql.Conn、*sql.Tx、*sql.DBが満たす。
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Scope はプールから接続を1本借り、操作の完了とともに必ず返却するスコープ。
// 操作ごとにタイムアウトを設定し、超過した場合はコンテキストのキャンセルでクエリを中断する。
type Scope struct {
	db      *sql.DB
	timeout time.Duration
}

// NewScope はScopeを生成する。timeoutが0以下の場合は呼び出し元のコンテキストの期限のみに従う。
func NewScope(db *sql.DB, timeout time.Duration) *Scope {
	return &Scope{db: db, timeout: timeout}
}

// Do は接続を取得してfnを実行し、すべての終了経路で接続を返却する。
// ドメインエラー（*model.APIError）はそのまま返し、それ以外はmodel.ErrStorageでラップする。
// 失敗した操作の自動リトライは行わない。
func (s *Scope) Do(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return storageError(fmt.Errorf("failed to acquire connection: %w", err))
	}
	defer conn.Close()

	if err := fn(ctx, conn); err != nil {
		return storageError(err)
	}
	return nil
}

// storageError はドメインエラー以外をmodel.ErrStorageでラップする。
func storageError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) || errors.Is(err, model.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrStorage, err)
}
