// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeSessionInvalid     = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeCSRFInvalid        = "CSRF_INVALID"
	ErrCodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// 認証サブシステムのエラー分類。
// ポインタ同一性でerrors.Isが成立し、errors.AsでHTTPレスポンスに変換できる。
var (
	// ErrInvalidCredentials はメールアドレスまたはパスワードの誤り。
	// ユーザー不在とパスワード不一致を区別しない。
	ErrInvalidCredentials = &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}

	// ErrDuplicateEmail は登録済みメールアドレスでのサインアップ。
	ErrDuplicateEmail = &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}

	// ErrSessionInvalid はトークン未指定・不明・期限切れのいずれか。
	ErrSessionInvalid = &APIError{
		Code:     ErrCodeSessionInvalid,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}

	// ErrForbidden は有効なセッションだがロールが不足している。
	ErrForbidden = &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に権限を確認してください。",
	}

	// ErrCSRFInvalid はCSRFトークンの欠落または不一致。
	ErrCSRFInvalid = &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンが無効です。",
		Category: "auth",
		Action:   "GET /api/csrf-token でトークンを取得し、X-CSRF-Tokenヘッダーに付与してください。",
	}

	// ErrTooManyAttempts はログイン失敗回数が上限に達した。
	ErrTooManyAttempts = &APIError{
		Code:     ErrCodeTooManyAttempts,
		Message:  "ログインの試行回数が上限に達しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}

	// ErrRateLimited はリクエストレートの上限超過。
	ErrRateLimited = &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
)

// ErrStorage はストレージ層の障害（プール枯渇、タイムアウト、想定外の制約違反）。
// クライアントには汎用エラーとして返し、詳細はサーバーログにのみ記録する。
var ErrStorage = errors.New("storage error")

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewInternalError は内部エラーの統一レスポンス用エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
