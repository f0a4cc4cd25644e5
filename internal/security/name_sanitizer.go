// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer はユーザーが入力した表示名からHTMLを除去する。
// 表示名はストアフロントの画面にそのまま描画されるため、保存前にプレーンテキストへ正規化する。
package security

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxDisplayNameLength は表示名の最大文字数（users.nameの列長）。
const MaxDisplayNameLength = 255

// NameSanitizer は表示名のサニタイズ機能のインターフェース。
type NameSanitizer interface {
	// SanitizeDisplayName はタグ・制御文字を除去し、前後の空白を取り除いた表示名を返す。
	// 最大長を超える部分は切り詰める。同一入力に対して常に同一出力を返す。
	SanitizeDisplayName(name string) string
}

// nameSanitizer はNameSanitizerの実装。
// bluemondayのStrictPolicyは全タグを除去し、script/styleの中身も捨てる。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerの新しいインスタンスを生成する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeDisplayName は表示名をプレーンテキストに正規化する。
func (s *nameSanitizer) SanitizeDisplayName(name string) string {
	if name == "" {
		return ""
	}

	// StrictPolicyの出力はHTMLエスケープ済みなので、保存用に平文へ戻す
	text := html.UnescapeString(s.policy.Sanitize(name))

	// エスケープを戻した結果に残った山括弧と制御文字は捨てる
	text = strings.Map(func(r rune) rune {
		if r == '<' || r == '>' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	text = strings.TrimSpace(text)

	if utf8.RuneCountInString(text) > MaxDisplayNameLength {
		text = strings.TrimSpace(string([]rune(text)[:MaxDisplayNameLength]))
	}
	return text
}
