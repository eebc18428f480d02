// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はバックエンドから受け取ったメッセージやユーザー入力の表示名から
// マークアップを除去し、プレーンテキストとして安全に表示できるようにする。
// bluemondayのStrictPolicyを使用し、すべてのタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxTextLength はサニタイズ後のテキストの最大文字数。
const maxTextLength = 500

// TextSanitizer はプレーンテキスト化のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はすべてのタグを除去したプレーンテキストを返す。
	// 前後の空白を除去し、連続する空白は1つにまとめる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに使用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はすべてのタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	// StrictPolicyはテキストをHTMLエスケープして返すため、表示用に戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if r := []rune(text); len(r) > maxTextLength {
		text = string(r[:maxTextLength])
	}
	return text
}

var _ TextSanitizer = (*textSanitizer)(nil)
