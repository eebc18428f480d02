package payment

import (
	"strings"
)

// ErrorCode は決済事業者の確定呼び出しが返すエラーコード。
// 未知の文字列はすべてErrorCodeUnknownとして扱う。
type ErrorCode int

const (
	// ErrorCodeUnknown は未知または分類不能なエラー。
	ErrorCodeUnknown ErrorCode = iota
	// ErrorCodeFailed はカード拒否などの確定的な失敗。
	ErrorCodeFailed
	// ErrorCodeCanceled はユーザーまたは決済事業者によるキャンセル。
	ErrorCodeCanceled
	// ErrorCodeTimeout は決済事業者の応答タイムアウト。
	ErrorCodeTimeout

	errorCodeCount
)

// String は決済事業者のワイヤー表現を返す。
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeFailed:
		return "Failed"
	case ErrorCodeCanceled:
		return "Canceled"
	case ErrorCodeTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// ParseErrorCode は決済事業者のエラーコード文字列をErrorCodeに変換する。
// 大文字小文字は区別しない。未知のコード（例: "network_blip"）はErrorCodeUnknownを返す。
func ParseErrorCode(raw string) ErrorCode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "failed":
		return ErrorCodeFailed
	case "canceled", "cancelled":
		return ErrorCodeCanceled
	case "timeout":
		return ErrorCodeTimeout
	default:
		return ErrorCodeUnknown
	}
}

// Classification はエラーコードの扱いを表す。
type Classification int

const (
	classificationUnset Classification = iota
	// ClassificationDefinitive は確定的な失敗。ポーリングせずに中断する。
	ClassificationDefinitive
	// ClassificationAmbiguous はサーバー側で処理中の可能性がある失敗。照合ポーリングへ進む。
	ClassificationAmbiguous
)

// String は分類名を返す。
func (c Classification) String() string {
	switch c {
	case ClassificationDefinitive:
		return "definitive"
	case ClassificationAmbiguous:
		return "ambiguous"
	default:
		return "unset"
	}
}

// classifications はすべてのErrorCodeの分類表。
// ErrorCodeを追加した場合はここにも追加すること（TestClassifications_Exhaustiveで検出される）。
var classifications = [errorCodeCount]Classification{
	ErrorCodeUnknown:  ClassificationAmbiguous,
	ErrorCodeFailed:   ClassificationDefinitive,
	ErrorCodeCanceled: ClassificationDefinitive,
	ErrorCodeTimeout:  ClassificationAmbiguous,
}

// Classify はエラーコードを確定的失敗か曖昧な失敗かに分類する。
// 表にないコードは曖昧として扱う。
func Classify(code ErrorCode) Classification {
	if code < 0 || code >= errorCodeCount || classifications[code] == classificationUnset {
		return ClassificationAmbiguous
	}
	return classifications[code]
}
