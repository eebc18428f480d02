package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/LingoToday/LingoToday-sub001/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ValidationResponseBody は入力エラーのレスポンスフォーマット。
// フィールドごとにメッセージの配列を持つ。
type ValidationResponseBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteValidationError は入力エラーを422 Unprocessable Entityで書き込む。
func WriteValidationError(w http.ResponseWriter, verr *model.ValidationError) {
	body := ValidationResponseBody{
		Message: verr.Message,
		Errors:  make(map[string][]string, len(verr.Fields)),
	}
	if body.Message == "" {
		body.Message = "The given data was invalid."
	}
	for field, msg := range verr.Fields {
		body.Errors[string(field)] = []string{msg}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	json.NewEncoder(w).Encode(body)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Something went wrong on our side.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	})
}
