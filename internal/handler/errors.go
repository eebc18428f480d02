// Package handler はサンドボックスバックエンドのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/LingoToday/LingoToday-sub001/internal/middleware"
	"github.com/LingoToday/LingoToday-sub001/internal/model"
	"github.com/LingoToday/LingoToday-sub001/internal/subscription"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 1 << 16

// writeJSON はステータスコードとともにJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをvへデコードする。
// 失敗した場合は400レスポンスを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "The request body is not valid JSON.",
			Category: "validation",
			Action:   "Check the request format and try again.",
		})
		return false
	}
	return true
}

// handleServiceError はサービス層のエラーを適切なHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		middleware.WriteValidationError(w, verr)
		return
	}

	var cerr *subscription.ConfirmError
	if errors.As(err, &cerr) {
		writeJSON(w, http.StatusPaymentRequired, map[string]string{
			"code":    cerr.Code,
			"message": cerr.Message,
		})
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorのコードからHTTPステータスコードを決定する。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeUserNotFound, model.ErrCodeIntentNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailTaken, model.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case model.ErrCodePaymentFailed:
		return http.StatusPaymentRequired
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

// requireUserID はコンテキストから認証済みユーザーIDを取得する。
// 取得できない場合は401レスポンスを書き込み空文字を返す。
func requireUserID(w http.ResponseWriter, r *http.Request) string {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return ""
	}
	return userID
}
