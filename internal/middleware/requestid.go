package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID はクライアントが送信するリクエストIDのヘッダー名。
const HeaderRequestID = "X-Request-ID"

// maxRequestIDLength はクライアント指定のリクエストIDとして受け入れる最大長。
const maxRequestIDLength = 128

var requestIDContextKey = contextKey("request_id")

// NewRequestIDMiddleware はX-Request-IDを引き継ぐミドルウェアを返す。
// ヘッダーが無いか不正な場合はUUIDを採番する。
// リクエストIDはコンテキストとレスポンスヘッダーの両方に設定する。
func NewRequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if !validRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDContextKey, id)))
		})
	}
}

// RequestIDFromContext はコンテキストのリクエストIDを返す。未設定の場合は空文字列。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// validRequestID は表示可能なASCII文字のみで構成された上限長以内のIDかを返す。
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
