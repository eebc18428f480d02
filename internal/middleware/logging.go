package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// requestAttrs はリクエストを識別するログ属性（method、path、request_id、user_id）を返す。
// request_idはNewRequestIDMiddlewareが設定したものを優先し、無ければヘッダーの値を使う。
func requestAttrs(r *http.Request) []any {
	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	}

	requestID := RequestIDFromContext(r.Context())
	if requestID == "" {
		if h := r.Header.Get(HeaderRequestID); validRequestID(h) {
			requestID = h
		}
	}
	if requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}

	if userID, err := UserIDFromContext(r.Context()); err == nil && userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	return attrs
}

// levelForStatus は5xxをError、4xxをWarn、それ以外をInfoとする。
func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// NewLoggingMiddleware はリクエストごとにJSON構造化ログ（http_request）を1行出力するミドルウェアを返す。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			elapsed := float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)
			args := append(requestAttrs(r),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", elapsed),
			)
			logger.Log(r.Context(), levelForStatus(rec.statusCode), "http_request", args...)
		})
	}
}
