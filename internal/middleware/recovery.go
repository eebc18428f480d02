package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラーのpanicを回復してログに記録するミドルウェアを生成する。
// レスポンスが未送信の場合のみ統一エラー形式の500を返す。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				args := append(requestAttrs(r),
					slog.Any("panic", v),
					slog.Bool("response_started", rec.written),
					slog.String("stack", string(debug.Stack())),
				)
				logger.Error("panic recovered", args...)

				if !rec.written {
					WriteInternalServerError(rec)
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
