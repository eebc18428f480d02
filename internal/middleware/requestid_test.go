package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{name: "クライアント指定のIDを引き継ぐ", header: "req-123", wantSame: true},
		{name: "未指定の場合は採番する", header: ""},
		{name: "空白を含むIDは採番し直す", header: "req 123"},
		{name: "長すぎるIDは採番し直す", header: strings.Repeat("a", maxRequestIDLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromCtx string
			handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fromCtx = RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
			if tt.header != "" {
				req.Header.Set(HeaderRequestID, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			got := w.Header().Get(HeaderRequestID)
			if got != fromCtx {
				t.Errorf("レスポンスヘッダーとコンテキストのIDが一致しない: header=%q ctx=%q", got, fromCtx)
			}
			if tt.wantSame {
				if got != tt.header {
					t.Errorf("request id = %q, want %q", got, tt.header)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("採番されたIDはUUIDであるべき: %q", got)
			}
		})
	}
}
