package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LingoToday/LingoToday-sub001/internal/metrics"
	"github.com/LingoToday/LingoToday-sub001/internal/middleware"
)

// Pinger はヘルスチェックで疎通確認する依存先。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string // カンマ区切りで複数指定可
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector

	// 認証
	AuthService AuthServiceInterface

	// サブスクリプション
	SubscriptionService SubscriptionServiceInterface
	Processor           ProcessorInterface

	// ヘルスチェック（nilの場合は常に成功）
	HealthChecker Pinger

	// MetricsHandler が設定されている場合は /metrics で公開する
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → CORS → (BearerAuth → RateLimit(General))
//
// 登録・ログイン（/api/auth/register, /api/auth/login）は認証レート制限のみを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(m))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	subHandler := NewSubscriptionHandler(deps.SubscriptionService, deps.Processor)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())
		r.Post("/api/auth/register", authHandler.Register)
		r.Post("/api/auth/login", authHandler.Login)
	})

	// 決済事業者エミュレーション
	r.Post("/processor/confirm", subHandler.Confirm)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/auth/user", authHandler.Me)
		r.Post("/api/create-subscription", subHandler.CreateSubscription)
		r.Get("/api/subscription-status", subHandler.Status)
		r.Put("/api/notification-setup-status", subHandler.NotificationSetup)
	})

	return r
}

// healthHandler はDBへの疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			if err := p.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
