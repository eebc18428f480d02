package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/LingoToday/LingoToday-sub001/internal/auth"
	"github.com/LingoToday/LingoToday-sub001/internal/config"
	"github.com/LingoToday/LingoToday-sub001/internal/database"
	"github.com/LingoToday/LingoToday-sub001/internal/handler"
	"github.com/LingoToday/LingoToday-sub001/internal/metrics"
	"github.com/LingoToday/LingoToday-sub001/internal/middleware"
	"github.com/LingoToday/LingoToday-sub001/internal/repository"
	"github.com/LingoToday/LingoToday-sub001/internal/security"
	"github.com/LingoToday/LingoToday-sub001/internal/subscription"
	"github.com/LingoToday/LingoToday-sub001/internal/worker/cleanup"
	"github.com/LingoToday/LingoToday-sub001/internal/worker/webhook"
)

// cleanupInterval は放置インテント削除ジョブの実行間隔。
const cleanupInterval = time.Hour

// Sandbox は開発用バックエンドの構成要素をまとめた構造体。
type Sandbox struct {
	Handler    http.Handler
	Dispatcher *webhook.Dispatcher
	Cleanup    *cleanup.CleanupJob
	Registry   *prometheus.Registry

	rateLimiter *middleware.RateLimiter
	db          *sql.DB
}

// NewSandbox は設定に従ってサンドボックスの全依存関係をワイヤリングする。
// SANDBOX_DATABASE_URLが設定されている場合はPostgreSQL、それ以外はインメモリのリポジトリを使う。
func NewSandbox(cfg *config.Config, logger *slog.Logger) (*Sandbox, error) {
	s := &Sandbox{}

	// 1. リポジトリの初期化
	var (
		accounts repository.AccountRepository
		intents  repository.PaymentIntentRepository
		health   handler.Pinger
	)
	if cfg.UsePostgres() {
		db, err := database.Open(cfg.SandboxDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("database connection established")

		s.db = db
		accounts = repository.NewPostgresAccountRepo(db)
		intents = repository.NewPostgresPaymentIntentRepo(db)
		health = db
	} else {
		logger.Info("using in-memory repositories")
		accounts = repository.NewMemoryAccountRepo()
		intents = repository.NewMemoryPaymentIntentRepo()
	}

	// 2. メトリクス
	s.Registry = prometheus.NewRegistry()
	collector := metrics.NewCollector(s.Registry)

	// 3. ドメインサービスの初期化
	tokens := auth.NewTokenIssuer(cfg.SandboxJWTSecret, cfg.SandboxTokenTTL)
	authService := auth.NewService(accounts, tokens, security.NewTextSanitizer(), auth.ServiceConfig{}, logger)
	subService := subscription.NewService(accounts, intents, subscription.ServiceConfig{
		PriceID:      cfg.SubscriptionPriceID,
		WebhookDelay: cfg.SandboxWebhookDelay,
	}, logger)

	// 4. ワーカーの初期化
	s.Dispatcher = webhook.NewDispatcher(intents, accounts, collector, logger, cfg.SandboxWebhookInterval)
	s.Cleanup = cleanup.NewCleanupJob(intents, logger)
	s.Cleanup.TTL = cfg.SandboxIntentTTL

	// 5. ルーターの構築
	s.rateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.SandboxRateLimit))
	s.Handler = handler.NewRouter(&handler.RouterDeps{
		Logger:              logger,
		TokenVerifier:       authService,
		CORSAllowedOrigin:   cfg.SandboxAllowedOrigin,
		RateLimiter:         s.rateLimiter,
		Metrics:             collector,
		AuthService:         authService,
		SubscriptionService: subService,
		Processor:           subService,
		HealthChecker:       health,
		MetricsHandler:      metrics.Handler(s.Registry),
	})

	return s, nil
}

// Close はレートリミッターとDB接続を解放する。
func (s *Sandbox) Close() error {
	s.rateLimiter.Stop()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// runSandbox はAPIサーバー、Webhookディスパッチャ、クリーンアップジョブ、メトリクスサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runSandbox(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	sb, err := NewSandbox(cfg, logger)
	if err != nil {
		return err
	}
	defer sb.Close()

	server := &http.Server{
		Addr:         ":" + cfg.SandboxPort,
		Handler:      sb.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(sb.Registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("sandbox server starting", slog.String("addr", server.Addr))
		return listen(server)
	})
	g.Go(func() error {
		logger.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
		return listen(metricsServer)
	})
	g.Go(func() error {
		sb.Dispatcher.Start(gctx)
		return nil
	})
	g.Go(func() error {
		sb.Cleanup.Start(gctx, cleanupInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down sandbox...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return errors.Join(server.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("sandbox stopped with error: %w", err)
	}

	logger.Info("sandbox stopped gracefully")
	return nil
}

func listen(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", server.Addr, err)
	}
	return nil
}
