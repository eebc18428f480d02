// Package app はlingotodayコマンドの初期化とサブコマンドの実行を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LingoToday/LingoToday-sub001/internal/config"
	"github.com/LingoToday/LingoToday-sub001/internal/database"
	"github.com/LingoToday/LingoToday-sub001/internal/logger"
)

const (
	migrateTargetDevice  = "device"
	migrateTargetSandbox = "sandbox"
	migrateTargetAll     = "all"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// InitSandbox はサンドボックス起動用の初期化を行う。
// 署名鍵が未設定の場合はエラーを返す。
func InitSandbox(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadSandbox()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMを受信するとコンテキストをキャンセルする。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, target string) error {
	switch target {
	case migrateTargetDevice, migrateTargetSandbox, migrateTargetAll:
	default:
		return fmt.Errorf("unknown migration target %q", target)
	}

	if target == migrateTargetDevice || target == migrateTargetAll {
		slog.Info("running device migrations", slog.String("path", cfg.DraftDBPath))

		// SQLiteファイルの親ディレクトリを作成するため先に開く
		db, err := database.OpenSQLite(cfg.DraftDBPath)
		if err != nil {
			return fmt.Errorf("failed to open draft store: %w", err)
		}
		db.Close()

		if err := database.RunDeviceMigrations(cfg.DraftDBPath); err != nil {
			return fmt.Errorf("device migration failed: %w", err)
		}
	}

	if target == migrateTargetSandbox || target == migrateTargetAll {
		if !cfg.UsePostgres() {
			if target == migrateTargetSandbox {
				return fmt.Errorf("SANDBOX_DATABASE_URL is not set")
			}
			slog.Info("skipping sandbox migrations: SANDBOX_DATABASE_URL is not set")
		} else {
			slog.Info("running sandbox migrations",
				slog.String("database_url", maskDatabaseURL(cfg.SandboxDatabaseURL)),
			)
			if err := database.RunMigrations(cfg.SandboxDatabaseURL); err != nil {
				return fmt.Errorf("sandbox migration failed: %w", err)
			}
		}
	}

	slog.Info("database migrations completed successfully", slog.String("target", target))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
