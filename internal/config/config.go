// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Client
	APIBaseURL          string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	ProcessorBaseURL    string        `env:"PROCESSOR_BASE_URL"`
	HTTPTimeout         time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	SubscriptionPriceID string        `env:"SUBSCRIPTION_PRICE_ID" envDefault:"price_pro_monthly"`
	DraftDBPath         string        `env:"DRAFT_DB_PATH" envDefault:"./data/onboarding.db"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`

	// Sandbox
	SandboxPort            string        `env:"SANDBOX_PORT" envDefault:"8080"`
	SandboxDatabaseURL     string        `env:"SANDBOX_DATABASE_URL"`
	SandboxJWTSecret       string        `env:"SANDBOX_JWT_SECRET"`
	SandboxTokenTTL        time.Duration `env:"SANDBOX_TOKEN_TTL" envDefault:"24h"`
	SandboxWebhookDelay    time.Duration `env:"SANDBOX_WEBHOOK_DELAY" envDefault:"10s"`
	SandboxWebhookInterval time.Duration `env:"SANDBOX_WEBHOOK_INTERVAL" envDefault:"1s"`
	SandboxIntentTTL       time.Duration `env:"SANDBOX_INTENT_TTL" envDefault:"24h"`
	SandboxRateLimit       int           `env:"SANDBOX_RATE_LIMIT" envDefault:"30"`
	SandboxAllowedOrigin   string        `env:"SANDBOX_ALLOWED_ORIGIN" envDefault:"http://localhost:19006"` // カンマ区切り

	// Metrics
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadSandbox はサンドボックス起動用にConfigを読み込む。
// 署名鍵SANDBOX_JWT_SECRETが必須となる。
func LoadSandbox() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.SandboxJWTSecret == "" {
		return nil, fmt.Errorf("required environment variables are not set: %v", []string{"SANDBOX_JWT_SECRET"})
	}
	return cfg, nil
}

// ProcessorURL は決済事業者エンドポイントのベースURLを返す。
// 未設定の場合はAPIベースURLと同一ホスト（サンドボックス）を使う。
func (c *Config) ProcessorURL() string {
	if c.ProcessorBaseURL != "" {
		return c.ProcessorBaseURL
	}
	return c.APIBaseURL
}

// UsePostgres はサンドボックスがPostgreSQLを永続化に使うかを返す。
func (c *Config) UsePostgres() bool {
	return c.SandboxDatabaseURL != ""
}

func (c *Config) validate() error {
	var invalid []string

	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		invalid = append(invalid, "API_BASE_URL")
	}
	if c.HTTPTimeout <= 0 {
		invalid = append(invalid, "HTTP_TIMEOUT")
	}
	if c.SubscriptionPriceID == "" {
		invalid = append(invalid, "SUBSCRIPTION_PRICE_ID")
	}
	if c.SandboxRateLimit <= 0 {
		invalid = append(invalid, "SANDBOX_RATE_LIMIT")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment variables: %v", invalid)
	}
	return nil
}
