package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/LingoToday/LingoToday-sub001/internal/apiclient"
	"github.com/LingoToday/LingoToday-sub001/internal/config"
	"github.com/LingoToday/LingoToday-sub001/internal/database"
	"github.com/LingoToday/LingoToday-sub001/internal/draft"
	"github.com/LingoToday/LingoToday-sub001/internal/metrics"
	"github.com/LingoToday/LingoToday-sub001/internal/model"
	"github.com/LingoToday/LingoToday-sub001/internal/notification"
	"github.com/LingoToday/LingoToday-sub001/internal/onboarding"
	"github.com/LingoToday/LingoToday-sub001/internal/payment"
	"github.com/LingoToday/LingoToday-sub001/internal/registration"
	"github.com/LingoToday/LingoToday-sub001/internal/repository"
	"github.com/LingoToday/LingoToday-sub001/internal/security"
)

// Scenario はonboardコマンドが実行する画面操作の台本。
type Scenario struct {
	Language      model.Language      `yaml:"language"`
	Level         model.Level         `yaml:"level"`
	LearningStyle model.LearningStyle `yaml:"learning_style"`
	Registration  struct {
		FirstName string `yaml:"first_name"`
		Email     string `yaml:"email"`
		Password  string `yaml:"password"`
	} `yaml:"registration"`
	// AllowNotifications は通知許可ダイアログへの回答。
	AllowNotifications bool `yaml:"allow_notifications"`
	// PaymentMethod はカード送信時の支払い方法。空の場合はcard。
	PaymentMethod payment.PaymentMethodType `yaml:"payment_method"`
}

// LoadScenario はYAMLファイルからScenarioを読み込む。
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if s.PaymentMethod == "" {
		s.PaymentMethod = payment.PaymentMethodCard
	}
	return &s, nil
}

// OnboardReport はonboardコマンドの実行結果。
type OnboardReport struct {
	UserID               string `json:"user_id"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	Outcome              string `json:"outcome"`
	PollAttempts         int    `json:"poll_attempts,omitempty"`
	Terminal             bool   `json:"terminal"`
	Step                 string `json:"step"`
	Notice               string `json:"notice,omitempty"`
}

// scriptedPermission は台本の回答を返す通知許可ダイアログ。
type scriptedPermission struct {
	allow bool
}

func (p scriptedPermission) RequestPermission(context.Context) (bool, error) {
	return p.allow, nil
}

// onboardOptions はFlow構築時の差し替え可能な依存。
type onboardOptions struct {
	httpClient *http.Client
	clock      payment.Clock
	metrics    metrics.MetricsCollector
}

// newOnboardFlow はデバイス側の全コンポーネントをワイヤリングしたFlowを返す。
// 返されたDBは呼び出し側でCloseする。
func newOnboardFlow(cfg *config.Config, allowNotifications bool, opts onboardOptions, logger *slog.Logger) (*onboarding.Flow, *sql.DB, error) {
	// 1. 下書きストア（SQLite）
	db, err := database.OpenSQLite(cfg.DraftDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open draft store: %w", err)
	}
	if err := database.RunDeviceMigrations(cfg.DraftDBPath); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("device migration failed: %w", err)
	}
	store := draft.NewStore(repository.NewSQLiteKeyValueRepo(db), logger)

	// 2. バックエンドと決済事業者のクライアント
	httpClient := opts.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	m := opts.metrics
	if m == nil {
		m = metrics.Nop{}
	}
	api := apiclient.NewClient(httpClient, cfg.APIBaseURL, logger)
	processor := payment.NewHTTPProcessor(httpClient, cfg.ProcessorURL(), logger)

	// 3. ステップごとのコンポーネント
	sanitizer := security.NewTextSanitizer()
	coordinator := registration.NewCoordinator(api, sanitizer, m, logger)
	negotiator := notification.NewNegotiator(scriptedPermission{allow: allowNotifications}, store, api, logger)
	activator := payment.NewActivator(api, processor, sanitizer, payment.ActivatorConfig{
		PriceID: cfg.SubscriptionPriceID,
		Clock:   opts.clock,
		OnProgress: func(p payment.Progress) {
			logger.Info("サブスクリプションの有効化を確認中です", slog.Int("attempt", p.Attempt))
		},
	}, m, logger)

	engine := onboarding.NewEngine(store, m, logger)
	return onboarding.NewFlow(store, engine, coordinator, negotiator, activator, logger), db, nil
}

// runScenario はFlowを台本どおりに最後のステップまで進める。
// 決済が成功しなかった場合もエラーにはせず、結果をレポートに含める。
func runScenario(ctx context.Context, flow *onboarding.Flow, s *Scenario) (*OnboardReport, error) {
	if err := flow.Start(ctx); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"language", func() error { return flow.SelectLanguage(ctx, s.Language) }},
		{"language", func() error { return flow.Continue(ctx) }},
		{"level", func() error { return flow.SelectLevel(ctx, s.Level) }},
		{"level", func() error { return flow.Continue(ctx) }},
		{"learning_style", func() error { return flow.SelectLearningStyle(ctx, s.LearningStyle) }},
		{"learning_style", func() error { return flow.Continue(ctx) }},
	}
	for _, st := range steps {
		if err := st.run(); err != nil {
			return nil, fmt.Errorf("%s: %w", st.name, err)
		}
	}

	user, err := flow.Register(ctx, model.Registration{
		FirstName: s.Registration.FirstName,
		Email:     s.Registration.Email,
		Password:  s.Registration.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("registration: %w", err)
	}

	granted, err := flow.RequestNotifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}
	if err := flow.Continue(ctx); err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}
	if err := flow.StartTrial(ctx); err != nil {
		return nil, fmt.Errorf("plan_summary: %w", err)
	}

	result, err := flow.SubmitPayment(ctx, s.PaymentMethod)
	if err != nil {
		return nil, fmt.Errorf("payment: %w", err)
	}

	report := &OnboardReport{
		UserID:               user.ID,
		NotificationsEnabled: granted,
		Outcome:              result.Outcome.String(),
		Terminal:             flow.IsTerminal(),
		Step:                 flow.Current().String(),
	}
	if result.Poll != nil {
		report.PollAttempts = result.Poll.Attempts
	}
	if result.Notice != nil {
		report.Notice = result.Notice.Message
	}
	return report, nil
}

// runOnboard は台本を実行し、結果をJSONでoutへ書き込む。
func runOnboard(ctx context.Context, cfg *config.Config, s *Scenario, out io.Writer) error {
	logger := slog.Default()

	flow, db, err := newOnboardFlow(cfg, s.AllowNotifications, onboardOptions{}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := runScenario(ctx, flow, s)
	if err != nil {
		return fmt.Errorf("onboarding failed: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
