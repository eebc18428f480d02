package app

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LingoToday/LingoToday-sub001/internal/config"
	"github.com/LingoToday/LingoToday-sub001/internal/database"
	"github.com/LingoToday/LingoToday-sub001/internal/draft"
	"github.com/LingoToday/LingoToday-sub001/internal/logger"
	"github.com/LingoToday/LingoToday-sub001/internal/model"
	"github.com/LingoToday/LingoToday-sub001/internal/payment"
	"github.com/LingoToday/LingoToday-sub001/internal/repository"
	"github.com/LingoToday/LingoToday-sub001/internal/subscription"
)

// webhookClock は待機のたびにWebhookディスパッチャを1回実行してから即座に発火するClock。
type webhookClock struct {
	mu       sync.Mutex
	now      time.Time
	waits    int
	dispatch func()
}

func (c *webhookClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *webhookClock) After(d time.Duration) <-chan time.Time {
	c.dispatch()

	c.mu.Lock()
	c.now = c.now.Add(d)
	c.waits++
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func newTestSandboxConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		HTTPTimeout:            5 * time.Second,
		SubscriptionPriceID:    "price_pro_monthly",
		DraftDBPath:            filepath.Join(t.TempDir(), "onboarding.db"),
		SandboxJWTSecret:       "e2e-secret",
		SandboxTokenTTL:        time.Hour,
		SandboxWebhookDelay:    0,
		SandboxWebhookInterval: time.Second,
		SandboxIntentTTL:       24 * time.Hour,
		SandboxRateLimit:       30,
		SandboxAllowedOrigin:   "http://localhost:19006",
	}
}

// 言語・レベル・スタイルを選択し、登録、通知拒否、トライアル開始、
// 曖昧な決済エラー（network_blip）を経て最初の照合で有効化を確認するシナリオ
func TestEndToEnd_AmbiguousPaymentReconcilesToSuccess(t *testing.T) {
	ctx := context.Background()
	cfg := newTestSandboxConfig(t)

	sb, err := NewSandbox(cfg, logger.Discard())
	if err != nil {
		t.Fatalf("NewSandboxがエラーを返した: %v", err)
	}
	defer sb.Close()

	srv := httptest.NewServer(sb.Handler)
	defer srv.Close()
	cfg.APIBaseURL = srv.URL

	clock := &webhookClock{
		now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		dispatch: func() {
			if _, err := sb.Dispatcher.RunOnce(ctx); err != nil {
				t.Errorf("RunOnceがエラーを返した: %v", err)
			}
		},
	}

	flow, db, err := newOnboardFlow(cfg, false, onboardOptions{clock: clock}, logger.Discard())
	if err != nil {
		t.Fatalf("newOnboardFlowがエラーを返した: %v", err)
	}
	defer db.Close()

	scenario := &Scenario{
		Language:      model.LanguageSpanish,
		Level:         model.LevelBeginner,
		LearningStyle: model.LearningStyleMobile,
		PaymentMethod: subscription.MethodCardBlip,
	}
	scenario.Registration.FirstName = "Ana"
	scenario.Registration.Email = "ana@example.com"
	scenario.Registration.Password = "Secret123"

	report, err := runScenario(ctx, flow, scenario)
	if err != nil {
		t.Fatalf("runScenarioがエラーを返した: %v", err)
	}

	if report.Outcome != payment.OutcomeSuccess.String() {
		t.Errorf("Outcome = %s, want success", report.Outcome)
	}
	if report.PollAttempts != 1 {
		t.Errorf("PollAttempts = %d, want 1", report.PollAttempts)
	}
	if !report.Terminal {
		t.Error("有効化後は終了状態であるべき")
	}
	if report.NotificationsEnabled {
		t.Error("通知は拒否されているべき")
	}
	if report.UserID == "" {
		t.Error("ユーザーIDが設定されるべき")
	}

	// 下書きストアを開き直しても完了状態が読めること
	reopened, err := database.OpenSQLite(cfg.DraftDBPath)
	if err != nil {
		t.Fatalf("OpenSQLiteがエラーを返した: %v", err)
	}
	defer reopened.Close()
	store := draft.NewStore(repository.NewSQLiteKeyValueRepo(reopened), logger.Discard())
	persisted, err := store.Load(ctx, draft.FinalizedKey)
	if err != nil {
		t.Fatalf("Loadがエラーを返した: %v", err)
	}
	if persisted == nil || !persisted.Completed || persisted.Identity == nil || persisted.Identity.ID != report.UserID {
		t.Errorf("確定キーに完了状態が保存されるべき: %+v", persisted)
	}
	if persisted != nil && persisted.Registration.Password != "" {
		t.Error("パスワードは永続化されるべきではない")
	}
}

// カード拒否は照合せずに確定的な失敗となり、決済ステップに留まること
func TestEndToEnd_DeclinedCardStaysOnPayment(t *testing.T) {
	ctx := context.Background()
	cfg := newTestSandboxConfig(t)

	sb, err := NewSandbox(cfg, logger.Discard())
	if err != nil {
		t.Fatalf("NewSandboxがエラーを返した: %v", err)
	}
	defer sb.Close()

	srv := httptest.NewServer(sb.Handler)
	defer srv.Close()
	cfg.APIBaseURL = srv.URL

	clock := &webhookClock{now: time.Now(), dispatch: func() {}}
	flow, db, err := newOnboardFlow(cfg, true, onboardOptions{clock: clock}, logger.Discard())
	if err != nil {
		t.Fatalf("newOnboardFlowがエラーを返した: %v", err)
	}
	defer db.Close()

	scenario := &Scenario{
		Language:           model.LanguageFrench,
		Level:              model.LevelAdvanced,
		LearningStyle:      model.LearningStyleAudio,
		AllowNotifications: true,
		PaymentMethod:      subscription.MethodCardDeclined,
	}
	scenario.Registration.FirstName = "Luc"
	scenario.Registration.Email = "luc@example.com"
	scenario.Registration.Password = "Secret123"

	report, err := runScenario(ctx, flow, scenario)
	if err != nil {
		t.Fatalf("runScenarioがエラーを返した: %v", err)
	}

	if report.Outcome != payment.OutcomeDefinitiveFailure.String() {
		t.Errorf("Outcome = %s, want definitive_failure", report.Outcome)
	}
	if report.Terminal {
		t.Error("失敗時は終了状態にならないべき")
	}
	if report.Step != "payment" {
		t.Errorf("Step = %s, want payment", report.Step)
	}
	if clock.waits != 0 {
		t.Errorf("確定的な失敗では照合しないべき: waits=%d", clock.waits)
	}
	if !report.NotificationsEnabled {
		t.Error("通知は許可されているべき")
	}
	if report.Notice == "" {
		t.Error("失敗時は案内メッセージを含むべき")
	}
}

func TestLoadScenario_DefaultsPaymentMethod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	data := []byte(`language: spanish
level: beginner
learning_style: mobile
registration:
  first_name: Ana
  email: ana@example.com
  password: Secret123
allow_notifications: false
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("シナリオの書き込みに失敗: %v", err)
	}

	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenarioがエラーを返した: %v", err)
	}
	if s.Language != model.LanguageSpanish || s.Registration.FirstName != "Ana" {
		t.Errorf("シナリオの読み込み結果が不正: %+v", s)
	}
	if s.PaymentMethod != payment.PaymentMethodCard {
		t.Errorf("PaymentMethod = %q, want card", s.PaymentMethod)
	}
}

func TestLoadScenario_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("language: [unterminated"), 0o600); err != nil {
		t.Fatalf("シナリオの書き込みに失敗: %v", err)
	}
	if _, err := LoadScenario(path); err == nil {
		t.Fatal("不正なYAMLはエラーを返すべき")
	}
}
