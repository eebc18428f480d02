package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/LingoToday/LingoToday-sub001/internal/draft"
	"github.com/LingoToday/LingoToday-sub001/internal/model"
	"github.com/LingoToday/LingoToday-sub001/internal/payment"
)

// Registrar はアカウント登録を行うインターフェース。
type Registrar interface {
	Register(ctx context.Context, reg model.Registration) (*model.User, error)
}

// PermissionNegotiator は通知許可を確認するインターフェース。
type PermissionNegotiator interface {
	RequestPermission(ctx context.Context) (bool, error)
}

// SubscriptionActivator はサブスクリプション有効化を行うインターフェース。
type SubscriptionActivator interface {
	Activate(ctx context.Context, method payment.PaymentMethodType) (payment.Result, error)
	Busy() bool
}

// Flow は画面から呼ばれるオンボーディングの操作をまとめる。
// 自己駆動ステップの成功はFlowがEngineへ通知する。
type Flow struct {
	store      *draft.Store
	engine     *Engine
	registrar  Registrar
	negotiator PermissionNegotiator
	activator  SubscriptionActivator
	logger     *slog.Logger

	// registered は登録APIは成功したが下書きの確定に失敗したユーザー。
	// 同じメールアドレスでの再送信ではAPIを呼び直さずに確定のみ再試行する。
	registered *model.User
}

// NewFlow はFlowを生成する。
func NewFlow(store *draft.Store, engine *Engine, registrar Registrar, negotiator PermissionNegotiator, activator SubscriptionActivator, logger *slog.Logger) *Flow {
	return &Flow{
		store:      store,
		engine:     engine,
		registrar:  registrar,
		negotiator: negotiator,
		activator:  activator,
		logger:     logger,
	}
}

// Start はフローに入るたびに呼ばれ、前回の下書きを破棄して最初のステップから始める。
func (f *Flow) Start(ctx context.Context) error {
	if err := f.store.Reset(ctx); err != nil {
		return fmt.Errorf("オンボーディングの開始に失敗しました: %w", err)
	}
	f.registered = nil
	f.logger.Info("オンボーディングを開始しました")
	return nil
}

// Session は現在のセッションのコピーを返す。
func (f *Flow) Session() model.OnboardingSession {
	return f.store.Session()
}

// Current は現在のステップを返す。
func (f *Flow) Current() Step {
	return f.engine.Current()
}

// IsTerminal はオンボーディングが完了したかを返す。
func (f *Flow) IsTerminal() bool {
	return f.engine.IsTerminal()
}

// Controls は現在ステップの操作状態を返す。
// 決済の試行または照合が進行中の間は送信操作を無効にする。
func (f *Flow) Controls() Controls {
	c := f.engine.Controls()
	if f.activator.Busy() {
		c.SubmitEnabled = false
	}
	return c
}

// Continue は汎用「続ける」操作。
func (f *Flow) Continue(ctx context.Context) error {
	return f.engine.Advance(ctx)
}

// SelectLanguage は学習言語を選択する。
func (f *Flow) SelectLanguage(ctx context.Context, lang model.Language) error {
	if err := f.expect(StepLanguage); err != nil {
		return err
	}
	if !lang.Valid() {
		return invalidChoice(model.FieldLanguage, string(lang))
	}
	return f.store.Update(ctx, draft.Patch{Language: &lang})
}

// SelectLevel は現在のレベルを選択する。
func (f *Flow) SelectLevel(ctx context.Context, level model.Level) error {
	if err := f.expect(StepLevel); err != nil {
		return err
	}
	if !level.Valid() {
		return invalidChoice(model.FieldLevel, string(level))
	}
	return f.store.Update(ctx, draft.Patch{Level: &level})
}

// SelectLearningStyle は学習スタイルを選択する。
func (f *Flow) SelectLearningStyle(ctx context.Context, style model.LearningStyle) error {
	if err := f.expect(StepLearningStyle); err != nil {
		return err
	}
	if !style.Valid() {
		return invalidChoice(model.FieldLearningStyle, string(style))
	}
	return f.store.Update(ctx, draft.Patch{LearningStyle: &style})
}

// Register は登録ステップの送信操作。
// 成功時は下書きを確定キーへ書き込み、Identityを設定してパスワードを破棄し、次のステップへ進む。
// 失敗時はステップに留まり、エラー（*model.ValidationErrorまたは*registration.RegistrationError）を返す。
func (f *Flow) Register(ctx context.Context, reg model.Registration) (*model.User, error) {
	if err := f.expect(StepRegistration); err != nil {
		return nil, err
	}
	if err := f.store.Update(ctx, draft.Patch{Registration: &reg}); err != nil {
		return nil, err
	}

	user := f.registered
	if user == nil || !strings.EqualFold(user.Email, strings.TrimSpace(reg.Email)) {
		var err error
		user, err = f.registrar.Register(ctx, reg)
		if err != nil {
			return nil, err
		}
	} else {
		f.logger.Info("登録済みユーザーで下書きの確定を再試行します", slog.String("user_id", user.ID))
	}

	cleared := model.Registration{FirstName: user.FirstName, Email: user.Email}
	if cleared.FirstName == "" {
		cleared.FirstName = reg.FirstName
	}
	if cleared.Email == "" {
		cleared.Email = reg.Email
	}
	if err := f.engine.completeRegistration(ctx, user, cleared); err != nil {
		f.registered = user
		f.logger.Error("登録後の下書きの確定に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	f.registered = nil

	f.logger.Info("アカウント登録が完了しました", slog.String("user_id", user.ID))
	return user, nil
}

// RequestNotifications は通知許可を確認する。拒否されてもステップは続行できる。
func (f *Flow) RequestNotifications(ctx context.Context) (bool, error) {
	if err := f.expect(StepNotifications); err != nil {
		return false, err
	}
	return f.negotiator.RequestPermission(ctx)
}

// StartTrial はプラン概要ステップの「トライアル開始」操作。
func (f *Flow) StartTrial(ctx context.Context) error {
	return f.engine.Complete(ctx, StepPlanSummary)
}

// SubmitPayment は決済ステップの送信操作。
// 有効化を確認した場合のみウィザードを終了状態にする。
func (f *Flow) SubmitPayment(ctx context.Context, method payment.PaymentMethodType) (payment.Result, error) {
	if err := f.expect(StepPayment); err != nil {
		return payment.Result{}, err
	}
	if f.engine.IsTerminal() {
		return payment.Result{}, fmt.Errorf("%w: onboarding already completed", ErrStepMismatch)
	}

	result, err := f.activator.Activate(ctx, method)
	if err != nil {
		return result, err
	}
	if result.Outcome == payment.OutcomeSuccess {
		if err := f.engine.Finish(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (f *Flow) expect(step Step) error {
	if current := f.engine.Current(); current != step {
		return fmt.Errorf("%w: current=%s, expected=%s", ErrStepMismatch, current, step)
	}
	return nil
}

func invalidChoice(field model.Field, value string) error {
	return &model.ValidationError{
		Fields:  map[model.Field]string{field: fmt.Sprintf("%q is not a supported option.", value)},
		Message: "invalid selection",
	}
}
