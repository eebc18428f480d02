package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/LingoToday/LingoToday-sub001/internal/draft"
	"github.com/LingoToday/LingoToday-sub001/internal/metrics"
	"github.com/LingoToday/LingoToday-sub001/internal/model"
)

var (
	// ErrCannotAdvance は現在ステップのガードが満たされていない場合に返される。
	ErrCannotAdvance = errors.New("onboarding: cannot advance from current step")
	// ErrStepMismatch は完了通知のステップが現在ステップと一致しない場合に返される。
	ErrStepMismatch = errors.New("onboarding: step is not the current step")
	// ErrNotSelfDriving は汎用操作を持つステップに完了通知が届いた場合に返される。
	ErrNotSelfDriving = errors.New("onboarding: step is not self-driving")
	// ErrIdentityRequired は登録ステップをIdentityなしで完了しようとした場合に返される。
	ErrIdentityRequired = errors.New("onboarding: registration requires a signed-in identity")
)

// missingFieldMessages はガード未達時にフィールドへ表示するメッセージ。
var missingFieldMessages = map[Step]struct {
	field   model.Field
	message string
}{
	StepLanguage:      {model.FieldLanguage, "Please choose a language to learn."},
	StepLevel:         {model.FieldLevel, "Please choose your current level."},
	StepLearningStyle: {model.FieldLearningStyle, "Please choose how you like to learn."},
}

// Controls は現在ステップで画面に表示する操作の状態。
type Controls struct {
	Step Step
	// ShowContinue は汎用「続ける」操作を表示するか。
	ShowContinue bool
	// ContinueEnabled は汎用「続ける」操作が押下可能か。
	ContinueEnabled bool
	// SubmitEnabled はステップ固有の送信操作（登録、トライアル開始、決済）が押下可能か。
	SubmitEnabled bool
}

// Engine はウィザードのステップ遷移を管理する。
// すべての遷移は下書きストアへの書き込みを伴う。
type Engine struct {
	store   *draft.Store
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	mu sync.Mutex
}

// NewEngine はEngineを生成する。
func NewEngine(store *draft.Store, m metrics.MetricsCollector, logger *slog.Logger) *Engine {
	return &Engine{
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// Current は現在のステップを返す。
func (e *Engine) Current() Step {
	return Step(e.store.Session().StepIndex)
}

// CanAdvance は汎用操作で次のステップへ進めるかを返す。
func (e *Engine) CanAdvance() bool {
	s := e.store.Session()
	return CanAdvance(&s)
}

// Advance は汎用操作によりステップを1つ進める。
// ガードが満たされていない場合は状態を変更せず*model.ValidationErrorを返す。
func (e *Engine) Advance(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.store.Session()
	step := Step(s.StepIndex)
	if !CanAdvance(&s) {
		verr := &model.ValidationError{
			Message: fmt.Sprintf("step %s cannot be continued", step),
			Err:     ErrCannotAdvance,
		}
		if m, ok := missingFieldMessages[step]; ok {
			verr.Fields = map[model.Field]string{m.field: m.message}
		}
		e.logger.Debug("ガード未達のため遷移しません", slog.String("step", step.String()))
		return verr
	}

	return e.moveLocked(ctx, step, draft.Patch{}, e.store.Update)
}

// Complete は自己駆動ステップの完了通知を受けて次のステップへ進める。
// 登録ステップはIdentityを伴うcompleteRegistrationでのみ完了できる。
// 最終ステップの完了はFinishで行う。
func (e *Engine) Complete(ctx context.Context, step Step) error {
	if step == StepRegistration {
		return fmt.Errorf("%w: %s", ErrIdentityRequired, step)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkCompletableLocked(step); err != nil {
		return err
	}
	return e.moveLocked(ctx, step, draft.Patch{}, e.store.Update)
}

// completeRegistration は登録成功を受けて、確定キーへの書き込みと同時に
// Identityの設定、パスワードを除いた登録内容の保存、ステップの遷移を行う。
// 書き込みに失敗した場合は登録ステップに留まる。
func (e *Engine) completeRegistration(ctx context.Context, user *model.User, reg model.Registration) error {
	if user == nil || user.ID == "" {
		return ErrIdentityRequired
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkCompletableLocked(StepRegistration); err != nil {
		return err
	}
	reg.Password = ""
	return e.moveLocked(ctx, StepRegistration, draft.Patch{
		Identity:     user,
		Registration: &reg,
	}, e.store.Finalize)
}

func (e *Engine) checkCompletableLocked(step Step) error {
	current := e.Current()
	if current != step {
		return fmt.Errorf("%w: current=%s, completed=%s", ErrStepMismatch, current, step)
	}
	def, ok := Definition(step)
	if !ok || !def.SelfDriving() {
		return fmt.Errorf("%w: %s", ErrNotSelfDriving, step)
	}
	if step == LastStep {
		return fmt.Errorf("%w: %s is the last step", ErrStepMismatch, step)
	}
	return nil
}

// Finish は決済ステップでサブスクリプションの有効化が確認されたことを記録し、
// ウィザードを終了状態にする。
func (e *Engine) Finish(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if current := e.Current(); current != LastStep {
		return fmt.Errorf("%w: current=%s, completed=%s", ErrStepMismatch, current, LastStep)
	}
	if err := e.store.Update(ctx, draft.Patch{Completed: draft.Ptr(true)}); err != nil {
		return fmt.Errorf("終了状態の保存に失敗: %w", err)
	}

	e.metrics.RecordStepAdvanced(LastStep.String())
	e.logger.Info("オンボーディングが完了しました")
	return nil
}

// IsTerminal はウィザードが終了状態（決済ステップで有効化確認済み）かを返す。
func (e *Engine) IsTerminal() bool {
	s := e.store.Session()
	return Step(s.StepIndex) == LastStep && s.Completed
}

// Controls は現在ステップの操作状態を導出する。
// SubmitEnabledは自己駆動ステップで終了前の場合にtrueとなる。
func (e *Engine) Controls() Controls {
	s := e.store.Session()
	step := Step(s.StepIndex)
	def, ok := Definition(step)
	if !ok {
		return Controls{Step: step}
	}
	return Controls{
		Step:            step,
		ShowContinue:    def.HasGenericControl,
		ContinueEnabled: def.HasGenericControl && def.Guard(&s),
		SubmitEnabled:   def.SelfDriving() && !s.Completed,
	}
}

// moveLocked はステップを1つ進め、persistで永続化する。呼び出し元がe.muを保持していること。
func (e *Engine) moveLocked(ctx context.Context, from Step, p draft.Patch, persist func(context.Context, draft.Patch) error) error {
	next := int(from) + 1
	p.StepIndex = &next
	if err := persist(ctx, p); err != nil {
		return fmt.Errorf("ステップ遷移の保存に失敗: %w", err)
	}

	e.metrics.RecordStepAdvanced(from.String())
	e.logger.Info("オンボーディングのステップを進めました",
		slog.String("from", from.String()),
		slog.String("to", Step(next).String()),
	)
	return nil
}
