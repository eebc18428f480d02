// Package payment はサブスクリプションの有効化プロトコルを提供する。
//
// 決済インテントの作成、外部決済事業者での確定、エラーの分類、
// Webhookで更新されるサブスクリプション状態の照合ポーリングを順に行う。
// 確定呼び出しの応答は最終状態を保証しないため、成功時と曖昧な失敗時は
// 状態エンドポイントを照合して結果を確定させる。
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/LingoToday/LingoToday-sub001/internal/metrics"
	"github.com/LingoToday/LingoToday-sub001/internal/model"
	"github.com/LingoToday/LingoToday-sub001/internal/security"
)

// ErrActivationInProgress は有効化処理（確定呼び出しまたは照合）が進行中の場合に返される。
var ErrActivationInProgress = errors.New("payment: activation already in progress")

// Outcome は有効化試行の画面向けの結果。
type Outcome int

const (
	// OutcomeSuccess はサブスクリプションの有効化を確認した。
	OutcomeSuccess Outcome = iota + 1
	// OutcomePendingActivation は照合中で、まだ有効化が反映されていない。
	OutcomePendingActivation
	// OutcomeDefinitiveFailure は確定的な失敗。カード情報を再入力して再送信できる。
	OutcomeDefinitiveFailure
	// OutcomeUnclear は上限回数内に有効化を確認できなかった。後で有効化される可能性がある。
	OutcomeUnclear
	// OutcomeRegistrationRequired は認証済みユーザーが存在しないため決済を開始しなかった。
	OutcomeRegistrationRequired
)

// String は結果名を返す。ログとメトリクスのラベルに使用する。
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePendingActivation:
		return "pending_activation"
	case OutcomeDefinitiveFailure:
		return "definitive_failure"
	case OutcomeUnclear:
		return "unclear"
	case OutcomeRegistrationRequired:
		return "registration_required"
	default:
		return "none"
	}
}

// AttemptOutcome は1回の決済試行の確定呼び出しの結果。
type AttemptOutcome int

const (
	AttemptPending AttemptOutcome = iota
	AttemptConfirmed
	AttemptDefinitiveFailure
	AttemptAmbiguousFailure
)

// String は試行結果名を返す。
func (o AttemptOutcome) String() string {
	switch o {
	case AttemptConfirmed:
		return "confirmed"
	case AttemptDefinitiveFailure:
		return "definitive_failure"
	case AttemptAmbiguousFailure:
		return "ambiguous_failure"
	default:
		return "pending"
	}
}

// Attempt はカード送信1回分の決済試行。確定的な失敗の場合は破棄され、自動再試行はしない。
type Attempt struct {
	ID           string
	ClientSecret string
	Outcome      AttemptOutcome
	ErrorCode    ErrorCode
	// RawErrorCode は決済事業者が返したコード文字列。
	RawErrorCode string
}

// Result は有効化試行の結果。
type Result struct {
	Outcome Outcome
	// Attempt は決済インテント作成前に終了した場合はnil。
	Attempt *Attempt
	// Poll は照合を行った場合のみ設定される。
	Poll *PollResult
	// Notice は画面に表示するメッセージ。成功時はnil。
	Notice *model.APIError
}

// Progress は照合中の進捗通知。
type Progress struct {
	Outcome Outcome
	Attempt int
}

// SubscriptionAPI は有効化に使用するバックエンドAPIのインターフェース。
type SubscriptionAPI interface {
	CurrentUser(ctx context.Context) (*model.User, error)
	CreateSubscription(ctx context.Context, priceID string) (string, error)
	StatusChecker
}

// ActivatorConfig はActivatorの設定。
type ActivatorConfig struct {
	// PriceID はサブスクリプションの固定価格ID。
	PriceID string
	// Clock は照合の待機に使用する。nilの場合は実時間。
	Clock Clock
	// OnProgress は照合中の未反映ティックごとに呼ばれる（nil可）。
	OnProgress func(Progress)
}

// Activator はサブスクリプション有効化プロトコルを実行する。
// 同時に実行できる試行と照合はそれぞれ1つまで。
type Activator struct {
	api       SubscriptionAPI
	processor Processor
	sanitizer security.TextSanitizer
	poller    *Poller
	clock     Clock
	cfg       ActivatorConfig
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	mu   sync.Mutex
	busy bool
}

// NewActivator はActivatorを生成する。
// 決済事業者のエラーメッセージはsanitizerでプレーンテキスト化してから画面に渡す。
func NewActivator(api SubscriptionAPI, processor Processor, sanitizer security.TextSanitizer, cfg ActivatorConfig, m metrics.MetricsCollector, logger *slog.Logger) *Activator {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	return &Activator{
		api:       api,
		processor: processor,
		sanitizer: sanitizer,
		poller:    NewPoller(api, clock, m, logger),
		clock:     clock,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// Busy は確定呼び出しまたは照合が進行中かを返す。進行中は送信操作を無効にする。
func (a *Activator) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

func (a *Activator) acquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		return false
	}
	a.busy = true
	return true
}

func (a *Activator) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy = false
}

// Activate は有効化プロトコルを1回実行する。
// 進行中に呼ばれた場合は副作用なしでErrActivationInProgressを返す。
// 照合中にctxがキャンセルされた場合はOutcomeUnclearとctx.Err()を返す。
// それ以外の失敗はResult.Outcomeで表し、errorはnilとなる。
func (a *Activator) Activate(ctx context.Context, method PaymentMethodType) (Result, error) {
	if !a.acquire() {
		return Result{}, ErrActivationInProgress
	}
	defer a.release()

	result, err := a.activate(ctx, method)
	a.metrics.RecordPaymentOutcome(result.Outcome.String())
	return result, err
}

func (a *Activator) activate(ctx context.Context, method PaymentMethodType) (Result, error) {
	// 1. 認証済みユーザーの確認
	user, err := a.api.CurrentUser(ctx)
	if err != nil || user == nil {
		a.logger.Info("認証済みユーザーが確認できないため決済を開始しません",
			slog.Any("error", err),
		)
		return Result{
			Outcome: OutcomeRegistrationRequired,
			Notice:  model.NewRegistrationRequiredError(),
		}, nil
	}

	// 2. 決済インテントの作成
	attempt := &Attempt{ID: uuid.NewString(), Outcome: AttemptPending}
	secret, err := a.api.CreateSubscription(ctx, a.cfg.PriceID)
	if err != nil {
		a.logger.Warn("決済インテントの作成に失敗しました",
			slog.String("attempt_id", attempt.ID),
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		attempt.Outcome = AttemptDefinitiveFailure
		return Result{
			Outcome: OutcomeDefinitiveFailure,
			Attempt: attempt,
			Notice:  model.NewPaymentFailedError("the payment could not be started"),
		}, nil
	}
	attempt.ClientSecret = secret

	// 3. 決済事業者での確定
	confirmedAt := a.clock.Now()
	if err := a.processor.ConfirmPayment(ctx, secret, method); err != nil {
		pe := AsProcessorError(err)
		attempt.ErrorCode = pe.Code
		attempt.RawErrorCode = pe.RawCode

		// 4. エラーの分類
		if Classify(pe.Code) == ClassificationDefinitive {
			attempt.Outcome = AttemptDefinitiveFailure
			a.logger.Info("決済が確定的に失敗しました",
				slog.String("attempt_id", attempt.ID),
				slog.String("code", pe.Code.String()),
			)
			return Result{
				Outcome: OutcomeDefinitiveFailure,
				Attempt: attempt,
				Notice:  model.NewPaymentFailedError(a.sanitizer.Sanitize(pe.Message)),
			}, nil
		}

		attempt.Outcome = AttemptAmbiguousFailure
		a.logger.Info("決済確定の結果が不明なため照合を開始します",
			slog.String("attempt_id", attempt.ID),
			slog.String("code", pe.Code.String()),
			slog.String("raw_code", pe.RawCode),
		)
	} else {
		attempt.Outcome = AttemptConfirmed
		a.logger.Info("決済を確定しました。照合を開始します",
			slog.String("attempt_id", attempt.ID),
		)
	}

	// 5. 照合ポーリング
	poll, err := a.poller.Run(ctx, func(n int) {
		if a.cfg.OnProgress != nil {
			a.cfg.OnProgress(Progress{Outcome: OutcomePendingActivation, Attempt: n})
		}
	})
	result := Result{Attempt: attempt, Poll: &poll}
	if err != nil {
		result.Outcome = OutcomeUnclear
		result.Notice = model.NewActivationUnclearError()
		return result, fmt.Errorf("照合が中断されました: %w", err)
	}

	if poll.Active {
		a.metrics.RecordActivationLatency(a.clock.Now().Sub(confirmedAt))
		result.Outcome = OutcomeSuccess
		return result, nil
	}

	// 6. 上限到達
	result.Outcome = OutcomeUnclear
	result.Notice = model.NewActivationUnclearError()
	return result, nil
}
