// Package subscription はサンドボックスバックエンドの決済インテント、
// 決済事業者のエミュレーション、サブスクリプション状態を提供する。
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/LingoToday/LingoToday-sub001/internal/model"
	"github.com/LingoToday/LingoToday-sub001/internal/repository"
)

// FieldPriceID は価格IDの入力フィールド。
const FieldPriceID model.Field = "price_id"

// エミュレーションが受け付ける支払い方法。card以外はテスト用のシナリオを表す。
const (
	MethodCard         = "card"
	MethodCardDeclined = "card_declined"
	MethodCardCanceled = "card_canceled"
	MethodCardSlow     = "card_slow"
	MethodCardBlip     = "card_blip"
)

// ConfirmError は決済事業者が確定を拒否または中断した場合のエラー。
// Codeは決済事業者のエラーコード文字列（Failed, Canceled, Timeout等）。
type ConfirmError struct {
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ConfirmError) Error() string {
	return fmt.Sprintf("processor: %s: %s", e.Code, e.Message)
}

// ServiceConfig はサブスクリプションサービスの設定。
type ServiceConfig struct {
	// PriceID は受け付ける固定価格ID。
	PriceID string
	// WebhookDelay は確定からWebhookによる有効化までの遅延。
	WebhookDelay time.Duration
}

// Service はサンドボックスのサブスクリプション管理のサービス層。
type Service struct {
	accounts repository.AccountRepository
	intents  repository.PaymentIntentRepository
	config   ServiceConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	accounts repository.AccountRepository,
	intents repository.PaymentIntentRepository,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		accounts: accounts,
		intents:  intents,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateIntent は決済インテントを作成し、クライアントシークレットを返す。
func (s *Service) CreateIntent(ctx context.Context, userID, priceID string) (string, error) {
	if priceID == "" || priceID != s.config.PriceID {
		return "", &model.ValidationError{
			Message: "The given data was invalid.",
			Fields:  map[model.Field]string{FieldPriceID: "The selected price is invalid."},
		}
	}

	now := s.now()
	intent := &model.PaymentIntent{
		ID:           uuid.New().String(),
		UserID:       userID,
		PriceID:      priceID,
		ClientSecret: "pi_" + uuid.New().String() + "_secret",
		Status:       model.IntentStatusRequiresConfirmation,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		return "", fmt.Errorf("決済インテントの作成に失敗しました: %w", err)
	}

	s.logger.Info("決済インテントを作成しました",
		slog.String("intent_id", intent.ID),
		slog.String("user_id", userID),
	)
	return intent.ClientSecret, nil
}

// Confirm は決済事業者の確定処理をエミュレートする。
// 成功または曖昧な失敗の場合はWebhookDelay後に有効化される。
// 確定的な失敗の場合は有効化されない。
func (s *Service) Confirm(ctx context.Context, clientSecret, method string) error {
	intent, err := s.intents.FindByClientSecret(ctx, clientSecret)
	if err != nil {
		return fmt.Errorf("決済インテントの取得に失敗しました: %w", err)
	}
	if intent == nil {
		return model.NewIntentNotFoundError()
	}

	switch intent.Status {
	case model.IntentStatusProcessing, model.IntentStatusSucceeded:
		return nil
	case model.IntentStatusFailed, model.IntentStatusCanceled:
		return &ConfirmError{Code: "Failed", Message: "This payment can no longer be confirmed."}
	}

	var status model.IntentStatus
	var confirmErr *ConfirmError
	switch method {
	case MethodCard:
		status = model.IntentStatusProcessing
	case MethodCardDeclined:
		status = model.IntentStatusFailed
		confirmErr = &ConfirmError{Code: "Failed", Message: "Your card was declined."}
	case MethodCardCanceled:
		status = model.IntentStatusCanceled
		confirmErr = &ConfirmError{Code: "Canceled", Message: "The payment was canceled."}
	case MethodCardSlow:
		status = model.IntentStatusProcessing
		confirmErr = &ConfirmError{Code: "Timeout", Message: "The processor did not respond in time."}
	case MethodCardBlip:
		status = model.IntentStatusProcessing
		confirmErr = &ConfirmError{Code: "network_blip", Message: "The connection was interrupted."}
	default:
		status = model.IntentStatusFailed
		confirmErr = &ConfirmError{Code: "Failed", Message: "This payment method is not supported."}
	}

	var activateAt *time.Time
	if status == model.IntentStatusProcessing {
		at := s.now().Add(s.config.WebhookDelay)
		activateAt = &at
	}
	if err := s.intents.UpdateStatus(ctx, intent.ID, status, activateAt); err != nil {
		return fmt.Errorf("決済インテントの更新に失敗しました: %w", err)
	}

	s.logger.Info("決済を確定処理しました",
		slog.String("intent_id", intent.ID),
		slog.String("method", method),
		slog.String("status", string(status)),
	)
	if confirmErr != nil {
		return confirmErr
	}
	return nil
}

// Status はユーザーのサブスクリプションが有効かを返す。
func (s *Service) Status(ctx context.Context, userID string) (bool, error) {
	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return false, model.NewUserNotFoundError()
	}
	return account.IsProUser, nil
}

// RecordNotificationSetup は通知設定ステップの表示と選択結果を記録する。
func (s *Service) RecordNotificationSetup(ctx context.Context, userID string, enabled bool) error {
	if err := s.accounts.MarkNotificationSetup(ctx, userID, enabled); err != nil {
		return fmt.Errorf("通知設定状態の記録に失敗しました: %w", err)
	}
	return nil
}
