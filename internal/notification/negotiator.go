// Package notification は通知許可の確認と選択結果の記録を行う。
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LingoToday/LingoToday-sub001/internal/draft"
)

// PermissionRequester はOSの通知許可ダイアログを表すインターフェース。
type PermissionRequester interface {
	RequestPermission(ctx context.Context) (bool, error)
}

// SetupRecorder は通知設定の表示結果をバックエンドへ記録するインターフェース。
type SetupRecorder interface {
	RecordNotificationSetup(ctx context.Context, enabled bool) error
}

// Negotiator は通知許可を確認し、結果を下書きとバックエンドに記録する。
type Negotiator struct {
	requester PermissionRequester
	store     *draft.Store
	recorder  SetupRecorder
	logger    *slog.Logger
}

// NewNegotiator はNegotiatorを生成する。
func NewNegotiator(requester PermissionRequester, store *draft.Store, recorder SetupRecorder, logger *slog.Logger) *Negotiator {
	return &Negotiator{
		requester: requester,
		store:     store,
		recorder:  recorder,
		logger:    logger,
	}
}

// RequestPermission は許可ダイアログを表示し、許可されたかどうかを返す。
// ダイアログのエラーは拒否として扱う。バックエンドへの記録は1回だけ試み、
// 失敗してもエラーを返さない。返すエラーは下書きへの書き込み失敗のみ。
func (n *Negotiator) RequestPermission(ctx context.Context) (bool, error) {
	granted, err := n.requester.RequestPermission(ctx)
	if err != nil {
		n.logger.Info("通知許可ダイアログがエラーを返したため拒否として扱います",
			slog.String("error", err.Error()),
		)
		granted = false
	}

	if err := n.store.Update(ctx, draft.Patch{NotificationsEnabled: draft.Ptr(granted)}); err != nil {
		return granted, fmt.Errorf("通知設定の保存に失敗しました: %w", err)
	}

	if err := n.recorder.RecordNotificationSetup(ctx, granted); err != nil {
		n.logger.Warn("通知設定状態の送信に失敗しました",
			slog.Bool("enabled", granted),
			slog.String("error", err.Error()),
		)
	}

	return granted, nil
}
