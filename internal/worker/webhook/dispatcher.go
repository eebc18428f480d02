// Package webhook は決済事業者のWebhook配信をエミュレートするワーカーを提供する。
// 確定済みの決済インテントを配信予定時刻の経過後に有効化し、
// サブスクリプション状態を非同期に更新する。
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LingoToday/LingoToday-sub001/internal/metrics"
	"github.com/LingoToday/LingoToday-sub001/internal/model"
	"github.com/LingoToday/LingoToday-sub001/internal/repository"
)

// ProUserSetter はProユーザーフラグの更新を抽象化するインターフェース。
type ProUserSetter interface {
	SetProUser(ctx context.Context, id string, isPro bool) error
}

// Dispatcher は配信予定時刻を過ぎた決済インテントを有効化するワーカー。
type Dispatcher struct {
	intents  repository.PaymentIntentRepository
	accounts ProUserSetter
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(
	intents repository.PaymentIntentRepository,
	accounts ProUserSetter,
	m metrics.MetricsCollector,
	logger *slog.Logger,
	interval time.Duration,
) *Dispatcher {
	return &Dispatcher{
		intents:  intents,
		accounts: accounts,
		metrics:  m,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start はティッカーで定期的にRunOnceを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("Webhookディスパッチャを開始しました",
		slog.Duration("interval", d.interval),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Webhookディスパッチャを停止しました")
			return
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("Webhook配信サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は配信予定時刻を過ぎた処理中のインテントを有効化し、有効化した件数を返す。
// 1件の失敗で中断せず、残りのインテントの処理を継続する。
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	due, err := d.intents.ListDueForActivation(ctx, d.now())
	if err != nil {
		return 0, fmt.Errorf("配信対象インテントの取得に失敗しました: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	activated := 0
	var failed int
	for _, intent := range due {
		if err := d.activate(ctx, intent); err != nil {
			failed++
			d.logger.Warn("インテントの有効化に失敗しました",
				slog.String("intent_id", intent.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		activated++
	}

	d.metrics.RecordWebhookActivations(activated)
	d.logger.Info("Webhook配信サイクルが完了しました",
		slog.Int("activated", activated),
		slog.Int("failed", failed),
	)

	if failed > 0 && activated == 0 {
		return 0, fmt.Errorf("%d件のインテントの有効化に失敗しました", failed)
	}
	return activated, nil
}

func (d *Dispatcher) activate(ctx context.Context, intent *model.PaymentIntent) error {
	if err := d.accounts.SetProUser(ctx, intent.UserID, true); err != nil {
		return fmt.Errorf("failed to set pro user: %w", err)
	}
	if err := d.intents.UpdateStatus(ctx, intent.ID, model.IntentStatusSucceeded, nil); err != nil {
		return fmt.Errorf("failed to update intent status: %w", err)
	}
	return nil
}
