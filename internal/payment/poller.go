package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/LingoToday/LingoToday-sub001/internal/metrics"
)

const (
	// PollInterval はサブスクリプション状態の照合間隔。
	PollInterval = 5 * time.Second
	// MaxPollAttempts は照合の最大呼び出し回数。実質的な上限はPollInterval×MaxPollAttempts（5分）。
	MaxPollAttempts = 60
)

// StatusChecker はサブスクリプション状態を取得するインターフェース。
type StatusChecker interface {
	SubscriptionStatus(ctx context.Context) (bool, error)
}

// PollResult は照合ポーリングの結果。
type PollResult struct {
	// Attempts は状態エンドポイントの呼び出し回数。
	Attempts int
	// DeadlineReached は上限回数に達しても有効化を確認できなかったことを示す。
	DeadlineReached bool
	// Active は有効化を確認したことを示す。
	Active bool
}

// Poller はWebhookにより非同期に更新されるサブスクリプション状態を照合する。
// 各呼び出しの前にPollIntervalだけ待機し、最大MaxPollAttempts回呼び出す。
type Poller struct {
	status  StatusChecker
	clock   Clock
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewPoller はPollerを生成する。clockがnilの場合は実時間を使用する。
func NewPoller(status StatusChecker, clock Clock, m metrics.MetricsCollector, logger *slog.Logger) *Poller {
	if clock == nil {
		clock = RealClock()
	}
	return &Poller{
		status:  status,
		clock:   clock,
		metrics: m,
		logger:  logger,
	}
}

// Run は有効化を確認するか上限回数に達するまでポーリングする。
// 状態取得のエラーは「未反映」として扱い、ループを中断しない。
// onPendingは未反映の応答ごとに呼び出し回数を渡して呼ばれる（nil可）。
// ctxがキャンセルされた場合はその時点の結果とctx.Err()を返す。
func (p *Poller) Run(ctx context.Context, onPending func(attempt int)) (PollResult, error) {
	var result PollResult

	for result.Attempts < MaxPollAttempts {
		select {
		case <-ctx.Done():
			p.logger.Info("サブスクリプション状態の照合を中断しました",
				slog.Int("attempts", result.Attempts),
			)
			return result, ctx.Err()
		case <-p.clock.After(PollInterval):
		}

		result.Attempts++
		active, err := p.status.SubscriptionStatus(ctx)
		if err != nil {
			p.logger.Debug("サブスクリプション状態の取得に失敗しました（未反映として継続）",
				slog.Int("attempt", result.Attempts),
				slog.String("error", err.Error()),
			)
		}
		p.metrics.RecordPollAttempt(active && err == nil)

		if err == nil && active {
			result.Active = true
			p.logger.Info("サブスクリプションの有効化を確認しました",
				slog.Int("attempts", result.Attempts),
			)
			return result, nil
		}
		if onPending != nil {
			onPending(result.Attempts)
		}
	}

	result.DeadlineReached = true
	p.logger.Warn("サブスクリプションの有効化を上限回数内に確認できませんでした",
		slog.Int("attempts", result.Attempts),
	)
	return result, nil
}
