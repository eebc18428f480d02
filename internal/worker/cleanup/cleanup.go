// Package cleanup は放置された決済インテントの自動削除ジョブを提供する。
// 確定されないまま保持期間（デフォルト24時間）を超過した決済インテントを
// 定期的に削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// IntentDeleter は放置された決済インテントの削除を抽象化するインターフェース。
type IntentDeleter interface {
	DeleteAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は確定待ちのまま放置された決済インテントの削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	intents IntentDeleter
	logger  *slog.Logger
	now     func() time.Time
	TTL     time.Duration // 確定待ちインテントの保持期間（デフォルト: 24時間）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持期間は24時間。
func NewCleanupJob(intents IntentDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		intents: intents,
		logger:  logger,
		now:     time.Now,
		TTL:     24 * time.Hour,
	}
}

// Run は保持期間を超過した確定待ちインテントを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().Add(-j.TTL)

	deletedCount, err := j.intents.DeleteAbandonedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("決済インテントのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("ttl", j.TTL),
		)
		return fmt.Errorf("決済インテントのクリーンアップに失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("決済インテントのクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("ttl", j.TTL),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start はintervalごとにRunを実行する。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := j.Run(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("クリーンアップジョブが失敗しました", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
