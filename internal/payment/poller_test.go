package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/LingoToday/LingoToday-sub001/internal/logger"
	"github.com/LingoToday/LingoToday-sub001/internal/metrics"
)

// statusFunc は関数をStatusCheckerとして扱うアダプター。
type statusFunc func(ctx context.Context) (bool, error)

func (f statusFunc) SubscriptionStatus(ctx context.Context) (bool, error) {
	return f(ctx)
}

// pollRecorder はRecordPollAttemptの呼び出しを記録するメトリクス。
type pollRecorder struct {
	metrics.Nop
	active   int
	inactive int
}

func (r *pollRecorder) RecordPollAttempt(active bool) {
	if active {
		r.active++
		return
	}
	r.inactive++
}

// 各呼び出しの前にPollIntervalだけ待機すること
func TestPoller_WaitsBeforeEveryCall(t *testing.T) {
	clock := newFakeClock()
	calls := 0
	p := NewPoller(statusFunc(func(context.Context) (bool, error) {
		calls++
		if len(clock.waits) != calls {
			t.Errorf("%d回目の呼び出し前の待機回数 = %d", calls, len(clock.waits))
		}
		return calls == 4, nil
	}), clock, metrics.Nop{}, logger.Discard())

	res, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Runがエラーを返した: %v", err)
	}
	if !res.Active || res.Attempts != 4 || res.DeadlineReached {
		t.Errorf("PollResult = %+v", res)
	}
	for i, w := range clock.waits {
		if w != PollInterval {
			t.Errorf("waits[%d] = %s, want %s", i, w, PollInterval)
		}
	}
}

// エラーのみが返り続ける場合も上限回数で終了すること
func TestPoller_ErrorsUntilDeadline(t *testing.T) {
	rec := &pollRecorder{}
	pending := []int{}
	p := NewPoller(statusFunc(func(context.Context) (bool, error) {
		return true, errors.New("timeout")
	}), newFakeClock(), rec, logger.Discard())

	res, err := p.Run(context.Background(), func(n int) { pending = append(pending, n) })
	if err != nil {
		t.Fatalf("Runがエラーを返した: %v", err)
	}
	if res.Active {
		t.Error("エラー応答は有効化とみなさないべき")
	}
	if !res.DeadlineReached || res.Attempts != MaxPollAttempts {
		t.Errorf("PollResult = %+v", res)
	}
	if rec.inactive != MaxPollAttempts || rec.active != 0 {
		t.Errorf("メトリクス active=%d inactive=%d", rec.active, rec.inactive)
	}
	if len(pending) != MaxPollAttempts || pending[len(pending)-1] != MaxPollAttempts {
		t.Errorf("onPendingの呼び出しが不正: len=%d", len(pending))
	}
}

// 開始前にキャンセル済みのctxでは状態を取得しないこと
func TestPoller_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	p := NewPoller(statusFunc(func(context.Context) (bool, error) {
		called = true
		return true, nil
	}), blockingClock{}, metrics.Nop{}, logger.Discard())

	res, err := p.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("context.Canceledであるべき: %v", err)
	}
	if called || res.Attempts != 0 {
		t.Errorf("状態を取得しないべき: called=%v attempts=%d", called, res.Attempts)
	}
}
