package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LingoToday/LingoToday-sub001/internal/logger"
	"github.com/LingoToday/LingoToday-sub001/internal/metrics"
	"github.com/LingoToday/LingoToday-sub001/internal/model"
	"github.com/LingoToday/LingoToday-sub001/internal/repository"
)

// activationRecorder はRecordWebhookActivationsの呼び出しを記録する。
type activationRecorder struct {
	metrics.Nop
	counts []int
}

func (r *activationRecorder) RecordWebhookActivations(count int) {
	r.counts = append(r.counts, count)
}

// failingSetter はSetProUserが常に失敗するProUserSetter。
type failingSetter struct{}

func (failingSetter) SetProUser(context.Context, string, bool) error {
	return errors.New("db down")
}

var now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T) (*repository.MemoryAccountRepo, *repository.MemoryPaymentIntentRepo) {
	t.Helper()
	ctx := context.Background()
	accounts := repository.NewMemoryAccountRepo()
	intents := repository.NewMemoryPaymentIntentRepo()

	for _, id := range []string{"due-user", "later-user"} {
		if err := accounts.Create(ctx, &model.Account{ID: id, Email: id + "@example.com"}); err != nil {
			t.Fatalf("アカウント作成に失敗: %v", err)
		}
	}
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)
	for _, in := range []*model.PaymentIntent{
		{ID: "due", UserID: "due-user", ClientSecret: "s-due", Status: model.IntentStatusProcessing, ActivateAt: &past},
		{ID: "later", UserID: "later-user", ClientSecret: "s-later", Status: model.IntentStatusProcessing, ActivateAt: &future},
	} {
		if err := intents.Create(ctx, in); err != nil {
			t.Fatalf("インテント作成に失敗: %v", err)
		}
	}
	return accounts, intents
}

func TestDispatcher_RunOnce_ActivatesDueIntents(t *testing.T) {
	ctx := context.Background()
	accounts, intents := seed(t)
	rec := &activationRecorder{}
	d := NewDispatcher(intents, accounts, rec, logger.Discard(), time.Second)
	d.now = func() time.Time { return now }

	n, err := d.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnceがエラーを返した: %v", err)
	}
	if n != 1 {
		t.Errorf("有効化件数 = %d, want 1", n)
	}

	due, _ := accounts.FindByID(ctx, "due-user")
	later, _ := accounts.FindByID(ctx, "later-user")
	if !due.IsProUser {
		t.Error("配信予定時刻を過ぎたユーザーはProであるべき")
	}
	if later.IsProUser {
		t.Error("配信予定前のユーザーはProではないべき")
	}

	intent, _ := intents.FindByClientSecret(ctx, "s-due")
	if intent.Status != model.IntentStatusSucceeded || intent.ActivateAt != nil {
		t.Errorf("インテントはsucceededになるべき: %+v", intent)
	}
	if len(rec.counts) != 1 || rec.counts[0] != 1 {
		t.Errorf("メトリクス = %v, want [1]", rec.counts)
	}

	// 2回目は対象なし
	n, err = d.RunOnce(ctx)
	if err != nil || n != 0 {
		t.Errorf("2回目のRunOnce = %d, %v; want 0, nil", n, err)
	}
}

func TestDispatcher_RunOnce_AllFailuresReturnError(t *testing.T) {
	_, intents := seed(t)
	d := NewDispatcher(intents, failingSetter{}, metrics.Nop{}, logger.Discard(), time.Second)
	d.now = func() time.Time { return now }

	if _, err := d.RunOnce(context.Background()); err == nil {
		t.Fatal("全件失敗時はエラーを返すべき")
	}

	intent, _ := intents.FindByClientSecret(context.Background(), "s-due")
	if intent.Status != model.IntentStatusProcessing {
		t.Errorf("失敗したインテントは処理中のままであるべき: %s", intent.Status)
	}
}

func TestDispatcher_Start_StopsOnCancel(t *testing.T) {
	accounts, intents := seed(t)
	d := NewDispatcher(intents, accounts, metrics.Nop{}, logger.Discard(), time.Millisecond)
	d.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後に停止するべき")
	}

	account, _ := accounts.FindByID(context.Background(), "due-user")
	if !account.IsProUser {
		t.Error("ティックごとに配信が行われるべき")
	}
}
