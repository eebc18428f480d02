package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LingoToday/LingoToday-sub001/internal/model"
)

// MemoryKeyValueRepo はメモリ上のキー/バリューリポジトリ。
// 永続化が不要な実行やテストで使用する。
type MemoryKeyValueRepo struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryKeyValueRepo はMemoryKeyValueRepoを生成する。
func NewMemoryKeyValueRepo() *MemoryKeyValueRepo {
	return &MemoryKeyValueRepo{entries: make(map[string][]byte)}
}

// Get は指定キーの値のコピーを返す。見つからない場合はnilを返す。
func (r *MemoryKeyValueRepo) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.entries[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set は指定キーに値のコピーを書き込む。
func (r *MemoryKeyValueRepo) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	r.entries[key] = v
	return nil
}

// Delete は指定キーを削除する。
func (r *MemoryKeyValueRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, key)
	return nil
}

// MemoryAccountRepo はメモリ上のアカウントリポジトリ。
type MemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
}

// NewMemoryAccountRepo はMemoryAccountRepoを生成する。
func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{accounts: make(map[string]*model.Account)}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *MemoryAccountRepo) FindByID(_ context.Context, id string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *MemoryAccountRepo) FindByEmail(_ context.Context, email string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if strings.EqualFold(a.Email, email) {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

// Create はアカウントを作成する。メールアドレス重複時はErrDuplicateEmailを返す。
func (r *MemoryAccountRepo) Create(_ context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if strings.EqualFold(a.Email, account.Email) {
			return ErrDuplicateEmail
		}
	}
	c := *account
	r.accounts[account.ID] = &c
	return nil
}

// SetProUser はProユーザーフラグを更新する。
func (r *MemoryAccountRepo) SetProUser(_ context.Context, id string, isPro bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.accounts[id]; ok {
		a.IsProUser = isPro
		a.UpdatedAt = time.Now()
	}
	return nil
}

// MarkNotificationSetup は通知設定ステップの表示済みフラグと選択結果を記録する。
func (r *MemoryAccountRepo) MarkNotificationSetup(_ context.Context, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.accounts[id]; ok {
		a.NotificationSetupShown = true
		a.NotificationsEnabled = enabled
		a.UpdatedAt = time.Now()
	}
	return nil
}

// MemoryPaymentIntentRepo はメモリ上の決済インテントリポジトリ。
type MemoryPaymentIntentRepo struct {
	mu      sync.RWMutex
	intents map[string]*model.PaymentIntent
}

// NewMemoryPaymentIntentRepo はMemoryPaymentIntentRepoを生成する。
func NewMemoryPaymentIntentRepo() *MemoryPaymentIntentRepo {
	return &MemoryPaymentIntentRepo{intents: make(map[string]*model.PaymentIntent)}
}

// Create は決済インテントを作成する。
func (r *MemoryPaymentIntentRepo) Create(_ context.Context, intent *model.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.intents[intent.ID] = cloneIntent(intent)
	return nil
}

// FindByClientSecret はクライアントシークレットでインテントを検索する。
func (r *MemoryPaymentIntentRepo) FindByClientSecret(_ context.Context, clientSecret string) (*model.PaymentIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, in := range r.intents {
		if in.ClientSecret == clientSecret {
			return cloneIntent(in), nil
		}
	}
	return nil, nil
}

// UpdateStatus はインテントの状態とWebhook配信予定時刻を更新する。
func (r *MemoryPaymentIntentRepo) UpdateStatus(_ context.Context, id string, status model.IntentStatus, activateAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if in, ok := r.intents[id]; ok {
		in.Status = status
		in.ActivateAt = copyTime(activateAt)
		in.UpdatedAt = time.Now()
	}
	return nil
}

// ListDueForActivation は処理中かつActivateAtがnow以前のインテントを作成順に返す。
func (r *MemoryPaymentIntentRepo) ListDueForActivation(_ context.Context, now time.Time) ([]*model.PaymentIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*model.PaymentIntent
	for _, in := range r.intents {
		if in.Status == model.IntentStatusProcessing && in.ActivateAt != nil && !in.ActivateAt.After(now) {
			due = append(due, cloneIntent(in))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	return due, nil
}

// DeleteAbandonedBefore は確定待ちのまま放置されたインテントを削除する。
func (r *MemoryPaymentIntentRepo) DeleteAbandonedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, in := range r.intents {
		if in.Status == model.IntentStatusRequiresConfirmation && in.CreatedAt.Before(cutoff) {
			delete(r.intents, id)
			n++
		}
	}
	return n, nil
}

func cloneIntent(in *model.PaymentIntent) *model.PaymentIntent {
	c := *in
	c.ActivateAt = copyTime(in.ActivateAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// compile-time interface checks
var _ KeyValueRepository = (*MemoryKeyValueRepo)(nil)
var _ AccountRepository = (*MemoryAccountRepo)(nil)
var _ PaymentIntentRepository = (*MemoryPaymentIntentRepo)(nil)
