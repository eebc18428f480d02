// Package repository はデータ永続化のインターフェースと実装を定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/LingoToday/LingoToday-sub001/internal/model"
)

// ErrDuplicateEmail は同一メールアドレスのアカウントが既に存在する場合に返される。
var ErrDuplicateEmail = errors.New("repository: duplicate email")

// KeyValueRepository はデバイスローカルのキー/バリューストアのインターフェース。
// オンボーディングの下書きレコードの保存先として使用する。
type KeyValueRepository interface {
	// Get は指定キーの値を取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, key string) ([]byte, error)
	// Set は指定キーに値を書き込む。既存の値は上書きする。
	Set(ctx context.Context, key string, value []byte) error
	// Delete は指定キーを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}

// AccountRepository はサンドボックスのアカウント永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	// メールアドレスは大文字小文字を区別しない。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// Create はアカウントを作成する。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, account *model.Account) error

	// SetProUser はProユーザーフラグを更新する。
	SetProUser(ctx context.Context, id string, isPro bool) error

	// MarkNotificationSetup は通知設定ステップの表示済みフラグと選択結果を記録する。
	MarkNotificationSetup(ctx context.Context, id string, enabled bool) error
}

// PaymentIntentRepository はサンドボックスの決済インテント永続化インターフェース。
type PaymentIntentRepository interface {
	// Create は決済インテントを作成する。
	Create(ctx context.Context, intent *model.PaymentIntent) error

	// FindByClientSecret はクライアントシークレットでインテントを検索する。
	// 見つからない場合はnilを返す。
	FindByClientSecret(ctx context.Context, clientSecret string) (*model.PaymentIntent, error)

	// UpdateStatus はインテントの状態とWebhook配信予定時刻を更新する。
	UpdateStatus(ctx context.Context, id string, status model.IntentStatus, activateAt *time.Time) error

	// ListDueForActivation は処理中かつActivateAtがnow以前のインテントを返す。
	ListDueForActivation(ctx context.Context, now time.Time) ([]*model.PaymentIntent, error)

	// DeleteAbandonedBefore は確定待ちのまま放置されたcutoffより古いインテントを削除し、削除件数を返す。
	DeleteAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
