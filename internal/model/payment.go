package model

import "time"

// IntentStatus は決済インテントの状態を表す。
type IntentStatus string

const (
	// IntentStatusRequiresConfirmation は決済確定待ちの状態。
	IntentStatusRequiresConfirmation IntentStatus = "requires_confirmation"
	// IntentStatusProcessing は決済確定済みでWebhookによる有効化待ちの状態。
	IntentStatusProcessing IntentStatus = "processing"
	// IntentStatusSucceeded はWebhookによりサブスクリプションが有効化された状態。
	IntentStatusSucceeded IntentStatus = "succeeded"
	// IntentStatusFailed は確定的に失敗した状態。
	IntentStatusFailed IntentStatus = "failed"
	// IntentStatusCanceled はユーザーまたは決済事業者によりキャンセルされた状態。
	IntentStatusCanceled IntentStatus = "canceled"
)

// PaymentIntent はサンドボックスバックエンドが発行する決済インテントを表す。
// ActivateAtはWebhook配信予定時刻で、処理中の場合のみ設定される。
type PaymentIntent struct {
	ID           string
	UserID       string
	PriceID      string
	ClientSecret string
	Status       IntentStatus
	ActivateAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
