// Package model はドメインモデルを定義する。
package model

import "time"

// User は認証済みユーザーを表す。
// オンボーディングでは登録成功後にセッションのIdentityとして保持される。
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	IsProUser bool   `json:"is_pro_user"`
}

// Account はサンドボックスバックエンドが永続化するアカウントを表す。
// PasswordHashはbcryptハッシュで、APIレスポンスには含めない。
type Account struct {
	ID           string
	Email        string
	FirstName    string
	PasswordHash string
	IsProUser    bool

	// NotificationSetupShown はオンボーディングの通知設定ステップが表示済みかを示す。
	NotificationSetupShown bool
	NotificationsEnabled   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToUser はAccountをAPIで返却するUserに変換する。
func (a *Account) ToUser() *User {
	return &User{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		IsProUser: a.IsProUser,
	}
}
